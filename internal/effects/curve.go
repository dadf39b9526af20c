package effects

import (
	"fmt"
	"math"
	"strings"

	"github.com/ivlev/kenburns/internal/errs"
)

// Curve is one realization of the effect parameter model. The in-process backend asks it
// for Params per frame; the expression backend asks it for a zoompan expression over the
// same frame grid. Both must describe the same move.
type Curve interface {
	Name() string
	ParametersAt(t, duration float64) (Params, error)
	// MaxZoom is the largest zoom the curve can reach; sources are pre-scaled for it.
	MaxZoom() float64
	// ZoomPan returns expressions over the zoompan output frame number "on" for a clip
	// of the given frame count.
	ZoomPan(frames int) ZoomPanExpr
}

// ZoomPanExpr holds the z, x and y expressions of an ffmpeg zoompan filter.
type ZoomPanExpr struct {
	Zoom string
	X    string
	Y    string
}

const (
	CurveLinear      = "linear"
	CurveEased       = "ease"
	CurveIncremental = "incremental"
)

// NewCurve resolves a curve by name. An empty name selects the linear model.
func NewCurve(name string, cfg EffectConfig, fps int) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CurveLinear:
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return Linear{Config: cfg}, nil
	case CurveEased, "eased", "ease-in-out":
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return Eased{Config: cfg}, nil
	case CurveIncremental, "exponential":
		inc := DefaultIncremental(fps)
		if err := inc.Validate(); err != nil {
			return nil, err
		}
		return inc, nil
	default:
		return nil, errs.InvalidArgument("curve", "unknown curve %q", name)
	}
}

// Linear interpolates zoom and pan at constant speed. This is the canonical model.
type Linear struct {
	Config EffectConfig
}

func (l Linear) Name() string { return CurveLinear }

func (l Linear) ParametersAt(t, duration float64) (Params, error) {
	return ParametersAt(t, duration, l.Config)
}

func (l Linear) MaxZoom() float64 { return l.Config.ZoomStart }

func (l Linear) ZoomPan(frames int) ZoomPanExpr {
	return interpolatedZoomPan(l.Config, progressExpr(frames))
}

// Eased follows the linear model with ease-in-out cubic progress.
type Eased struct {
	Config EffectConfig
}

func (e Eased) Name() string { return CurveEased }

func (e Eased) ParametersAt(t, duration float64) (Params, error) {
	progress, err := progressAt(t, duration)
	if err != nil {
		return Params{}, err
	}
	eased := easeInOutCubic(progress)
	c := e.Config
	return Params{
		Zoom: lerp(c.ZoomStart, c.ZoomEnd, eased),
		PanX: lerp(c.PanStart.X, c.PanEnd.X, eased),
		PanY: lerp(c.PanStart.Y, c.PanEnd.Y, eased),
	}, nil
}

func (e Eased) MaxZoom() float64 { return e.Config.ZoomStart }

func (e Eased) ZoomPan(frames int) ZoomPanExpr {
	p := progressExpr(frames)
	eased := fmt.Sprintf("if(lt(%[1]s,0.5),4*pow(%[1]s,3),1-pow(2-2*%[1]s,3)/2)", p)
	return interpolatedZoomPan(e.Config, eased)
}

// Incremental grows the zoom by a fixed step per frame up to a ceiling, centered.
// It zooms in rather than out and is not visually equivalent to Linear.
type Incremental struct {
	Start float64
	Step  float64
	Max   float64
	FPS   int
}

// DefaultIncremental mirrors the zoompan "zoom+0.0015" move clamped at 1.5.
func DefaultIncremental(fps int) Incremental {
	return Incremental{Start: 1.0, Step: 0.0015, Max: 1.5, FPS: fps}
}

func (c Incremental) Validate() error {
	if c.FPS <= 0 {
		return errs.InvalidArgument("incremental curve", "fps must be positive, got %d", c.FPS)
	}
	if c.Start < 1.0 || c.Step < 0 || c.Max < c.Start {
		return errs.InvalidArgument("incremental curve", "need 1 <= start <= max and step >= 0, got %+v", c)
	}
	return nil
}

func (c Incremental) Name() string { return CurveIncremental }

func (c Incremental) ParametersAt(t, duration float64) (Params, error) {
	if _, err := progressAt(t, duration); err != nil {
		return Params{}, err
	}
	frame := math.Round(t * float64(c.FPS))
	return Params{
		Zoom: math.Min(c.Start+c.Step*frame, c.Max),
		PanX: 0.5,
		PanY: 0.5,
	}, nil
}

func (c Incremental) MaxZoom() float64 { return c.Max }

func (c Incremental) ZoomPan(frames int) ZoomPanExpr {
	return ZoomPanExpr{
		Zoom: fmt.Sprintf("min(%s+%s*on,%s)", num(c.Start), num(c.Step), num(c.Max)),
		X:    "floor(0.5*(iw-floor(iw/zoom)))",
		Y:    "floor(0.5*(ih-floor(ih/zoom)))",
	}
}

// progressExpr is on/(frames-1) clamped to 1, matching the frame grid of the image clip.
func progressExpr(frames int) string {
	if frames <= 1 {
		return "0"
	}
	return fmt.Sprintf("min(on/%d,1)", frames-1)
}

func interpolatedZoomPan(c EffectConfig, p string) ZoomPanExpr {
	return ZoomPanExpr{
		Zoom: fmt.Sprintf("%s+(%s)*%s", num(c.ZoomStart), num(c.ZoomEnd-c.ZoomStart), p),
		X: fmt.Sprintf("floor((%s+(%s)*%s)*(iw-floor(iw/zoom)))",
			num(c.PanStart.X), num(c.PanEnd.X-c.PanStart.X), p),
		Y: fmt.Sprintf("floor((%s+(%s)*%s)*(ih-floor(ih/zoom)))",
			num(c.PanStart.Y), num(c.PanEnd.Y-c.PanStart.Y), p),
	}
}

func num(v float64) string {
	return fmt.Sprintf("%.6f", v)
}
