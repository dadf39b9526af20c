package effects

import (
	"math"

	"github.com/ivlev/kenburns/internal/errs"
)

// Point is a normalized pan anchor. 0 pins the crop to the top/left edge of the
// available slack, 1 to the bottom/right edge.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// EffectConfig describes one zoom/pan move. ZoomStart >= ZoomEnd >= 1.0.
type EffectConfig struct {
	ZoomStart float64 `yaml:"zoom_start" json:"zoom_start"`
	ZoomEnd   float64 `yaml:"zoom_end" json:"zoom_end"`
	PanStart  Point   `yaml:"pan_start" json:"pan_start"`
	PanEnd    Point   `yaml:"pan_end" json:"pan_end"`
}

// DefaultConfig is a zoom-out from an upper-left biased crop to the full frame.
func DefaultConfig() EffectConfig {
	return EffectConfig{
		ZoomStart: 1.3,
		ZoomEnd:   1.0,
		PanStart:  Point{X: 0.15, Y: 0.15},
		PanEnd:    Point{X: 0, Y: 0},
	}
}

// Validate checks the narrowing invariant and pan ranges.
func (c EffectConfig) Validate() error {
	const op = "effect config"
	for _, v := range []float64{c.ZoomStart, c.ZoomEnd, c.PanStart.X, c.PanStart.Y, c.PanEnd.X, c.PanEnd.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.InvalidArgument(op, "non-finite value in %+v", c)
		}
	}
	if c.ZoomEnd < 1.0 {
		return errs.InvalidArgument(op, "zoom_end %.4f is below 1.0", c.ZoomEnd)
	}
	if c.ZoomStart < c.ZoomEnd {
		return errs.InvalidArgument(op, "zoom_start %.4f is below zoom_end %.4f", c.ZoomStart, c.ZoomEnd)
	}
	for _, p := range []Point{c.PanStart, c.PanEnd} {
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return errs.InvalidArgument(op, "pan %+v outside [0,1]", p)
		}
	}
	return nil
}

// Params is the transform for one instant.
type Params struct {
	Zoom float64
	PanX float64
	PanY float64
}

// ParametersAt maps elapsed time t within a move of the given duration to zoom and pan.
// Defined for t in [0, duration]; both endpoints are reproduced exactly.
func ParametersAt(t, duration float64, cfg EffectConfig) (Params, error) {
	progress, err := progressAt(t, duration)
	if err != nil {
		return Params{}, err
	}
	return Params{
		Zoom: lerp(cfg.ZoomStart, cfg.ZoomEnd, progress),
		PanX: lerp(cfg.PanStart.X, cfg.PanEnd.X, progress),
		PanY: lerp(cfg.PanStart.Y, cfg.PanEnd.Y, progress),
	}, nil
}

func progressAt(t, duration float64) (float64, error) {
	const op = "parametersAt"
	if !(duration > 0) || math.IsInf(duration, 0) {
		return 0, errs.InvalidArgument(op, "duration must be positive, got %v", duration)
	}
	if math.IsNaN(t) || t < 0 || t > duration {
		return 0, errs.InvalidArgument(op, "t=%v outside [0, %v]", t, duration)
	}
	return t / duration, nil
}

// lerp is exact at both ends and monotonic in p.
func lerp(a, b, p float64) float64 {
	if p >= 1 {
		return b
	}
	return a + (b-a)*p
}
