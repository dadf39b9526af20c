package clip

import (
	"fmt"
	"image"
	"math"

	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/effects"
	"github.com/ivlev/kenburns/internal/errs"
	"github.com/ivlev/kenburns/internal/renderer"
	"github.com/ivlev/kenburns/internal/system"
)

// ImageClip applies an effect curve to one still image. Frames are computed on demand
// from the pre-scaled raster.
//
// Frame i is shown at t = i/fps and evaluates the curve over the span (frames-1)/fps, so
// the first frame carries the start parameters and the last frame the end parameters
// exactly. A single-frame clip shows the start parameters.
type ImageClip struct {
	id       string
	source   *image.RGBA
	curve    effects.Curve
	size     config.FrameSize
	fps      int
	frames   int
	upscaled bool
	labels   bool
}

type Option func(*ImageClip)

// WithLabels stamps every frame with a QR code of its clip id and frame index.
func WithLabels(on bool) Option {
	return func(c *ImageClip) { c.labels = on }
}

// MakeImageClip builds a clip of round(duration*fps) frames, at least one.
func MakeImageClip(id string, img image.Image, duration float64, curve effects.Curve, out config.FrameSize, fps int, opts ...Option) (*ImageClip, error) {
	if !(duration > 0) || math.IsInf(duration, 0) {
		return nil, errs.InvalidArgument("makeImageClip", "duration must be positive, got %v", duration)
	}
	if fps <= 0 {
		return nil, errs.InvalidArgument("makeImageClip", "fps must be positive, got %d", fps)
	}
	frames := max(1, int(math.Round(duration*float64(fps))))
	return MakeImageClipFrames(id, img, frames, curve, out, fps, opts...)
}

// MakeImageClipFrames builds a clip with an explicit frame count.
func MakeImageClipFrames(id string, img image.Image, frames int, curve effects.Curve, out config.FrameSize, fps int, opts ...Option) (*ImageClip, error) {
	const op = "makeImageClip"
	if frames < 1 {
		return nil, errs.InvalidArgument(op, "clip %s needs at least one frame, got %d", id, frames)
	}
	if fps <= 0 {
		return nil, errs.InvalidArgument(op, "fps must be positive, got %d", fps)
	}
	if curve == nil {
		return nil, errs.InvalidArgument(op, "clip %s has no effect curve", id)
	}
	scaled, upscaled, err := renderer.PreScale(img, out, curve.MaxZoom())
	if err != nil {
		return nil, errs.WithImage(err, errs.ErrInvalidInput, id)
	}

	c := &ImageClip{
		id:       id,
		source:   scaled,
		curve:    curve,
		size:     out,
		fps:      fps,
		frames:   frames,
		upscaled: upscaled,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithFrames returns a clip over the same pre-scaled raster with a different frame count.
// The move is stretched over the new span.
func (c *ImageClip) WithFrames(frames int) (*ImageClip, error) {
	if frames < 1 {
		return nil, errs.InvalidArgument("withFrames", "clip %s needs at least one frame, got %d", c.id, frames)
	}
	cp := *c
	cp.frames = frames
	return &cp, nil
}

func (c *ImageClip) ID() string             { return c.id }
func (c *ImageClip) FrameCount() int        { return c.frames }
func (c *ImageClip) FPS() int               { return c.fps }
func (c *ImageClip) Size() config.FrameSize { return c.size }
func (c *ImageClip) Curve() effects.Curve   { return c.curve }

// Upscaled reports that the source was smaller than the pre-scale target.
func (c *ImageClip) Upscaled() bool { return c.upscaled }

func (c *ImageClip) Duration() float64 {
	return float64(c.frames) / float64(c.fps)
}

// Source is the pre-scaled raster the crops are taken from.
func (c *ImageClip) Source() *image.RGBA { return c.source }

// Params returns the effect parameters of frame i.
func (c *ImageClip) Params(i int) (effects.Params, error) {
	if err := checkIndex(c.id, i, c.frames); err != nil {
		return effects.Params{}, err
	}
	if c.frames == 1 {
		return c.curve.ParametersAt(0, 1/float64(c.fps))
	}
	t := float64(i) / float64(c.fps)
	span := float64(c.frames-1) / float64(c.fps)
	return c.curve.ParametersAt(t, span)
}

// CropAt returns the source rectangle frame i is resampled from.
func (c *ImageClip) CropAt(i int) (image.Rectangle, error) {
	if c.source == nil {
		return image.Rectangle{}, errs.InvalidArgument("cropAt", "clip %s was released", c.id)
	}
	p, err := c.Params(i)
	if err != nil {
		return image.Rectangle{}, err
	}
	return renderer.CropRect(c.source.Bounds(), p)
}

func (c *ImageClip) Frame(i int) (*image.RGBA, error) {
	if c.source == nil {
		return nil, errs.InvalidArgument("frame", "clip %s was released", c.id)
	}
	p, err := c.Params(i)
	if err != nil {
		return nil, err
	}
	frame, err := renderer.Transform(c.source, p, c.size)
	if err != nil {
		return nil, errs.WithImage(err, errs.ErrInvalidInput, c.id)
	}
	if c.labels {
		if err := renderer.StampLabel(frame, fmt.Sprintf("%s/frame-%d", c.id, i)); err != nil {
			system.PutImage(frame)
			return nil, err
		}
	}
	return frame, nil
}

func (c *ImageClip) FrameAt(t float64) (*image.RGBA, error) {
	i, err := IndexAt(t, c.frames, c.fps)
	if err != nil {
		return nil, err
	}
	return c.Frame(i)
}

func (c *ImageClip) Release() {
	c.source = nil
}
