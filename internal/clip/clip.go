// Package clip models renderable sequences of frames on a fixed fps grid.
//
// A clip is a value: once built it has no mutable state apart from Release, and asking
// for the same frame twice yields identical pixels. Disjoint frame ranges can therefore be
// rendered concurrently.
package clip

import (
	"image"
	"math"

	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/errs"
)

type Clip interface {
	ID() string
	// Duration is FrameCount / FPS.
	Duration() float64
	FrameCount() int
	FPS() int
	Size() config.FrameSize
	// Frame renders frame i in [0, FrameCount). The caller owns the result and may hand it
	// back with system.PutImage.
	Frame(i int) (*image.RGBA, error)
	// FrameAt renders the frame shown at t in [0, Duration).
	FrameAt(t float64) (*image.RGBA, error)
	// Release drops the source rasters. Frames cannot be requested afterwards.
	Release()
}

// IndexAt maps a timestamp to the frame on the fps grid that is on screen at t.
func IndexAt(t float64, frames, fps int) (int, error) {
	duration := float64(frames) / float64(fps)
	if math.IsNaN(t) || t < 0 || t >= duration {
		return 0, errs.InvalidArgument("frameAt", "t=%v outside [0, %v)", t, duration)
	}
	// Timestamps produced as i/fps must land on i despite rounding.
	i := int(math.Floor(t*float64(fps) + 1e-9))
	if i >= frames {
		i = frames - 1
	}
	return i, nil
}

func checkIndex(id string, i, frames int) error {
	if i < 0 || i >= frames {
		return errs.InvalidArgument("frame", "clip %s: frame %d outside [0, %d)", id, i, frames)
	}
	return nil
}
