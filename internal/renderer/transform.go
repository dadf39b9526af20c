package renderer

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/effects"
	"github.com/ivlev/kenburns/internal/errs"
	"github.com/ivlev/kenburns/internal/system"
)

// CropRect returns the region of a frame with the given bounds that p selects.
//
// The crop keeps the frame aspect: it is floor(size/zoom) on each axis, never below one
// pixel. Pan places the crop inside the remaining slack and is clamped so rounding can
// never push the rectangle out of bounds.
func CropRect(bounds image.Rectangle, p effects.Params) (image.Rectangle, error) {
	const op = "transform"
	if !finite(p.Zoom) || p.Zoom < 1.0 {
		return image.Rectangle{}, errs.InvalidArgument(op, "zoom %v is below 1.0", p.Zoom)
	}
	if !finite(p.PanX) || !finite(p.PanY) {
		return image.Rectangle{}, errs.InvalidArgument(op, "pan (%v, %v) is not finite", p.PanX, p.PanY)
	}
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, errs.InvalidInput(op, "source frame is %dx%d", w, h)
	}

	cropW := max(1, int(math.Floor(float64(w)/p.Zoom)))
	cropH := max(1, int(math.Floor(float64(h)/p.Zoom)))

	originX := clampInt(int(math.Floor(p.PanX*float64(w-cropW))), 0, w-cropW)
	originY := clampInt(int(math.Floor(p.PanY*float64(h-cropH))), 0, h-cropH)

	origin := bounds.Min.Add(image.Pt(originX, originY))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(cropW, cropH))}, nil
}

// Transform crops src per p and resamples the crop to exactly out with bilinear
// filtering. The result comes from the frame pool; hand it back with system.PutImage
// once it has been consumed.
func Transform(src image.Image, p effects.Params, out config.FrameSize) (*image.RGBA, error) {
	if src == nil {
		return nil, errs.InvalidInput("transform", "no source frame")
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	crop, err := CropRect(src.Bounds(), p)
	if err != nil {
		return nil, err
	}

	dst := system.GetImage(image.Rect(0, 0, out.Width, out.Height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
