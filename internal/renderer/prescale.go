package renderer

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/errs"
)

// PreScaleSize is the raster size an image clip works on: the output size times the
// largest zoom the move reaches, rounded up.
func PreScaleSize(out config.FrameSize, zoom float64) config.FrameSize {
	return config.FrameSize{
		Width:  int(math.Ceil(float64(out.Width) * zoom)),
		Height: int(math.Ceil(float64(out.Height) * zoom)),
	}
}

// PreScale resizes src so that it covers PreScaleSize(out, zoom) with its aspect
// preserved, and center-crops the overflow. The second result reports that the source
// was smaller than needed and had to be enlarged.
func PreScale(src image.Image, out config.FrameSize, zoom float64) (*image.RGBA, bool, error) {
	const op = "prescale"
	if src == nil {
		return nil, false, errs.InvalidInput(op, "no source image")
	}
	if err := out.Validate(); err != nil {
		return nil, false, err
	}
	if !finite(zoom) || zoom < 1.0 {
		return nil, false, errs.InvalidArgument(op, "zoom %v is below 1.0", zoom)
	}
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw <= 0 || sh <= 0 {
		return nil, false, errs.InvalidInput(op, "source image is %dx%d", sw, sh)
	}

	target := PreScaleSize(out, zoom)
	targetAspect := float64(target.Width) / float64(target.Height)

	// Largest centered region of the source with the target aspect.
	cropW, cropH := sw, sh
	if float64(sw)/float64(sh) > targetAspect {
		cropW = max(1, int(math.Round(float64(sh)*targetAspect)))
	} else {
		cropH = max(1, int(math.Round(float64(sw)/targetAspect)))
	}
	offset := image.Pt((sw-cropW)/2, (sh-cropH)/2)
	region := image.Rectangle{Min: b.Min.Add(offset), Max: b.Min.Add(offset).Add(image.Pt(cropW, cropH))}

	dst := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, region, draw.Src, nil)

	upscaled := cropW < target.Width || cropH < target.Height
	return dst, upscaled, nil
}
