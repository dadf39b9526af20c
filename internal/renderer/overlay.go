package renderer

import (
	"fmt"
	"image"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
)

// StampLabel draws label as a QR code into the top-left corner of dst. Used by debug
// renders to make every frame traceable to its segment, image and index.
func StampLabel(dst *image.RGBA, label string) error {
	qr, err := qrcode.New(label, qrcode.Medium)
	if err != nil {
		return fmt.Errorf("encode label %q: %w", label, err)
	}
	b := dst.Bounds()
	size := min(b.Dx(), b.Dy()) / 5
	if size < 1 {
		return nil
	}
	code := qr.Image(size)
	draw.Draw(dst, code.Bounds().Add(b.Min), code, code.Bounds().Min, draw.Src)
	return nil
}
