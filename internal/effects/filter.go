package effects

import "fmt"

// Effect compiles one image clip into an ffmpeg filter chain.
type Effect interface {
	GenerateFilter(params SegmentParams) string
}

// SegmentParams describes the clip an Effect is generated for. The input of the filter is
// the pre-scaled source raster, one frame.
type SegmentParams struct {
	Width, Height int
	FPS           int
	Frames        int
	Index         int
}

// ZoomPanEffect renders a Curve through the zoompan filter, so the encoder produces the
// same crop sequence as the in-process transformer.
type ZoomPanEffect struct {
	Curve Curve
}

func NewZoomPanEffect(c Curve) *ZoomPanEffect {
	return &ZoomPanEffect{Curve: c}
}

func (e *ZoomPanEffect) GenerateFilter(p SegmentParams) string {
	frames := p.Frames
	if frames < 1 {
		frames = 1
	}
	expr := e.Curve.ZoomPan(frames)

	zoomFilter := fmt.Sprintf(
		"zoompan=z='%s':x='%s':y='%s':d=%d:s=%dx%d:fps=%d",
		expr.Zoom, expr.X, expr.Y, frames, p.Width, p.Height, p.FPS,
	)
	return fmt.Sprintf("%s,setsar=1", zoomFilter)
}
