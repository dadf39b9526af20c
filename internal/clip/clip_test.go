package clip

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/effects"
	"github.com/ivlev/kenburns/internal/errs"
)

var small = config.FrameSize{Width: 32, Height: 18}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func linear() effects.Curve {
	return effects.Linear{Config: effects.DefaultConfig()}
}

func TestMakeImageClipFrameGrid(t *testing.T) {
	tests := []struct {
		duration float64
		fps      int
		frames   int
	}{
		{2, 24, 48},
		{1.02, 24, 24},
		{1.03, 24, 25},
		{0.01, 24, 1},
		{3.3333, 30, 100},
	}

	for _, tt := range tests {
		c, err := MakeImageClip("img", testImage(64, 36), tt.duration, linear(), small, tt.fps)
		require.NoError(t, err)
		assert.Equal(t, tt.frames, c.FrameCount(), "duration %v", tt.duration)
		assert.InDelta(t, float64(tt.frames)/float64(tt.fps), c.Duration(), 1e-12)
	}
}

func TestMakeImageClipRejects(t *testing.T) {
	_, err := MakeImageClip("img", testImage(8, 8), 0, linear(), small, 24)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = MakeImageClip("img", testImage(8, 8), 1, linear(), small, 0)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = MakeImageClip("broken", image.NewRGBA(image.Rectangle{}), 1, linear(), small, 24)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Contains(t, err.Error(), "broken")
}

func TestImageClipEndpoints(t *testing.T) {
	c, err := MakeImageClip("img", testImage(640, 360), 2, linear(), small, 24)
	require.NoError(t, err)
	require.Equal(t, 48, c.FrameCount())

	first, err := c.Params(0)
	require.NoError(t, err)
	assert.Equal(t, effects.Params{Zoom: 1.3, PanX: 0.15, PanY: 0.15}, first)

	last, err := c.Params(47)
	require.NoError(t, err)
	assert.Equal(t, effects.Params{Zoom: 1.0, PanX: 0, PanY: 0}, last)

	full, err := c.CropAt(47)
	require.NoError(t, err)
	assert.Equal(t, c.Source().Bounds(), full)

	start, err := c.CropAt(0)
	require.NoError(t, err)
	assert.InDelta(t, 1/1.3, float64(start.Dx())/float64(c.Source().Bounds().Dx()), 0.02)
}

func TestImageClipSingleFrameShowsStart(t *testing.T) {
	c, err := MakeImageClipFrames("img", testImage(64, 36), 1, linear(), small, 24)
	require.NoError(t, err)

	p, err := c.Params(0)
	require.NoError(t, err)
	assert.Equal(t, 1.3, p.Zoom)
}

func TestImageClipDeterministic(t *testing.T) {
	c, err := MakeImageClip("img", testImage(100, 60), 1, linear(), small, 12)
	require.NoError(t, err)

	for _, ts := range []float64{0, 0.25, 0.5, 11.0 / 12} {
		a, err := c.FrameAt(ts)
		require.NoError(t, err)
		first := append([]byte(nil), a.Pix...)

		b, err := c.FrameAt(ts)
		require.NoError(t, err)
		assert.Equal(t, first, b.Pix, "t=%v", ts)
		assert.Equal(t, image.Rect(0, 0, small.Width, small.Height), b.Bounds())
	}
}

func TestImageClipDomain(t *testing.T) {
	c, err := MakeImageClip("img", testImage(64, 36), 1, linear(), small, 24)
	require.NoError(t, err)

	_, err = c.FrameAt(1)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = c.FrameAt(-0.01)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = c.Frame(24)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = c.FrameAt(1 - 1.0/24)
	assert.NoError(t, err)

	c.Release()
	_, err = c.Frame(0)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestImageClipWithFrames(t *testing.T) {
	c, err := MakeImageClipFrames("img", testImage(64, 36), 10, linear(), small, 24)
	require.NoError(t, err)

	longer, err := c.WithFrames(30)
	require.NoError(t, err)
	assert.Equal(t, 30, longer.FrameCount())
	assert.Equal(t, 10, c.FrameCount())
	assert.Same(t, c.Source(), longer.Source())

	p, err := longer.Params(29)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Zoom)

	_, err = c.WithFrames(0)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestImageClipLabels(t *testing.T) {
	plain, err := MakeImageClipFrames("img", testImage(200, 100), 2, linear(), config.FrameSize{Width: 200, Height: 100}, 24)
	require.NoError(t, err)
	labelled, err := MakeImageClipFrames("img", testImage(200, 100), 2, linear(), config.FrameSize{Width: 200, Height: 100}, 24, WithLabels(true))
	require.NoError(t, err)

	a, err := plain.Frame(0)
	require.NoError(t, err)
	pa := append([]byte(nil), a.Pix...)
	b, err := labelled.Frame(0)
	require.NoError(t, err)

	assert.NotEqual(t, pa, b.Pix)
}

func TestIndexAt(t *testing.T) {
	for i := 0; i < 96; i++ {
		got, err := IndexAt(float64(i)/24, 96, 24)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	got, err := IndexAt(0.99/24, 96, 24)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = IndexAt(4, 96, 24)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestSequenceRouting(t *testing.T) {
	a, err := MakeImageClipFrames("a", testImage(64, 36), 5, linear(), small, 24)
	require.NoError(t, err)
	b, err := MakeImageClipFrames("b", testImage(64, 36), 7, linear(), small, 24)
	require.NoError(t, err)

	seq, err := NewSequence("seq", []Clip{a, b})
	require.NoError(t, err)
	assert.Equal(t, 12, seq.FrameCount())
	assert.InDelta(t, 0.5, seq.Duration(), 1e-12)
	assert.Equal(t, 5, seq.Start(1))

	owner, local, err := seq.Locate(4)
	require.NoError(t, err)
	assert.Equal(t, "a", owner.ID())
	assert.Equal(t, 4, local)

	owner, local, err = seq.Locate(5)
	require.NoError(t, err)
	assert.Equal(t, "b", owner.ID())
	assert.Equal(t, 0, local)

	direct, err := b.Frame(6)
	require.NoError(t, err)
	want := append([]byte(nil), direct.Pix...)
	routed, err := seq.FrameAt(11.0 / 24)
	require.NoError(t, err)
	assert.Equal(t, want, routed.Pix)

	_, _, err = seq.Locate(12)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestSequenceRejectsMismatch(t *testing.T) {
	a, err := MakeImageClipFrames("a", testImage(64, 36), 5, linear(), small, 24)
	require.NoError(t, err)
	b, err := MakeImageClipFrames("b", testImage(64, 36), 5, linear(), config.FrameSize{Width: 16, Height: 9}, 24)
	require.NoError(t, err)
	c, err := MakeImageClipFrames("c", testImage(64, 36), 5, linear(), small, 30)
	require.NoError(t, err)

	_, err = NewSequence("s", []Clip{a, b})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = NewSequence("s", []Clip{a, c})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, err = NewSequence("s", nil)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}
