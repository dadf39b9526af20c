package effects

import (
	"errors"
	"math"
	"testing"

	"github.com/ivlev/kenburns/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParametersAtEndpoints(t *testing.T) {
	cfg := DefaultConfig()

	for _, d := range []float64{0.001, 1.0 / 24, 1, 3.7, 4, 300} {
		start, err := ParametersAt(0, d, cfg)
		require.NoError(t, err)
		assert.Equal(t, Params{Zoom: cfg.ZoomStart, PanX: cfg.PanStart.X, PanY: cfg.PanStart.Y}, start, "d=%v", d)

		end, err := ParametersAt(d, d, cfg)
		require.NoError(t, err)
		assert.Equal(t, Params{Zoom: cfg.ZoomEnd, PanX: cfg.PanEnd.X, PanY: cfg.PanEnd.Y}, end, "d=%v", d)
	}
}

func TestParametersAtMidpoint(t *testing.T) {
	p, err := ParametersAt(2, 4, DefaultConfig())
	require.NoError(t, err)

	assert.InDelta(t, 1.15, p.Zoom, 1e-12)
	assert.InDelta(t, 0.075, p.PanX, 1e-12)
	assert.InDelta(t, 0.075, p.PanY, 1e-12)
}

func TestParametersAtMonotonicNarrowing(t *testing.T) {
	configs := []EffectConfig{
		DefaultConfig(),
		{ZoomStart: 2.5, ZoomEnd: 1.0, PanStart: Point{1, 0}, PanEnd: Point{0, 1}},
		{ZoomStart: 1.0000001, ZoomEnd: 1.0},
		{ZoomStart: 1.2, ZoomEnd: 1.2},
	}
	const d = 7.3
	const steps = 5000

	for _, cfg := range configs {
		prev := math.Inf(1)
		for i := 0; i <= steps; i++ {
			tt := d * float64(i) / steps
			p, err := ParametersAt(tt, d, cfg)
			require.NoError(t, err)
			assert.LessOrEqual(t, p.Zoom, prev, "cfg=%+v t=%v", cfg, tt)
			assert.GreaterOrEqual(t, p.Zoom, cfg.ZoomEnd)
			prev = p.Zoom
		}
	}
}

func TestParametersAtInvalid(t *testing.T) {
	tests := []struct {
		name     string
		t        float64
		duration float64
	}{
		{"zero duration", 0, 0},
		{"negative duration", 0, -2},
		{"nan duration", 0, math.NaN()},
		{"infinite duration", 0, math.Inf(1)},
		{"negative t", -0.1, 1},
		{"t past end", 1.5, 1},
		{"nan t", math.NaN(), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParametersAt(tt.t, tt.duration, DefaultConfig())
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
		})
	}
}

func TestEffectConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EffectConfig
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"static", EffectConfig{ZoomStart: 1, ZoomEnd: 1}, false},
		{"widening", EffectConfig{ZoomStart: 1.0, ZoomEnd: 1.3}, true},
		{"below one", EffectConfig{ZoomStart: 1.3, ZoomEnd: 0.9}, true},
		{"pan out of range", EffectConfig{ZoomStart: 1.3, ZoomEnd: 1, PanStart: Point{1.2, 0}}, true},
		{"nan", EffectConfig{ZoomStart: math.NaN(), ZoomEnd: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidArgument)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
