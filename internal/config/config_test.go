package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ivlev/kenburns/internal/effects"
	"github.com/ivlev/kenburns/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, FrameSize{Width: 1920, Height: 1080}, cfg.Size)
	assert.Equal(t, 24, cfg.FPS)
	assert.Equal(t, effects.DefaultConfig(), cfg.Effect)
	assert.Equal(t, 300.0, cfg.MaxVideoDuration)
	assert.Equal(t, BackendFrames, cfg.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kenburns.yaml")
	data := []byte(`
size:
  width: 1280
  height: 720
fps: 30
curve: ease
effect:
  zoom_start: 1.5
  zoom_end: 1.1
  pan_start: {x: 0.5, y: 0.5}
  pan_end: {x: 0, y: 1}
storage:
  bucket: renders
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, FrameSize{Width: 1280, Height: 720}, cfg.Size)
	assert.Equal(t, 30, cfg.FPS)
	assert.Equal(t, "ease", cfg.Curve)
	assert.Equal(t, 1.5, cfg.Effect.ZoomStart)
	assert.Equal(t, effects.Point{X: 0, Y: 1}, cfg.Effect.PanEnd)
	assert.Equal(t, "renders", cfg.Storage.Bucket)
	// untouched keys keep their defaults
	assert.Equal(t, 300.0, cfg.MaxVideoDuration)
	assert.Equal(t, BackendFrames, cfg.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("KENBURNS_SIZE", "1080x1920")
	t.Setenv("KENBURNS_FPS", "25")
	t.Setenv("KENBURNS_BACKEND", "filter")
	t.Setenv("S3_BUCKET", "media")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, FrameSize{Width: 1080, Height: 1920}, cfg.Size)
	assert.Equal(t, 25, cfg.FPS)
	assert.Equal(t, BackendFilter, cfg.Backend)
	assert.Equal(t, "media", cfg.Storage.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Storage.Region)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Setenv("KENBURNS_FPS", "fast")

	cfg := Default()
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Size.Width = 0 }},
		{"zero fps", func(c *Config) { c.FPS = 0 }},
		{"widening effect", func(c *Config) { c.Effect.ZoomEnd = 2 }},
		{"unknown backend", func(c *Config) { c.Backend = "gpu" }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), errs.ErrInvalidArgument)
		})
	}
}

func TestApplyPreset(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.ApplyPreset("9:16"))
	assert.Equal(t, FrameSize{Width: 1080, Height: 1920}, cfg.Size)

	require.NoError(t, cfg.ApplyPreset("4:5"))
	assert.Equal(t, "1080x1350", cfg.Size.String())

	assert.ErrorIs(t, cfg.ApplyPreset("21:9"), errs.ErrInvalidArgument)
}

func TestParseSize(t *testing.T) {
	size, err := ParseSize("640X360")
	require.NoError(t, err)
	assert.Equal(t, FrameSize{Width: 640, Height: 360}, size)

	_, err = ParseSize("wide")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = ParseSize("0x10")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}
