package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/kenburns/internal/api"
	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/engine"
	"github.com/ivlev/kenburns/internal/manifest"
	"github.com/ivlev/kenburns/internal/source"
	"github.com/ivlev/kenburns/internal/timeline"
)

func nullLog() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

func TestDirectoryManifest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	audio := &source.AudioResolver{Probe: func(string) (float64, error) { return 12, nil }}

	t.Run("image duration", func(t *testing.T) {
		m, narration, err := directoryManifest(context.Background(), options{imagesDir: dir, imageDuration: 2, audio: ""}, audio, nullLog())
		require.NoError(t, err)
		assert.Nil(t, narration)
		require.Len(t, m.Segments, 1)
		assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.jpg")}, m.Segments[0].Refs())
		span, err := m.Segments[0].Span()
		require.NoError(t, err)
		assert.Equal(t, 4.0, span)
	})

	t.Run("audio length", func(t *testing.T) {
		m, narration, err := directoryManifest(context.Background(), options{imagesDir: dir, imageDuration: 2, audio: "voice.mp3"}, audio, nullLog())
		require.NoError(t, err)
		assert.Equal(t, "voice.mp3", m.Audio())
		require.NotNil(t, narration)
		assert.Equal(t, 12.0, narration.Duration)

		// The render reuses the measured track instead of resolving it again.
		reused, err := engine.ResolvedAudio{Audio: narration}.Resolve(context.Background(), m.Audio())
		require.NoError(t, err)
		assert.Same(t, narration, reused)
		assert.Equal(t, 12.0, m.TotalDuration)
		assert.True(t, strings.HasPrefix(m.ProjectID, filepath.Base(dir)+"-"))
	})

	t.Run("explicit duration", func(t *testing.T) {
		m, narration, err := directoryManifest(context.Background(), options{imagesDir: dir, duration: 30, audio: "voice.mp3"}, audio, nullLog())
		require.NoError(t, err)
		assert.Equal(t, 30.0, m.TotalDuration)
		assert.Nil(t, narration)
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := directoryManifest(context.Background(), options{imagesDir: t.TempDir(), imageDuration: 1}, audio, nullLog())
		assert.Error(t, err)
	})
}

func TestFetchManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project_id: demo
segments:
  - id: intro
    start_time: 0
    end_time: 3
    images:
      - source_ref: a.png
audio_file: audio/voice.mp3
`), 0o644))

	m, err := fetchManifest(context.Background(), source.Fetcher{}, path)
	require.NoError(t, err)
	assert.Equal(t, "demo", m.ProjectID)
	assert.Equal(t, "s3:audio/voice.mp3", m.Audio())

	_, err = fetchManifest(context.Background(), source.Fetcher{}, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadManifestModes(t *testing.T) {
	cfg := config.Default()
	_, _, err := loadManifest(context.Background(), options{}, cfg, source.Fetcher{}, nil, nullLog())
	assert.ErrorContains(t, err, "nothing to render")

	_, _, err = loadManifest(context.Background(), options{projectID: "p1"}, cfg, source.Fetcher{}, nil, nullLog())
	assert.ErrorContains(t, err, "bucket")
}

func TestJobFor(t *testing.T) {
	job, err := jobFor(options{})
	require.NoError(t, err)
	assert.Equal(t, api.ActionVideo, job.Action)
	assert.Len(t, job.ID, 36)

	job, err = jobFor(options{segment: "intro"})
	require.NoError(t, err)
	assert.Equal(t, api.ActionSegment, job.Action)
	assert.Equal(t, "intro", job.Segment)

	job, err = jobFor(options{combine: true})
	require.NoError(t, err)
	assert.Equal(t, api.ActionCombine, job.Action)

	_, err = jobFor(options{segment: "intro", combine: true})
	assert.Error(t, err)
}

func TestConsoleOutput(t *testing.T) {
	cfg := config.Default()
	m := &manifest.Manifest{ProjectID: "demo", Segments: []manifest.Segment{{ID: "intro"}, {ID: "outro"}}}

	out := banner(cfg, m, api.Job{Action: api.ActionSegment, Segment: "outro"})
	assert.Contains(t, out, "[KEN BURNS: demo]")
	assert.Contains(t, out, "[*] Сегмент: outro из 2")
	assert.Contains(t, out, "[*] Разрешение: 1920x1080 @ 24 FPS")

	report := &engine.Report{
		RenderResult: timeline.RenderResult{Duration: 6, Resolution: cfg.Size, FPS: 24},
		Location:     "s3://media/videos/demo_final_video.mp4",
		Skipped:      1,
	}
	out = summary(api.Job{Action: api.ActionVideo}, report)
	assert.Contains(t, out, "[!] Пропущено изображений: 1")
	assert.Contains(t, out, "[+++] Успех! Результат: s3://media/videos/demo_final_video.mp4 (6.00s, 1920x1080 @ 24 FPS)")

	out = summary(api.Job{Action: api.ActionSegment, Segment: "intro"}, &engine.Report{Location: "seg.mp4"})
	assert.Contains(t, out, "[+++] Успех! Сегмент intro: seg.mp4")
	assert.NotContains(t, out, "[!]")
}
