package system

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLatest(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp3")
	fresh := filepath.Join(dir, "fresh.WAV")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	now := time.Now()
	require.NoError(t, os.Chtimes(old, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(fresh, now, now))
	require.NoError(t, os.Chtimes(other, now.Add(time.Hour), now.Add(time.Hour)))

	got, err := FindLatestAudio(dir)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)

	_, err = FindLatest(dir, []string{".flac"})
	assert.Error(t, err)
}

func TestParseProbeDuration(t *testing.T) {
	d, err := ParseProbeDuration(`{"streams":[],"format":{"filename":"a.mp3","duration":"12.480000"}}`)
	require.NoError(t, err)
	assert.InDelta(t, 12.48, d, 1e-9)

	_, err = ParseProbeDuration(`{"format":{}}`)
	assert.Error(t, err)

	_, err = ParseProbeDuration(`not json`)
	assert.Error(t, err)
}

func TestPickEncoder(t *testing.T) {
	assert.Equal(t, "h264_nvenc", pickEncoder(" V....D h264_nvenc  NVIDIA NVENC H.264 encoder"))
	assert.Equal(t, "h264_videotoolbox", pickEncoder("h264_nvenc\nh264_videotoolbox"))
	assert.Equal(t, "libx264", pickEncoder(" V....D libx264 libx264 H.264"))
}

func TestRecommendedWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, RecommendedWorkers(0), 1)
	assert.GreaterOrEqual(t, RecommendedWorkers(64<<20), 1)
	// a working set larger than any host still yields one worker
	assert.Equal(t, 1, RecommendedWorkers(1<<62))
}

func TestImagePoolReusesBySize(t *testing.T) {
	pool := NewImagePool()

	img := pool.Get(image.Rect(0, 0, 4, 3))
	require.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
	assert.Len(t, img.Pix, 4*3*4)
	pool.Put(img)

	shifted := pool.Get(image.Rect(10, 10, 14, 13))
	assert.Equal(t, image.Rect(10, 10, 14, 13), shifted.Bounds())
	assert.Len(t, shifted.Pix, 4*3*4)

	other := pool.Get(image.Rect(0, 0, 2, 2))
	assert.Len(t, other.Pix, 2*2*4)

	pool.Put(nil)
}
