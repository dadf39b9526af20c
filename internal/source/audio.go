package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ivlev/kenburns/internal/storage"
	"github.com/ivlev/kenburns/internal/system"
	"github.com/ivlev/kenburns/internal/timeline"
)

// AudioResolver turns an audio ref into a local file with a known duration. Remote refs
// are downloaded into WorkDir first and marked Temp, so releasing the ref deletes them.
type AudioResolver struct {
	Fetcher Fetcher
	WorkDir string
	// Probe measures a local media file; system.GetAudioDuration when nil.
	Probe func(path string) (float64, error)
}

func (a *AudioResolver) Resolve(ctx context.Context, ref string) (*timeline.AudioRef, error) {
	audio := &timeline.AudioRef{Path: Local{Root: a.Fetcher.Root}.Path(ref)}
	if IsURL(ref) || storage.IsS3(ref) {
		local, err := a.download(ctx, ref)
		if err != nil {
			return nil, err
		}
		audio.Path, audio.Temp = local, true
	}

	probe := a.Probe
	if probe == nil {
		probe = system.GetAudioDuration
	}
	duration, err := probe(audio.Path)
	if err != nil {
		audio.Release()
		return nil, fmt.Errorf("audio %s: %w", ref, err)
	}
	audio.Duration = duration
	return audio, nil
}

func (a *AudioResolver) download(ctx context.Context, ref string) (string, error) {
	body, err := a.Fetcher.Open(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("fetch audio %s: %w", ref, err)
	}
	defer body.Close()

	name, _, _ := strings.Cut(ref, "?")
	f, err := os.CreateTemp(a.WorkDir, "audio-*"+path.Ext(name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("download audio %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}
