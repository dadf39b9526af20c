package timeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/ivlev/kenburns/internal/clip"
	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/errs"
)

// AudioRef is a resolved audio track. Path is whatever the render sink can open.
type AudioRef struct {
	Path     string
	Duration float64
	// Temp marks a downloaded copy owned by the render; Release deletes it.
	Temp bool
}

// Release removes a downloaded track. Local files are left alone. Safe to call twice.
func (a *AudioRef) Release() {
	if a == nil || !a.Temp {
		return
	}
	os.Remove(a.Path)
	a.Temp = false
}

// TrimAudio is how much of an audio track plays against a video of the given length.
func TrimAudio(audio, video float64) float64 {
	return min(audio, video)
}

// FinalClip is the whole timeline plus its audio.
type FinalClip struct {
	*clip.Sequence
	Audio *AudioRef
	// AudioDuration is how much of the audio plays: trimmed to the video when longer,
	// untouched when shorter.
	AudioDuration float64
}

// RenderResult is what a render sink consumes.
type RenderResult struct {
	Final      *FinalClip
	Duration   float64
	Resolution config.FrameSize
	FPS        int
}

func (f *FinalClip) Result() RenderResult {
	return RenderResult{
		Final:      f,
		Duration:   f.Duration(),
		Resolution: f.Size(),
		FPS:        f.FPS(),
	}
}

// ImageClips walks the timeline and returns every image clip in play order.
func (f *FinalClip) ImageClips() []*clip.ImageClip {
	var out []*clip.ImageClip
	collectImageClips(f.Clips(), &out)
	return out
}

func collectImageClips(parts []clip.Clip, out *[]*clip.ImageClip) {
	for _, c := range parts {
		switch v := c.(type) {
		case *clip.ImageClip:
			*out = append(*out, v)
		case *SegmentClip:
			collectImageClips(v.Clips(), out)
		case *clip.Sequence:
			collectImageClips(v.Clips(), out)
		}
	}
}

// Combine concatenates parts in order and reconciles the audio against the video length.
// Audio longer than the video is trimmed to it; shorter audio is left as-is and the
// video runs silent past its end.
func Combine(parts []clip.Clip, audio *AudioRef, size config.FrameSize, fps int) (*FinalClip, error) {
	const op = "combine"
	if len(parts) == 0 {
		return nil, &errs.Error{Kind: errs.ErrNoRenderableContent, Op: op, Err: errors.New("no segments")}
	}
	for i, p := range parts {
		if p == nil || p.FrameCount() == 0 {
			id := fmt.Sprintf("#%d", i)
			if p != nil {
				id = p.ID()
			}
			return nil, &errs.Error{Kind: errs.ErrNoRenderableContent, Op: op, Segment: id, Err: errors.New("segment has no frames")}
		}
		if p.Size() != size || p.FPS() != fps {
			return nil, &errs.Error{
				Kind: errs.ErrInvalidArgument, Op: op, Segment: p.ID(),
				Err: fmt.Errorf("segment is %v@%d, render is %v@%d", p.Size(), p.FPS(), size, fps),
			}
		}
	}

	seq, err := clip.NewSequence("final", parts)
	if err != nil {
		return nil, err
	}
	final := &FinalClip{Sequence: seq}

	if audio != nil {
		if audio.Duration < 0 {
			return nil, errs.InvalidArgument(op, "audio %s has negative duration %v", audio.Path, audio.Duration)
		}
		final.Audio = audio
		final.AudioDuration = TrimAudio(audio.Duration, seq.Duration())
	}
	return final, nil
}

// Release drops the frames and any downloaded audio.
func (f *FinalClip) Release() {
	f.Sequence.Release()
	f.Audio.Release()
}

// Flatten returns a timeline that plays the image clips directly, without the segment
// level. Frames and audio are unchanged. On error f is released.
func (f *FinalClip) Flatten() (*FinalClip, error) {
	images := f.ImageClips()
	parts := make([]clip.Clip, len(images))
	for i, c := range images {
		parts[i] = c
	}
	flat, err := Combine(parts, f.Audio, f.Size(), f.FPS())
	if err != nil {
		f.Release()
		return nil, err
	}
	return flat, nil
}
