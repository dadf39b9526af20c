package timeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/kenburns/internal/clip"
	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/effects"
	"github.com/ivlev/kenburns/internal/errs"
)

// ImageSource is one image of a segment after resolution. A resolution failure is
// carried in Err and handled like a corrupt raster.
type ImageSource struct {
	Ref    string
	Raster image.Image
	Err    error
}

// Assembler turns the images of a segment into a SegmentClip.
type Assembler struct {
	Curve effects.Curve
	Size  config.FrameSize
	FPS   int
	// MinImageDuration, when positive, caps how many images a segment uses so each one
	// stays on screen at least this long.
	MinImageDuration float64
	Debug            bool
	Log              *logrus.Entry
}

// SegmentClip is the concatenation of the image clips of one manifest segment.
type SegmentClip struct {
	*clip.Sequence
	// Requested is the duration the caller asked for. Duration() is the frame-grid value.
	Requested float64
	Skipped   []string
}

// ImageClips returns the parts in play order.
func (s *SegmentClip) ImageClips() []*clip.ImageClip {
	out := make([]*clip.ImageClip, 0, len(s.Clips()))
	for _, c := range s.Clips() {
		if ic, ok := c.(*clip.ImageClip); ok {
			out = append(out, ic)
		}
	}
	return out
}

// SplitFrames divides total frames evenly over n images. Every share is
// floor(total/n); the remainder goes to the last image.
func SplitFrames(total, n int) []int {
	if n <= 0 {
		return nil
	}
	shares := make([]int, n)
	per := total / n
	for i := range shares {
		shares[i] = per
	}
	shares[n-1] = total - per*(n-1)
	return shares
}

// SegmentFrames is the frame count a segment of the given duration occupies.
func SegmentFrames(duration float64, fps int) int {
	return max(1, int(math.Round(duration*float64(fps))))
}

func (a *Assembler) log() *logrus.Entry {
	if a.Log != nil {
		return a.Log
	}
	return logrus.NewEntry(logrus.StandardLogger()).WithField("component", "assembler")
}

// MakeSegment builds the clip of segment id from images over duration seconds.
//
// Images that fail to synthesize are skipped with a warning. Their frames are not
// redistributed: the last image that did synthesize is stretched to absorb them, so the
// segment keeps round(duration*fps) frames. If no image survives the result is
// ErrEmptySegment.
func (a *Assembler) MakeSegment(ctx context.Context, id string, images []ImageSource, duration float64) (*SegmentClip, error) {
	const op = "makeSegment"
	if !(duration > 0) || math.IsInf(duration, 0) {
		return nil, errs.WithSegment(errs.InvalidArgument(op, "duration must be positive, got %v", duration), errs.ErrInvalidArgument, id)
	}
	if a.FPS <= 0 {
		return nil, errs.InvalidArgument(op, "fps must be positive, got %d", a.FPS)
	}
	if len(images) == 0 {
		return nil, &errs.Error{Kind: errs.ErrEmptySegment, Op: op, Segment: id, Err: errors.New("no images")}
	}
	log := a.log().WithField("segment", id)

	total := SegmentFrames(duration, a.FPS)
	images = a.limitImages(log, images, duration, total)
	shares := SplitFrames(total, len(images))

	var (
		clips     []*clip.ImageClip
		skipped   []string
		shortfall int
		lastErr   error
	)
	release := func() {
		for _, c := range clips {
			c.Release()
		}
	}

	for i, src := range images {
		if err := ctx.Err(); err != nil {
			release()
			return nil, err
		}
		entry := log.WithFields(logrus.Fields{"image": src.Ref, "index": i})

		c, err := a.synthesize(id, i, src, shares[i])
		if err != nil {
			if !errors.Is(err, errs.ErrInvalidInput) {
				release()
				return nil, errs.WithSegment(err, errs.ErrInvalidArgument, id)
			}
			entry.WithError(err).Warn("skipping image")
			skipped = append(skipped, src.Ref)
			shortfall += shares[i]
			lastErr = err
			continue
		}
		if c.Upscaled() {
			entry.Warn("source smaller than render size, upscaling")
		}
		clips = append(clips, c)
	}

	if len(clips) == 0 {
		return nil, &errs.Error{Kind: errs.ErrEmptySegment, Op: op, Segment: id, Err: lastErr}
	}
	if shortfall > 0 {
		last := clips[len(clips)-1]
		stretched, err := last.WithFrames(last.FrameCount() + shortfall)
		if err != nil {
			release()
			return nil, errs.WithSegment(err, errs.ErrInvalidArgument, id)
		}
		clips[len(clips)-1] = stretched
		log.WithFields(logrus.Fields{"image": last.ID(), "frames": shortfall}).Warn("last image absorbs skipped frames")
	}

	parts := make([]clip.Clip, len(clips))
	for i, c := range clips {
		parts[i] = c
	}
	seq, err := clip.NewSequence(id, parts)
	if err != nil {
		release()
		return nil, errs.WithSegment(err, errs.ErrInvalidArgument, id)
	}

	log.WithFields(logrus.Fields{
		"frames":  seq.FrameCount(),
		"images":  len(clips),
		"skipped": len(skipped),
	}).Info("segment ready")

	return &SegmentClip{Sequence: seq, Requested: duration, Skipped: skipped}, nil
}

func (a *Assembler) synthesize(segment string, i int, src ImageSource, frames int) (*clip.ImageClip, error) {
	if src.Err != nil {
		return nil, errs.WithImage(src.Err, errs.ErrInvalidInput, src.Ref)
	}
	if src.Raster == nil {
		return nil, &errs.Error{Kind: errs.ErrInvalidInput, Op: "resolve", Image: src.Ref, Err: errors.New("no raster")}
	}
	c, err := clip.MakeImageClipFrames(fmt.Sprintf("%s/%d", segment, i), src.Raster, frames, a.Curve, a.Size, a.FPS, clip.WithLabels(a.Debug))
	if err != nil {
		return nil, errs.WithImage(err, errs.ErrInvalidInput, src.Ref)
	}
	return c, nil
}

// limitImages drops trailing images that would get less than MinImageDuration or less
// than one frame.
func (a *Assembler) limitImages(log *logrus.Entry, images []ImageSource, duration float64, total int) []ImageSource {
	limit := len(images)
	if a.MinImageDuration > 0 {
		limit = min(limit, max(1, int(math.Floor(duration/a.MinImageDuration))))
	}
	limit = min(limit, total)
	if limit < len(images) {
		log.WithFields(logrus.Fields{"images": len(images), "used": limit}).Warn("segment too short for all images")
		return images[:limit]
	}
	return images
}
