package timeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/kenburns/internal/errs"
)

// SegmentJob describes one segment to assemble. Load resolves its images and runs on the
// worker that assembles the segment.
type SegmentJob struct {
	ID       string
	Duration float64
	Load     func(ctx context.Context) ([]ImageSource, error)
}

// BuildSegments assembles jobs on up to workers goroutines and returns the segments in job
// order. The first fatal error cancels the remaining jobs; every segment built so far is
// released and only that error is returned. A segment left without images fails the whole
// timeline with ErrNoRenderableContent.
func (a *Assembler) BuildSegments(ctx context.Context, jobs []SegmentJob, workers int) ([]*SegmentClip, error) {
	if workers < 1 {
		workers = 1
	}
	segments := make([]*SegmentClip, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			images, err := job.Load(gctx)
			if err != nil {
				return fmt.Errorf("load segment %s: %w", job.ID, err)
			}
			seg, err := a.MakeSegment(gctx, job.ID, images, job.Duration)
			if errors.Is(err, errs.ErrEmptySegment) {
				return &errs.Error{Kind: errs.ErrNoRenderableContent, Op: "buildSegments", Segment: job.ID, Err: err}
			}
			if err != nil {
				return err
			}
			segments[i] = seg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, s := range segments {
			if s != nil {
				s.Release()
			}
		}
		return nil, err
	}
	return segments, nil
}
