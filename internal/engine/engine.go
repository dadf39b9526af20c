package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ivlev/kenburns/internal/clip"
	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/effects"
	"github.com/ivlev/kenburns/internal/errs"
	"github.com/ivlev/kenburns/internal/manifest"
	"github.com/ivlev/kenburns/internal/source"
	"github.com/ivlev/kenburns/internal/storage"
	"github.com/ivlev/kenburns/internal/timeline"
	"github.com/ivlev/kenburns/internal/video"
)

// AudioSource resolves the manifest's audio ref into a local, measured file.
type AudioSource interface {
	Resolve(ctx context.Context, ref string) (*timeline.AudioRef, error)
}

// ResolvedAudio hands out a track that was resolved before the project was built.
type ResolvedAudio struct {
	Audio *timeline.AudioRef
}

func (r ResolvedAudio) Resolve(ctx context.Context, ref string) (*timeline.AudioRef, error) {
	if r.Audio == nil {
		return nil, fmt.Errorf("audio %s was not resolved", ref)
	}
	return r.Audio, nil
}

// VideoProject renders one manifest. Every collaborator is handed in at construction.
type VideoProject struct {
	Config   *config.Config
	Manifest *manifest.Manifest
	Images   source.Resolver
	Audio    AudioSource
	Sink     video.Sink
	// Joiner glues rendered segments together in CombineSegments. A ConcatJoiner when nil.
	Joiner video.Joiner
	// Store receives the finished video when Config.Storage.Bucket is set.
	Store storage.ObjectStore
	Log   *logrus.Entry

	skipped int
}

// Report summarises a run. Location is the local path, or the s3:// URI after upload.
type Report struct {
	timeline.RenderResult
	Location string
	Frames   int
	Segments int
	Skipped  int
	Build    time.Duration
	Encode   time.Duration
	Total    time.Duration
}

func NewVideoProject(cfg *config.Config, m *manifest.Manifest, images source.Resolver, audio AudioSource, sink video.Sink) *VideoProject {
	return &VideoProject{
		Config:   cfg,
		Manifest: m,
		Images:   images,
		Audio:    audio,
		Sink:     sink,
		Log:      logrus.WithField("component", "engine"),
	}
}

func (p *VideoProject) log() *logrus.Entry {
	if p.Log == nil {
		p.Log = logrus.WithField("component", "engine")
	}
	return p.Log.WithField("project", p.Manifest.ProjectID)
}

// Build assembles the final clip: every segment in parallel, then the combine step with the
// audio track. The caller owns the result and must Release it, which also deletes a
// downloaded audio track.
func (p *VideoProject) Build(ctx context.Context) (*timeline.FinalClip, error) {
	asm, err := p.assembler()
	if err != nil {
		return nil, err
	}
	audio, err := p.resolveAudio(ctx)
	if err != nil {
		return nil, err
	}
	final, err := p.build(ctx, asm, p.Manifest.Segments, audio)
	if err != nil {
		audio.Release()
		return nil, err
	}
	p.checkDuration(final.Duration(), final.Audio)
	return final, nil
}

// Run builds the timeline, encodes it through the sink and uploads the result when a bucket
// is configured.
func (p *VideoProject) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	final, err := p.Build(ctx)
	if err != nil {
		return nil, err
	}
	defer final.Release()
	built := time.Now()

	res, err := p.encode(ctx, final, p.Config.OutputPath)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RenderResult: final.Result(),
		Location:     res.OutputLocation,
		Frames:       final.FrameCount(),
		Segments:     len(p.Manifest.Segments),
		Skipped:      p.skipped,
		Build:        built.Sub(start),
		Encode:       time.Since(built),
	}
	if p.uploads() {
		loc, err := p.upload(ctx, res.OutputLocation, storage.VideoKey(p.Manifest.ProjectID))
		if err != nil {
			return nil, err
		}
		report.Location = loc.String()
	}
	p.finish(report, start, "render complete")
	return report, nil
}

// RenderSegment renders a single segment, without audio, to SegmentPath. With a bucket
// configured the file is uploaded under storage.SegmentKey and the local copy removed, ready
// for CombineSegments on another worker.
func (p *VideoProject) RenderSegment(ctx context.Context, id string) (*Report, error) {
	start := time.Now()
	asm, err := p.assembler()
	if err != nil {
		return nil, err
	}
	seg, ok := p.Manifest.Segment(id)
	if !ok {
		return nil, errs.InvalidArgument("renderSegment", "project %s has no segment %q", p.Manifest.ProjectID, id)
	}

	final, err := p.build(ctx, asm, []manifest.Segment{seg}, nil)
	if err != nil {
		return nil, err
	}
	defer final.Release()
	built := time.Now()

	res, err := p.encode(ctx, final, p.SegmentPath(id))
	if err != nil {
		return nil, err
	}

	report := &Report{
		RenderResult: final.Result(),
		Location:     res.OutputLocation,
		Frames:       final.FrameCount(),
		Segments:     1,
		Skipped:      p.skipped,
		Build:        built.Sub(start),
		Encode:       time.Since(built),
	}
	if p.uploads() {
		loc, err := p.upload(ctx, res.OutputLocation, storage.SegmentKey(p.Manifest.ProjectID, id))
		if err != nil {
			return nil, err
		}
		os.Remove(res.OutputLocation)
		report.Location = loc.String()
	}
	p.finish(report, start, "segment rendered")
	return report, nil
}

// CombineSegments joins segments rendered earlier by RenderSegment, in manifest order, adds
// the audio trimmed to the video and writes Config.OutputPath. Segments come from the bucket
// when one is configured, from SegmentPath otherwise. A missing segment fails the whole video.
func (p *VideoProject) CombineSegments(ctx context.Context) (*Report, error) {
	const op = "combineSegments"
	start := time.Now()
	cfg := p.Config
	if err := p.validate(); err != nil {
		return nil, err
	}
	segments := p.Manifest.Segments
	if len(segments) == 0 {
		return nil, &errs.Error{Kind: errs.ErrNoRenderableContent, Op: op, Err: errors.New("no segments")}
	}

	tmp, err := os.MkdirTemp(cfg.WorkDir, "combine-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	parts := make([]string, 0, len(segments))
	frames := 0
	for i, seg := range segments {
		span, err := seg.Span()
		if err != nil {
			return nil, err
		}
		frames += timeline.SegmentFrames(span, cfg.FPS)
		part, err := p.fetchSegment(ctx, tmp, i, string(seg.ID))
		if err != nil {
			return nil, &errs.Error{Kind: errs.ErrNoRenderableContent, Op: op, Segment: string(seg.ID), Err: err}
		}
		parts = append(parts, part)
	}
	duration := float64(frames) / float64(cfg.FPS)

	audio, err := p.resolveAudio(ctx)
	if err != nil {
		return nil, err
	}
	defer audio.Release()
	var audioDuration float64
	if audio != nil {
		audioDuration = timeline.TrimAudio(audio.Duration, duration)
	}
	p.checkDuration(duration, audio)
	built := time.Now()

	res, err := p.joiner().Join(ctx, parts, audio, audioDuration, cfg.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("combine: joiner reported failure for %s", cfg.OutputPath)
	}

	report := &Report{
		RenderResult: timeline.RenderResult{Duration: duration, Resolution: cfg.Size, FPS: cfg.FPS},
		Location:     res.OutputLocation,
		Frames:       frames,
		Segments:     len(segments),
		Build:        built.Sub(start),
		Encode:       time.Since(built),
	}
	if p.uploads() {
		loc, err := p.upload(ctx, res.OutputLocation, storage.VideoKey(p.Manifest.ProjectID))
		if err != nil {
			return nil, err
		}
		report.Location = loc.String()
	}
	p.finish(report, start, "video combined")
	return report, nil
}

// SegmentPath is where RenderSegment writes a segment locally.
func (p *VideoProject) SegmentPath(id string) string {
	return filepath.Join(p.Config.WorkDir, filepath.FromSlash(storage.SegmentKey(p.Manifest.ProjectID, id)))
}

func (p *VideoProject) validate() error {
	if err := p.Config.Validate(); err != nil {
		return err
	}
	return p.Manifest.Validate()
}

func (p *VideoProject) assembler() (*timeline.Assembler, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	cfg := p.Config
	curve, err := effects.NewCurve(cfg.Curve, cfg.Effect, cfg.FPS)
	if err != nil {
		return nil, err
	}
	return &timeline.Assembler{
		Curve:            curve,
		Size:             cfg.Size,
		FPS:              cfg.FPS,
		MinImageDuration: cfg.MinImageDuration,
		Debug:            cfg.Debug,
		Log:              p.log().WithField("component", "assembler"),
	}, nil
}

// build assembles segs and combines them with audio. On error nothing built is retained; the
// audio stays with the caller.
func (p *VideoProject) build(ctx context.Context, asm *timeline.Assembler, segs []manifest.Segment, audio *timeline.AudioRef) (*timeline.FinalClip, error) {
	cfg := p.Config
	jobs := make([]timeline.SegmentJob, 0, len(segs))
	for _, seg := range segs {
		span, err := seg.Span()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, timeline.SegmentJob{
			ID:       string(seg.ID),
			Duration: span,
			Load:     p.loader(seg.Refs()),
		})
	}

	segments, err := asm.BuildSegments(ctx, jobs, p.workers())
	if err != nil {
		return nil, err
	}

	parts := make([]clip.Clip, len(segments))
	p.skipped = 0
	for i, s := range segments {
		parts[i] = s
		p.skipped += len(s.Skipped)
	}
	final, err := timeline.Combine(parts, audio, cfg.Size, cfg.FPS)
	if err != nil {
		for _, s := range segments {
			s.Release()
		}
		return nil, err
	}
	if cfg.SinglePass {
		// Flatten releases final when it fails.
		final, err = final.Flatten()
		if err != nil {
			return nil, err
		}
	}
	return final, nil
}

func (p *VideoProject) encode(ctx context.Context, final *timeline.FinalClip, output string) (*video.Result, error) {
	res, err := p.Sink.Render(ctx, final, output)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("render: sink reported failure for %s", output)
	}
	return res, nil
}

func (p *VideoProject) finish(report *Report, start time.Time, msg string) {
	report.Total = time.Since(start)
	entry := p.log().WithFields(logrus.Fields{
		"duration":   report.Duration,
		"resolution": report.Resolution.String(),
		"output":     report.Location,
	})
	if p.Config.ShowStats {
		entry = entry.WithFields(logrus.Fields{
			"build_version": p.Config.BuildVersion,
			"frames":        report.Frames,
			"segments":      report.Segments,
			"skipped":       report.Skipped,
			"build_s":       report.Build.Seconds(),
			"encode_s":      report.Encode.Seconds(),
			"total_s":       report.Total.Seconds(),
			"effective_fps": float64(report.Frames) / report.Total.Seconds(),
		})
	}
	entry.Info(msg)
}

// loader resolves refs on the segment's worker. Per-image failures travel in ImageSource.Err;
// only cancellation aborts the load.
func (p *VideoProject) loader(refs []string) func(ctx context.Context) ([]timeline.ImageSource, error) {
	return func(ctx context.Context) ([]timeline.ImageSource, error) {
		images := make([]timeline.ImageSource, 0, len(refs))
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			img, err := p.Images.Resolve(ctx, ref)
			images = append(images, timeline.ImageSource{Ref: ref, Raster: img, Err: err})
		}
		return images, nil
	}
}

func (p *VideoProject) resolveAudio(ctx context.Context) (*timeline.AudioRef, error) {
	ref := p.Manifest.Audio()
	if ref == "" {
		return nil, nil
	}
	if p.Audio == nil {
		p.log().WithField("audio", ref).Warn("no audio resolver configured, rendering silent")
		return nil, nil
	}
	audio, err := p.Audio.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve audio: %w", err)
	}
	return audio, nil
}

func (p *VideoProject) checkDuration(d float64, audio *timeline.AudioRef) {
	log := p.log()
	if limit := p.Config.MaxVideoDuration; limit > 0 && d > limit {
		log.WithFields(logrus.Fields{"duration": d, "limit": limit}).Warn("video exceeds max duration")
	}
	if audio != nil && audio.Duration < d {
		log.WithFields(logrus.Fields{"audio": audio.Duration, "video": d}).Warn("audio shorter than video, tail is silent")
	}
}

func (p *VideoProject) workers() int {
	if p.Config.Workers > 0 {
		return p.Config.Workers
	}
	return 1
}

func (p *VideoProject) joiner() video.Joiner {
	if p.Joiner == nil {
		p.Joiner = &video.ConcatJoiner{WorkDir: p.Config.WorkDir, Log: p.log()}
	}
	return p.Joiner
}

func (p *VideoProject) uploads() bool {
	return p.Store != nil && p.Config.Storage.Bucket != ""
}

func (p *VideoProject) upload(ctx context.Context, path, key string) (storage.Location, error) {
	loc := storage.Location{Bucket: p.Config.Storage.Bucket, Key: key}
	f, err := os.Open(path)
	if err != nil {
		return loc, fmt.Errorf("open rendered video: %w", err)
	}
	defer f.Close()

	if err := p.Store.Put(ctx, loc.Bucket, loc.Key, f, "video/mp4"); err != nil {
		return loc, fmt.Errorf("upload %s: %w", loc, err)
	}
	p.log().WithField("location", loc.String()).Info("video uploaded")
	return loc, nil
}

// fetchSegment returns a local path for the i-th rendered segment, downloading it into dir
// when segments live in the bucket.
func (p *VideoProject) fetchSegment(ctx context.Context, dir string, i int, id string) (string, error) {
	if !p.uploads() {
		path := p.SegmentPath(id)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("segment not rendered: %w", err)
		}
		return path, nil
	}

	loc := storage.Location{Bucket: p.Config.Storage.Bucket, Key: storage.SegmentKey(p.Manifest.ProjectID, id)}
	body, err := p.Store.Get(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", loc, err)
	}
	defer body.Close()

	path := filepath.Join(dir, fmt.Sprintf("%04d_segment.mp4", i))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("download %s: %w", loc, err)
	}
	return path, f.Close()
}
