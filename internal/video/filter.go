package video

import (
	"bufio"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/kenburns/internal/clip"
	"github.com/ivlev/kenburns/internal/effects"
	"github.com/ivlev/kenburns/internal/timeline"
)

// FilterEncoder hands the effect to ffmpeg: each image clip's pre-scaled raster is
// encoded through a zoompan expression of the same curve and frame count, and the parts
// are joined with the concat demuxer.
type FilterEncoder struct {
	Encoder string
	Quality int
	Workers int
	WorkDir string
	Log     *logrus.Entry
}

// ClipCommand encodes one image clip from its still.
func (e *FilterEncoder) ClipCommand(still, part string, c *clip.ImageClip) *ffmpeg.Stream {
	size := c.Size()
	filter := effects.NewZoomPanEffect(c.Curve()).GenerateFilter(effects.SegmentParams{
		Width:  size.Width,
		Height: size.Height,
		FPS:    c.FPS(),
		Frames: c.FrameCount(),
	})
	kw := outputArgs(e.Encoder, e.Quality)
	kw["vf"] = filter
	kw["frames:v"] = strconv.Itoa(c.FrameCount())
	kw["r"] = strconv.Itoa(c.FPS())
	return ffmpeg.Input(still).Output(part, kw).OverWriteOutput()
}

// ConcatCommand joins the parts listed in list and adds the audio.
func (e *FilterEncoder) ConcatCommand(list string, final *timeline.FinalClip, output string) *ffmpeg.Stream {
	return concatCommand(list, final.Audio, final.AudioDuration, output)
}

func (e *FilterEncoder) Render(ctx context.Context, final *timeline.FinalClip, output string) (*Result, error) {
	if err := ensureDir(output); err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp(e.WorkDir, "kenburns-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	clips := final.ImageClips()
	parts := make([]string, len(clips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.Workers))
	for i, c := range clips {
		g.Go(func() error {
			still := filepath.Join(tmp, fmt.Sprintf("still_%04d.png", i))
			if err := writeStill(still, c); err != nil {
				return err
			}
			part := filepath.Join(tmp, fmt.Sprintf("part_%04d.mp4", i))
			if err := run(gctx, e.ClipCommand(still, part, c).GetArgs()); err != nil {
				return fmt.Errorf("encode %s: %w", c.ID(), err)
			}
			os.Remove(still)
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	list := filepath.Join(tmp, "inputs.txt")
	if err := WriteConcatList(list, parts); err != nil {
		return nil, err
	}
	if err := run(ctx, e.ConcatCommand(list, final, output).GetArgs()); err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}

	if e.Log != nil {
		e.Log.WithFields(logrus.Fields{"parts": len(parts), "output": output}).Info("video encoded")
	}
	return &Result{Success: true, OutputLocation: output, Duration: final.Duration(), Frames: final.FrameCount()}, nil
}

func writeStill(path string, c *clip.ImageClip) error {
	src := c.Source()
	if src == nil {
		return fmt.Errorf("clip %s was released", c.ID())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, src); err != nil {
		f.Close()
		return fmt.Errorf("write still %s: %w", path, err)
	}
	return f.Close()
}

// WriteConcatList writes a concat demuxer playlist with absolute paths.
func WriteConcatList(path string, parts []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, p := range parts {
		absPath, err := filepath.Abs(p)
		if err != nil {
			f.Close()
			return err
		}
		fmt.Fprintf(w, "file '%s'\n", absPath)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
