package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/kenburns/internal/clip"
	"github.com/ivlev/kenburns/internal/errs"
	"github.com/ivlev/kenburns/internal/system"
	"github.com/ivlev/kenburns/internal/timeline"
)

// FrameEncoder renders every frame in-process and pipes them to ffmpeg as raw RGBA.
type FrameEncoder struct {
	Encoder string
	Quality int
	// Workers is how many frames are computed concurrently.
	Workers int
	Log     *logrus.Entry
}

// Command builds the ffmpeg invocation reading frames from stdin.
func (e *FrameEncoder) Command(final *timeline.FinalClip, output string) *ffmpeg.Stream {
	video := ffmpeg.Input("pipe:0", ffmpeg.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   "rgba",
		"s":         final.Size().String(),
		"framerate": strconv.Itoa(final.FPS()),
	})
	kw := outputArgs(e.Encoder, e.Quality)
	streams := withAudio(video, final.Audio, final.AudioDuration, kw)
	return ffmpeg.Output(streams, output, kw).OverWriteOutput()
}

func (e *FrameEncoder) Render(ctx context.Context, final *timeline.FinalClip, output string) (*Result, error) {
	if err := ensureDir(output); err != nil {
		return nil, err
	}
	args := e.Command(final, output).GetArgs()

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	if err := e.WriteFrames(ctx, final, stdin); err != nil {
		stdin.Close()
		cmd.Wait()
		return nil, fmt.Errorf("write frames: %w", err)
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg wait error: %w: %s", err, tail(out.String(), 2000))
	}

	if e.Log != nil {
		e.Log.WithFields(logrus.Fields{"frames": final.FrameCount(), "output": output}).Info("video encoded")
	}
	return &Result{Success: true, OutputLocation: output, Duration: final.Duration(), Frames: final.FrameCount()}, nil
}

// WriteFrames streams every frame of c to w in order. Frames are computed in batches of
// Workers; a batch is written once all of it is ready. Every frame must be exactly c.Size(),
// ffmpeg reads the stream as fixed-size raw frames.
func (e *FrameEncoder) WriteFrames(ctx context.Context, c clip.Clip, w io.Writer) error {
	workers := max(1, e.Workers)
	total := c.FrameCount()
	size := c.Size()
	want := image.Pt(size.Width, size.Height)
	batch := make([]*image.RGBA, workers)

	for start := 0; start < total; start += workers {
		n := min(workers, total-start)

		g, gctx := errgroup.WithContext(ctx)
		for k := 0; k < n; k++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				frame, err := c.Frame(start + k)
				if err != nil {
					return err
				}
				batch[k] = frame
				if got := frame.Bounds().Size(); got != want {
					return errs.InvalidArgument("writeFrames", "clip %s frame %d is %dx%d, want %v", c.ID(), start+k, got.X, got.Y, size)
				}
				return nil
			})
		}
		err := g.Wait()
		if err == nil {
			for k := 0; k < n && err == nil; k++ {
				err = writeRawRGBA(w, batch[k])
			}
		}
		for k := 0; k < n; k++ {
			if batch[k] != nil {
				system.PutImage(batch[k])
				batch[k] = nil
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeRawRGBA(w io.Writer, img *image.RGBA) error {
	bounds := img.Bounds()
	if img.Stride != bounds.Dx()*4 || bounds.Min != (image.Point{}) {
		packed := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(packed, packed.Bounds(), img, bounds.Min, draw.Src)
		img = packed
	}
	_, err := w.Write(img.Pix)
	return err
}
