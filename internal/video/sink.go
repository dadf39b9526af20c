package video

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/timeline"
)

// Result is what a sink reports back once the video is written.
type Result struct {
	Success        bool
	OutputLocation string
	Duration       float64
	Frames         int
}

// Sink encodes a finished timeline into a video file.
type Sink interface {
	Render(ctx context.Context, final *timeline.FinalClip, output string) (*Result, error)
}

// New picks the sink for the configured backend.
func New(cfg config.Config, log *logrus.Entry) (Sink, error) {
	switch cfg.Backend {
	case config.BackendFrames, "":
		return &FrameEncoder{Encoder: cfg.VideoEncoder, Quality: cfg.Quality, Workers: cfg.FrameWorkers, Log: log}, nil
	case config.BackendFilter:
		return &FilterEncoder{Encoder: cfg.VideoEncoder, Quality: cfg.Quality, Workers: cfg.Workers, WorkDir: cfg.WorkDir, Log: log}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// QualityArgs maps a quality setting to encoder flags. Zero selects the encoder's
// default level.
func QualityArgs(encoder string, quality int) ffmpeg.KwArgs {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox ignores -q:v on many builds; use a bitrate instead. 75 -> 7.5 Mbit/s.
		if quality == 0 {
			quality = 75
		}
		return ffmpeg.KwArgs{"b:v": fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		if quality == 0 {
			quality = 23
		}
		return ffmpeg.KwArgs{"cq": strconv.Itoa(quality)}
	default:
		if quality == 0 {
			quality = 23
		}
		return ffmpeg.KwArgs{"crf": strconv.Itoa(quality), "preset": "medium"}
	}
}

func encoderName(encoder string) string {
	if encoder == "" {
		return "libx264"
	}
	return encoder
}

// outputArgs are the flags shared by every encoded output.
func outputArgs(encoder string, quality int) ffmpeg.KwArgs {
	kw := ffmpeg.KwArgs{
		"c:v":     encoderName(encoder),
		"pix_fmt": "yuv420p",
	}
	for k, v := range QualityArgs(encoderName(encoder), quality) {
		kw[k] = v
	}
	return kw
}

// withAudio adds the narration input, trimmed to the reconciled length.
func withAudio(video *ffmpeg.Stream, audio *timeline.AudioRef, duration float64, kw ffmpeg.KwArgs) []*ffmpeg.Stream {
	streams := []*ffmpeg.Stream{video}
	if audio == nil || audio.Path == "" {
		return streams
	}
	track := ffmpeg.Input(audio.Path, ffmpeg.KwArgs{"t": fmt.Sprintf("%.6f", duration)})
	kw["c:a"] = "aac"
	return append(streams, track)
}

// concatCommand joins the parts listed in list without re-encoding the video.
func concatCommand(list string, audio *timeline.AudioRef, duration float64, output string) *ffmpeg.Stream {
	video := ffmpeg.Input(list, ffmpeg.KwArgs{"f": "concat", "safe": "0"})
	kw := ffmpeg.KwArgs{"c:v": "copy"}
	streams := withAudio(video, audio, duration, kw)
	return ffmpeg.Output(streams, output, kw).OverWriteOutput()
}

func ensureDir(output string) error {
	if dir := filepath.Dir(output); dir != "" {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// run executes ffmpeg and folds its output into the error.
func run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(out.String(), 2000))
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
