package video

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/ivlev/kenburns/internal/timeline"
)

// Joiner concatenates already encoded segment videos and lays the audio over them.
type Joiner interface {
	Join(ctx context.Context, parts []string, audio *timeline.AudioRef, audioDuration float64, output string) (*Result, error)
}

// ConcatJoiner joins parts with the concat demuxer. The parts must share codec, size and fps.
type ConcatJoiner struct {
	WorkDir string
	Log     *logrus.Entry
}

// Command builds the join invocation for the playlist at list.
func (j *ConcatJoiner) Command(list string, audio *timeline.AudioRef, audioDuration float64, output string) *ffmpeg.Stream {
	return concatCommand(list, audio, audioDuration, output)
}

func (j *ConcatJoiner) Join(ctx context.Context, parts []string, audio *timeline.AudioRef, audioDuration float64, output string) (*Result, error) {
	if len(parts) == 0 {
		return nil, errors.New("join: no parts")
	}
	if err := ensureDir(output); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(j.WorkDir, "join-*.txt")
	if err != nil {
		return nil, err
	}
	list := f.Name()
	f.Close()
	defer os.Remove(list)

	if err := WriteConcatList(list, parts); err != nil {
		return nil, err
	}
	if err := run(ctx, j.Command(list, audio, audioDuration, output).GetArgs()); err != nil {
		return nil, fmt.Errorf("join: %w", err)
	}

	if j.Log != nil {
		j.Log.WithFields(logrus.Fields{"parts": len(parts), "output": output}).Info("segments joined")
	}
	return &Result{Success: true, OutputLocation: output}, nil
}
