package system

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

var (
	AudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff"}
)

// InitResourceLimits raises the open file limit; every frame worker and ffmpeg pipe holds
// descriptors.
func InitResourceLimits(log *logrus.Entry) {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.WithError(err).Warn("cannot read open file limit")
		return
	}

	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	err = syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.WithError(err).Warn("cannot raise open file limit")
	} else {
		log.WithField("limit", rLimit.Cur).Debug("open file limit raised")
	}
}

// HasExtension reports whether name ends with one of exts, case-insensitively.
func HasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindLatest returns the most recently modified file in dir with one of the extensions.
func FindLatest(dir string, exts []string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !HasExtension(f.Name(), exts) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no files with extensions %v in %s", exts, dir)
	}

	return latestFile, nil
}

func FindLatestAudio(dir string) (string, error) {
	return FindLatest(dir, AudioExtensions)
}

// GetAudioDuration probes the container duration of a local media file.
func GetAudioDuration(path string) (float64, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}
	return ParseProbeDuration(out)
}

// ParseProbeDuration extracts format.duration from ffprobe JSON output.
func ParseProbeDuration(probe string) (float64, error) {
	var report struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(probe), &report); err != nil {
		return 0, fmt.Errorf("decode probe output: %w", err)
	}
	if report.Format.Duration == "" {
		return 0, fmt.Errorf("probe output has no duration")
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(report.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", report.Format.Duration, err)
	}
	return duration, nil
}

// GetBestH264Encoder picks a hardware encoder when ffmpeg was built with one.
func GetBestH264Encoder(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return pickEncoder(string(out))
}

func pickEncoder(listing string) string {
	// VideoToolbox first, then NVENC; VAAPI needs a device path and is left to explicit config.
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(listing, name) {
			return name
		}
	}
	return "libx264"
}

// RecommendedWorkers sizes a worker pool by logical CPUs and by how many working sets of
// bytesPerWorker fit into available memory. Never below one.
func RecommendedWorkers(bytesPerWorker uint64) int {
	workers, err := cpu.Counts(true)
	if err != nil || workers < 1 {
		workers = 1
	}
	if bytesPerWorker == 0 {
		return workers
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return workers
	}
	if byMem := int(vm.Available / bytesPerWorker); byMem < workers {
		workers = byMem
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
