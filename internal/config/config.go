package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/kenburns/internal/effects"
	"github.com/ivlev/kenburns/internal/errs"
)

const (
	BackendFrames = "frames"
	BackendFilter = "filter"
)

// FrameSize is the output resolution shared by every clip of a render.
type FrameSize struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

func (s FrameSize) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return errs.InvalidArgument("frame size", "need positive dimensions, got %dx%d", s.Width, s.Height)
	}
	return nil
}

func (s FrameSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// StorageConfig holds the remote bucket used for s3:// refs and the final upload.
type StorageConfig struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type Config struct {
	Size   FrameSize            `yaml:"size"`
	FPS    int                  `yaml:"fps"`
	Effect effects.EffectConfig `yaml:"effect"`
	Curve  string               `yaml:"curve"`

	Workers      int    `yaml:"workers"`
	FrameWorkers int    `yaml:"frame_workers"`
	Backend      string `yaml:"backend"`
	VideoEncoder string `yaml:"video_encoder"`
	Quality      int    `yaml:"quality"`

	Debug            bool    `yaml:"debug"`
	ShowStats        bool    `yaml:"show_stats"`
	MaxVideoDuration float64 `yaml:"max_video_duration"`
	MinImageDuration float64 `yaml:"min_image_duration"`
	SinglePass       bool    `yaml:"single_pass"`

	WorkDir    string `yaml:"work_dir"`
	OutputPath string `yaml:"output"`
	LogLevel   string `yaml:"log_level"`
	LogJSON    bool   `yaml:"log_json"`

	Storage StorageConfig `yaml:"storage"`

	BuildVersion string `yaml:"-"`
}

// Default returns the process-wide defaults. Workers is left at zero so the caller can size
// it from the host.
func Default() Config {
	return Config{
		Size:             FrameSize{Width: 1920, Height: 1080},
		FPS:              24,
		Effect:           effects.DefaultConfig(),
		Curve:            effects.CurveLinear,
		FrameWorkers:     runtime.NumCPU(),
		Backend:          BackendFrames,
		VideoEncoder:     "libx264",
		MaxVideoDuration: 300,
		WorkDir:          os.TempDir(),
		OutputPath:       "output/final_video.mp4",
		LogLevel:         "info",
	}
}

// Load overlays a YAML file on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays KENBURNS_* and the AWS/S3 variables. Unparseable numbers are reported
// rather than ignored.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup("KENBURNS_SIZE"); ok {
		size, err := ParseSize(v)
		if err != nil {
			return err
		}
		c.Size = size
	}
	if err := envInt("KENBURNS_FPS", &c.FPS); err != nil {
		return err
	}
	if err := envInt("KENBURNS_WORKERS", &c.Workers); err != nil {
		return err
	}
	if err := envInt("KENBURNS_FRAME_WORKERS", &c.FrameWorkers); err != nil {
		return err
	}
	if err := envInt("KENBURNS_QUALITY", &c.Quality); err != nil {
		return err
	}
	if err := envFloat("KENBURNS_MAX_DURATION", &c.MaxVideoDuration); err != nil {
		return err
	}
	if err := envFloat("KENBURNS_MIN_IMAGE_DURATION", &c.MinImageDuration); err != nil {
		return err
	}
	if v, ok := lookup("KENBURNS_CURVE"); ok {
		c.Curve = v
	}
	if v, ok := lookup("KENBURNS_BACKEND"); ok {
		c.Backend = v
	}
	if v, ok := lookup("KENBURNS_ENCODER"); ok {
		c.VideoEncoder = v
	}
	if v, ok := lookup("KENBURNS_WORK_DIR"); ok {
		c.WorkDir = v
	}
	if v, ok := lookup("KENBURNS_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("KENBURNS_DEBUG"); ok {
		c.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v, ok := lookup("S3_BUCKET"); ok {
		c.Storage.Bucket = v
	}
	if v, ok := lookup("AWS_REGION"); ok {
		c.Storage.Region = v
	}
	if v, ok := lookup("AWS_PROFILE"); ok {
		c.Storage.Profile = v
	}
	if v, ok := lookup("S3_ENDPOINT"); ok {
		c.Storage.Endpoint = v
		c.Storage.UsePathStyle = true
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Size.Validate(); err != nil {
		return err
	}
	if c.FPS <= 0 {
		return errs.InvalidArgument("config", "fps must be positive, got %d", c.FPS)
	}
	if err := c.Effect.Validate(); err != nil {
		return err
	}
	if c.Workers < 0 || c.FrameWorkers < 0 {
		return errs.InvalidArgument("config", "worker counts must not be negative")
	}
	if c.MinImageDuration < 0 {
		return errs.InvalidArgument("config", "min_image_duration must not be negative")
	}
	switch c.Backend {
	case BackendFrames, BackendFilter:
	default:
		return errs.InvalidArgument("config", "unknown backend %q", c.Backend)
	}
	return nil
}

// ApplyPreset switches the output size to one of the named aspect presets.
func (c *Config) ApplyPreset(preset string) error {
	switch preset {
	case "":
	case "16:9":
		c.Size = FrameSize{Width: 1920, Height: 1080}
	case "9:16":
		c.Size = FrameSize{Width: 1080, Height: 1920}
	case "4:5":
		c.Size = FrameSize{Width: 1080, Height: 1350}
	case "1:1":
		c.Size = FrameSize{Width: 1080, Height: 1080}
	default:
		return errs.InvalidArgument("preset", "unknown preset %q", preset)
	}
	return nil
}

// ParseSize reads "WIDTHxHEIGHT".
func ParseSize(s string) (FrameSize, error) {
	var size FrameSize
	if _, err := fmt.Sscanf(strings.ToLower(strings.TrimSpace(s)), "%dx%d", &size.Width, &size.Height); err != nil {
		return size, errs.InvalidArgument("size", "expected WIDTHxHEIGHT, got %q", s)
	}
	return size, size.Validate()
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}
