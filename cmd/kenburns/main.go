package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ivlev/kenburns/internal/api"
	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/engine"
	"github.com/ivlev/kenburns/internal/manifest"
	"github.com/ivlev/kenburns/internal/source"
	"github.com/ivlev/kenburns/internal/storage"
	"github.com/ivlev/kenburns/internal/system"
	"github.com/ivlev/kenburns/internal/timeline"
	"github.com/ivlev/kenburns/internal/video"
)

// buildVersion is set with -ldflags "-X main.buildVersion=...".
var buildVersion = "dev"

type options struct {
	configPath    string
	manifestRef   string
	projectID     string
	imagesDir     string
	pdfPath       string
	audio         string
	duration      float64
	imageDuration float64
	preset        string
	serve         string
	segment       string
	combine       bool
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	var opts options
	var (
		size      string
		fps       int
		workers   int
		curve     string
		backend   string
		encoder   string
		quality   int
		output    string
		minImage  string
		debug     bool
		stats     bool
		single    bool
		logLevel  string
		logJSON   bool
		bucket    string
		workDir   string
		maxLength float64
	)

	flag.StringVar(&opts.configPath, "config", "", "YAML config file")
	flag.StringVar(&opts.manifestRef, "manifest", "", "Project manifest: local path, http(s) URL or s3 ref")
	flag.StringVar(&opts.projectID, "project", "", "Render the manifest stored under projects/<id>/manifest.json in the bucket")
	flag.StringVar(&opts.imagesDir, "images", "", "Directory of images rendered as a single segment")
	flag.StringVar(&opts.pdfPath, "pdf", "", "PDF whose pages are rendered as a single segment")
	flag.StringVar(&opts.audio, "audio", "", "Narration for -images/-pdf (default: newest file in input/audio/)")
	flag.Float64Var(&opts.duration, "duration", 0, "Video length for -images/-pdf (0: audio length, else -image-duration per image)")
	flag.Float64Var(&opts.imageDuration, "image-duration", 3, "Seconds per image when neither -duration nor audio is given")
	flag.StringVar(&opts.preset, "preset", "", "Format preset: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram), 1:1")
	flag.StringVar(&opts.serve, "serve", "", "Listen address for the HTTP trigger, e.g. :8080")
	flag.StringVar(&opts.segment, "segment", "", "Render only this segment id and upload it under segments/<project>/")
	flag.BoolVar(&opts.combine, "combine", false, "Join segments rendered with -segment and add the audio")

	flag.StringVar(&size, "size", "", "Output size WIDTHxHEIGHT")
	flag.IntVar(&fps, "fps", 0, "Frames per second")
	flag.IntVar(&workers, "workers", 0, "Segments assembled in parallel (0: sized from CPU and memory)")
	flag.StringVar(&curve, "curve", "", "Effect curve: linear, ease, incremental")
	flag.StringVar(&backend, "backend", "", "Render backend: frames (in-process) or filter (ffmpeg zoompan)")
	flag.StringVar(&encoder, "encoder", "", "Video encoder, or auto to probe for hardware encoders")
	flag.IntVar(&quality, "quality", 0, "Quality (0: encoder default; x264 CRF 1-51, VideoToolbox bitrate = Q*100 kbit/s)")
	flag.StringVar(&output, "output", "", "Output video path")
	flag.StringVar(&minImage, "min-image-duration", "", "Minimum seconds on screen per image")
	flag.BoolVar(&debug, "debug", false, "Stamp segment/image/frame identity into every frame")
	flag.BoolVar(&stats, "stats", false, "Log a performance report")
	flag.BoolVar(&single, "single-pass", false, "Concatenate image clips directly instead of per segment")
	flag.StringVar(&logLevel, "log-level", "", "Log level")
	flag.BoolVar(&logJSON, "log-json", false, "Log as JSON")
	flag.StringVar(&bucket, "bucket", "", "S3 bucket for s3: refs and the final upload")
	flag.StringVar(&workDir, "work-dir", "", "Directory for temporary files")
	flag.Float64Var(&maxLength, "max-duration", 0, "Warn when the video is longer than this many seconds")
	flag.Parse()

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		fatal(err)
	}
	if err := cfg.ApplyPreset(opts.preset); err != nil {
		fatal(err)
	}

	// Flags override the file and the environment only when given.
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "size":
			cfg.Size, flagErr = config.ParseSize(size)
		case "fps":
			cfg.FPS = fps
		case "workers":
			cfg.Workers = workers
		case "curve":
			cfg.Curve = curve
		case "backend":
			cfg.Backend = backend
		case "encoder":
			cfg.VideoEncoder = encoder
		case "quality":
			cfg.Quality = quality
		case "output":
			cfg.OutputPath = output
		case "min-image-duration":
			_, flagErr = fmt.Sscanf(minImage, "%g", &cfg.MinImageDuration)
		case "debug":
			cfg.Debug = debug
		case "stats":
			cfg.ShowStats = stats
		case "single-pass":
			cfg.SinglePass = single
		case "log-level":
			cfg.LogLevel = logLevel
		case "log-json":
			cfg.LogJSON = logJSON
		case "bucket":
			cfg.Storage.Bucket = bucket
		case "work-dir":
			cfg.WorkDir = workDir
		case "max-duration":
			cfg.MaxVideoDuration = maxLength
		}
	})
	if flagErr != nil {
		fatal(flagErr)
	}
	cfg.BuildVersion = buildVersion

	log := setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	system.InitResourceLimits(log)
	if cfg.VideoEncoder == "auto" {
		cfg.VideoEncoder = system.GetBestH264Encoder(ctx)
		if cfg.VideoEncoder != "libx264" {
			log.WithField("encoder", cfg.VideoEncoder).Info("hardware encoder detected")
		}
	}
	if cfg.Workers == 0 {
		// A segment worker holds a few decoded and pre-scaled rasters at once.
		perWorker := uint64(cfg.Size.Width) * uint64(cfg.Size.Height) * 4 * 8
		cfg.Workers = system.RecommendedWorkers(perWorker)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	var store storage.ObjectStore
	if cfg.Storage.Bucket != "" {
		s3, err := storage.NewS3(ctx, storage.S3Config{
			Region:       cfg.Storage.Region,
			Profile:      cfg.Storage.Profile,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
		if err != nil {
			fatal(err)
		}
		store = s3
	}

	remote := source.HTTP{Client: &http.Client{Timeout: 2 * time.Minute}}
	objects := source.S3{Store: store, Bucket: cfg.Storage.Bucket}
	fetcher := source.Fetcher{Remote: remote, Store: objects}
	images := source.NewRouter("", objects, remote)
	audio := &source.AudioResolver{Fetcher: fetcher, WorkDir: cfg.WorkDir}

	sink, err := video.New(cfg, log.WithField("component", "video"))
	if err != nil {
		fatal(err)
	}

	log.WithFields(logrus.Fields{
		"version":    cfg.BuildVersion,
		"resolution": cfg.Size.String(),
		"fps":        cfg.FPS,
		"curve":      cfg.Curve,
		"backend":    cfg.Backend,
		"encoder":    cfg.VideoEncoder,
		"workers":    cfg.Workers,
	}).Info("kenburns starting")

	if opts.serve != "" {
		run := func(ctx context.Context, m *manifest.Manifest, job api.Job) (*engine.Report, error) {
			jobCfg := cfg
			jobCfg.OutputPath = filepath.Join(cfg.WorkDir, "kenburns-"+job.ID, "final_video.mp4")
			if store != nil {
				defer os.RemoveAll(filepath.Dir(jobCfg.OutputPath))
			}
			p := engine.NewVideoProject(&jobCfg, m, images, audio, sink)
			p.Store = store
			p.Log = log.WithFields(logrus.Fields{"component": "engine", "job": job.ID})
			return execute(ctx, p, job)
		}
		server := api.NewServer(run, log.WithField("component", "api"))
		srv := &http.Server{Addr: opts.serve, Handler: server.NewRouter()}
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdown)
		}()
		log.WithField("addr", opts.serve).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(err)
		}
		return
	}

	job, err := jobFor(opts)
	if err != nil {
		fatal(err)
	}
	m, narration, err := loadManifest(ctx, opts, cfg, fetcher, audio, log)
	if err != nil {
		fatal(err)
	}
	fmt.Print(banner(cfg, m, job))

	var tracks engine.AudioSource = audio
	if narration != nil {
		// Уже скачано и измерено при сборке манифеста.
		tracks = engine.ResolvedAudio{Audio: narration}
	}
	project := engine.NewVideoProject(&cfg, m, images, tracks, sink)
	project.Store = store
	report, err := execute(ctx, project, job)
	if err != nil {
		fatal(err)
	}
	fmt.Print(summary(job, report))
}

// jobFor picks the action requested on the command line.
func jobFor(opts options) (api.Job, error) {
	job := api.Job{ID: uuid.NewString(), Action: api.ActionVideo}
	switch {
	case opts.segment != "" && opts.combine:
		return job, fmt.Errorf("-segment and -combine are separate steps, pass one of them")
	case opts.segment != "":
		job.Action, job.Segment = api.ActionSegment, opts.segment
	case opts.combine:
		job.Action = api.ActionCombine
	}
	return job, nil
}

func execute(ctx context.Context, p *engine.VideoProject, job api.Job) (*engine.Report, error) {
	switch job.Action {
	case api.ActionSegment:
		return p.RenderSegment(ctx, job.Segment)
	case api.ActionCombine:
		return p.CombineSegments(ctx)
	default:
		return p.Run(ctx)
	}
}

func banner(cfg config.Config, m *manifest.Manifest, job api.Job) string {
	var b strings.Builder
	fmt.Fprintln(&b, "--- [KEN BURNS: "+m.ProjectID+"] ---")
	switch job.Action {
	case api.ActionSegment:
		fmt.Fprintf(&b, "[*] Сегмент: %s из %d\n", job.Segment, len(m.Segments))
	case api.ActionCombine:
		fmt.Fprintf(&b, "[*] Сборка %d сегментов\n", len(m.Segments))
	default:
		fmt.Fprintf(&b, "[*] Сегментов: %d\n", len(m.Segments))
	}
	fmt.Fprintf(&b, "[*] Разрешение: %s @ %d FPS | Эффект: %s\n", cfg.Size, cfg.FPS, cfg.Curve)
	fmt.Fprintln(&b, "-----------------------------")
	return b.String()
}

func summary(job api.Job, r *engine.Report) string {
	var b strings.Builder
	if r.Skipped > 0 {
		fmt.Fprintf(&b, "[!] Пропущено изображений: %d\n", r.Skipped)
	}
	what := "Результат"
	if job.Action == api.ActionSegment {
		what = "Сегмент " + job.Segment
	}
	fmt.Fprintf(&b, "[+++] Успех! %s: %s (%.2fs, %s @ %d FPS)\n", what, r.Location, r.Duration, r.Resolution, r.FPS)
	return b.String()
}

// loadManifest builds the project from whichever input mode was selected. The audio is
// returned when it had to be resolved already, so the render does not fetch it again.
func loadManifest(ctx context.Context, opts options, cfg config.Config, fetcher source.Fetcher, audio *source.AudioResolver, log *logrus.Entry) (*manifest.Manifest, *timeline.AudioRef, error) {
	switch {
	case opts.manifestRef != "":
		m, err := fetchManifest(ctx, fetcher, opts.manifestRef)
		return m, nil, err
	case opts.projectID != "":
		if cfg.Storage.Bucket == "" {
			return nil, nil, fmt.Errorf("-project needs a bucket (-bucket or S3_BUCKET)")
		}
		m, err := fetchManifest(ctx, fetcher, manifest.S3Prefix+manifest.Key(opts.projectID))
		return m, nil, err
	case opts.imagesDir != "", opts.pdfPath != "":
		return directoryManifest(ctx, opts, audio, log)
	default:
		return nil, nil, fmt.Errorf("nothing to render: pass -manifest, -project, -images, -pdf or -serve")
	}
}

func fetchManifest(ctx context.Context, fetcher source.Fetcher, ref string) (*manifest.Manifest, error) {
	body, err := fetcher.Open(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", ref, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", ref, err)
	}
	name, _, _ := strings.Cut(ref, "?")
	return manifest.Parse(data, manifest.FormatOf(name))
}

// directoryManifest puts every image of a directory, or every page of a PDF, into one
// segment. Its length comes from -duration, else the narration, else image-duration per image.
// The narration is returned when it was resolved to measure it.
func directoryManifest(ctx context.Context, opts options, audio *source.AudioResolver, log *logrus.Entry) (*manifest.Manifest, *timeline.AudioRef, error) {
	var (
		refs []string
		err  error
		name string
	)
	if opts.pdfPath != "" {
		refs, err = source.PageRefs(opts.pdfPath)
		name = opts.pdfPath
	} else {
		refs, err = source.ListImages(opts.imagesDir)
		name = opts.imagesDir
	}
	if err != nil {
		return nil, nil, err
	}
	if len(refs) == 0 {
		return nil, nil, fmt.Errorf("no images found in %s", name)
	}

	audioRef := opts.audio
	if audioRef == "" {
		if latest, err := system.FindLatestAudio(filepath.Join("input", "audio")); err == nil {
			audioRef = latest
			log.WithField("audio", audioRef).Info("using newest narration")
		}
	}

	duration := opts.duration
	var narration *timeline.AudioRef
	if duration <= 0 && audioRef != "" {
		a, err := audio.Resolve(ctx, audioRef)
		if err != nil {
			log.WithError(err).Warn("cannot measure narration, falling back to per-image duration")
		} else {
			narration, duration = a, a.Duration
		}
	}
	if duration <= 0 {
		duration = float64(len(refs)) * opts.imageDuration
	}

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	id := strings.ReplaceAll(base, " ", "_") + "-" + uuid.NewString()[:8]
	return manifest.FromImages(id, refs, duration, audioRef), narration, nil
}

func setupLogging(cfg config.Config) *logrus.Entry {
	if cfg.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	return logrus.WithField("component", "kenburns")
}

func fatal(err error) {
	logrus.WithError(err).Fatal("kenburns failed")
}
