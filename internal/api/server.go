// Package api exposes the renderer over HTTP: post a manifest, get the render result back.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ivlev/kenburns/internal/engine"
	"github.com/ivlev/kenburns/internal/errs"
	"github.com/ivlev/kenburns/internal/manifest"
)

// Actions a job can carry.
const (
	// ActionVideo renders the whole manifest into the final video.
	ActionVideo = "video"
	// ActionSegment renders one segment for a later combine.
	ActionSegment = "segment"
	// ActionCombine joins previously rendered segments with the audio.
	ActionCombine = "combine"
)

// Job identifies one request. ID is unique per request and may be used to scope output
// paths; Segment is set for ActionSegment only.
type Job struct {
	ID      string
	Action  string
	Segment string
}

// Runner executes one job against its manifest.
type Runner func(ctx context.Context, m *manifest.Manifest, job Job) (*engine.Report, error)

// Server runs one render at a time; a request arriving while another render is in flight
// gets 409.
type Server struct {
	run Runner
	log *logrus.Entry
	mu  sync.Mutex
}

func NewServer(run Runner, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.WithField("component", "api")
	}
	return &Server{run: run, log: log}
}

// RenderResponse is the JSON body returned by every job route.
type RenderResponse struct {
	JobID          string  `json:"job_id"`
	Action         string  `json:"action,omitempty"`
	Segment        string  `json:"segment_id,omitempty"`
	Success        bool    `json:"success"`
	OutputLocation string  `json:"output_location,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
	Resolution     string  `json:"resolution,omitempty"`
	FPS            int     `json:"fps,omitempty"`
	Frames         int     `json:"frames,omitempty"`
	Skipped        int     `json:"skipped_images,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// NewRouter constructs a Gin engine with registered routes.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	v1 := r.Group("/v1")
	v1.POST("/render", s.handle(ActionVideo))
	v1.POST("/segments/:segment", s.handle(ActionSegment))
	v1.POST("/combine", s.handle(ActionCombine))
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	busy := !s.mu.TryLock()
	if !busy {
		s.mu.Unlock()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "busy": busy})
}

// handle serves every job route; the manifest is the request body.
func (s *Server) handle(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		job := Job{ID: uuid.NewString(), Action: action, Segment: c.Param("segment")}
		s.serve(c, job)
	}
}

func (s *Server) serve(c *gin.Context, job Job) {
	log := s.log.WithFields(logrus.Fields{"job": job.ID, "action": job.Action})
	fail := func(code int, msg string) {
		c.JSON(code, RenderResponse{JobID: job.ID, Action: job.Action, Segment: job.Segment, Error: msg})
	}

	var m manifest.Manifest
	if err := c.ShouldBindJSON(&m); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	if m.ProjectID == "" {
		m.ProjectID = job.ID
	}
	if err := m.Validate(); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}
	if job.Action == ActionSegment {
		if _, ok := m.Segment(job.Segment); !ok {
			fail(http.StatusNotFound, "no segment "+job.Segment+" in manifest")
			return
		}
	}

	if !s.mu.TryLock() {
		fail(http.StatusConflict, "a render is already in progress")
		return
	}
	defer s.mu.Unlock()

	log.WithFields(logrus.Fields{"project": m.ProjectID, "segments": len(m.Segments), "segment": job.Segment}).Info("job requested")
	report, err := s.run(c.Request.Context(), &m, job)
	if err != nil {
		log.WithError(err).Error("job failed")
		fail(statusOf(err), err.Error())
		return
	}

	c.JSON(http.StatusOK, RenderResponse{
		JobID:          job.ID,
		Action:         job.Action,
		Segment:        job.Segment,
		Success:        true,
		OutputLocation: report.Location,
		Duration:       report.Duration,
		Resolution:     report.Resolution.String(),
		FPS:            report.FPS,
		Frames:         report.Frames,
		Skipped:        report.Skipped,
	})
}

// statusOf maps the render error kinds onto HTTP codes. Anything unclassified is a
// server-side failure.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument),
		errors.Is(err, errs.ErrInvalidInput),
		errors.Is(err, errs.ErrEmptySegment),
		errors.Is(err, errs.ErrNoRenderableContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
