package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/kenburns/internal/config"
	"github.com/ivlev/kenburns/internal/engine"
	"github.com/ivlev/kenburns/internal/errs"
	"github.com/ivlev/kenburns/internal/manifest"
	"github.com/ivlev/kenburns/internal/timeline"
)

const body = `{
  "project_id": "demo",
  "segments": [
    {"id": 1, "start_time": 0, "end_time": 4, "images": [{"source_ref": "a.png"}, {"url": "https://x/b.png"}]}
  ],
  "audio_ref": "s3:audio/voice.mp3"
}`

func newServer(run Runner) (*gin.Engine, *Server) {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	s := NewServer(run, logrus.NewEntry(logger))
	return s.NewRouter(), s
}

func post(r http.Handler, payload string) (*httptest.ResponseRecorder, RenderResponse) {
	return postTo(r, "/v1/render", payload)
}

func postTo(r http.Handler, path, payload string) (*httptest.ResponseRecorder, RenderResponse) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp RenderResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestRenderSuccess(t *testing.T) {
	var got *manifest.Manifest
	var gotJob string
	r, _ := newServer(func(ctx context.Context, m *manifest.Manifest, job Job) (*engine.Report, error) {
		got, gotJob = m, job.ID
		return &engine.Report{
			RenderResult: timeline.RenderResult{Duration: 4, Resolution: config.FrameSize{Width: 1920, Height: 1080}, FPS: 24},
			Location:     "s3://media/videos/demo_final_video.mp4",
			Frames:       96,
		}, nil
	})

	w, resp := post(r, body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, gotJob, resp.JobID)
	assert.Len(t, resp.JobID, 36)
	assert.Equal(t, "s3://media/videos/demo_final_video.mp4", resp.OutputLocation)
	assert.Equal(t, "1920x1080", resp.Resolution)
	assert.Equal(t, 96, resp.Frames)

	require.NotNil(t, got)
	assert.Equal(t, "demo", got.ProjectID)
	assert.Equal(t, manifest.SegmentID("1"), got.Segments[0].ID)
	assert.Equal(t, []string{"a.png", "https://x/b.png"}, got.Segments[0].Refs())
}

func TestJobRoutesCarryTheAction(t *testing.T) {
	var jobs []Job
	r, _ := newServer(func(ctx context.Context, m *manifest.Manifest, job Job) (*engine.Report, error) {
		jobs = append(jobs, job)
		return &engine.Report{Location: "s3://media/segments/demo/1_segment.mp4"}, nil
	})

	w, resp := postTo(r, "/v1/segments/1", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ActionSegment, resp.Action)
	assert.Equal(t, "1", resp.Segment)

	w, resp = postTo(r, "/v1/combine", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ActionCombine, resp.Action)
	assert.Empty(t, resp.Segment)

	w, _ = post(r, body)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, jobs, 3)
	assert.Equal(t, Job{ID: jobs[0].ID, Action: ActionSegment, Segment: "1"}, jobs[0])
	assert.Equal(t, ActionCombine, jobs[1].Action)
	assert.Equal(t, ActionVideo, jobs[2].Action)
}

func TestSegmentRouteRejectsUnknownSegment(t *testing.T) {
	called := false
	r, _ := newServer(func(ctx context.Context, m *manifest.Manifest, job Job) (*engine.Report, error) {
		called = true
		return &engine.Report{}, nil
	})

	w, resp := postTo(r, "/v1/segments/credits", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, resp.Error, "credits")
	assert.False(t, called)
}

func TestRenderDefaultsProjectToJobID(t *testing.T) {
	var project string
	r, _ := newServer(func(ctx context.Context, m *manifest.Manifest, job Job) (*engine.Report, error) {
		project = m.ProjectID
		return &engine.Report{}, nil
	})
	w, resp := post(r, `{"segments": [{"id": "a", "duration": 2, "images": [{"source_ref": "x.png"}]}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, resp.JobID, project)
}

func TestRenderRejectsBadInput(t *testing.T) {
	called := false
	r, _ := newServer(func(ctx context.Context, m *manifest.Manifest, job Job) (*engine.Report, error) {
		called = true
		return &engine.Report{}, nil
	})

	w, resp := post(r, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, resp.Error)

	w, _ = post(r, `{"segments": [{"id": 1, "start_time": 5, "end_time": 2, "images": []}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called)
}

func TestRenderErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"empty segment", &errs.Error{Kind: errs.ErrEmptySegment, Op: "makeSegment", Segment: "1"}, http.StatusUnprocessableEntity},
		{"nothing to render", &errs.Error{Kind: errs.ErrNoRenderableContent, Op: "combine"}, http.StatusUnprocessableEntity},
		{"encoder", errors.New("render: ffmpeg exited"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newServer(func(ctx context.Context, m *manifest.Manifest, job Job) (*engine.Report, error) {
				return nil, tt.err
			})
			w, resp := post(r, body)
			assert.Equal(t, tt.code, w.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.err.Error(), resp.Error)
		})
	}
}

func TestOneRenderAtATime(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	r, _ := newServer(func(ctx context.Context, m *manifest.Manifest, job Job) (*engine.Report, error) {
		close(started)
		<-release
		return &engine.Report{}, nil
	})

	done := make(chan int)
	go func() {
		w, _ := post(r, body)
		done <- w.Code
	}()
	<-started

	w, resp := post(r, body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, resp.Error, "already in progress")

	health := httptest.NewRecorder()
	r.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.JSONEq(t, `{"status":"ok","busy":true}`, health.Body.String())

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestHealth(t *testing.T) {
	r, _ := newServer(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","busy":false}`, w.Body.String())
}
