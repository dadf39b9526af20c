// Package manifest reads project manifests: the ordered segments of a video, the images
// of each segment and the narration track.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/kenburns/internal/errs"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// S3Prefix marks a ref as an object key in the configured bucket.
const S3Prefix = "s3:"

type Manifest struct {
	ProjectID string    `json:"project_id" yaml:"project_id"`
	Segments  []Segment `json:"segments" yaml:"segments"`
	// AudioRef is a path, URL or s3 URI. AudioFile is an object key in the configured
	// bucket.
	AudioRef      string  `json:"audio_ref,omitempty" yaml:"audio_ref,omitempty"`
	AudioFile     string  `json:"audio_file,omitempty" yaml:"audio_file,omitempty"`
	TotalDuration float64 `json:"total_duration,omitempty" yaml:"total_duration,omitempty"`
}

type Segment struct {
	ID        SegmentID `json:"id" yaml:"id"`
	StartTime float64   `json:"start_time" yaml:"start_time"`
	EndTime   float64   `json:"end_time" yaml:"end_time"`
	// Duration is used when the segment has no time range.
	Duration float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	Images   []Image `json:"images" yaml:"images"`
}

type Image struct {
	SourceRef string `json:"source_ref,omitempty" yaml:"source_ref,omitempty"`
	S3Key     string `json:"s3_key,omitempty" yaml:"s3_key,omitempty"`
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	Query     string `json:"query,omitempty" yaml:"query,omitempty"`
	Provider  string `json:"provider,omitempty" yaml:"provider,omitempty"`
}

// SegmentID accepts both strings and numbers in JSON.
type SegmentID string

func (id *SegmentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SegmentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("segment id: %w", err)
	}
	*id = SegmentID(n.String())
	return nil
}

// Ref is the reference the image resolver receives. An explicit source_ref wins over an
// object key, which wins over a URL.
func (i Image) Ref() string {
	switch {
	case i.SourceRef != "":
		return i.SourceRef
	case i.S3Key != "":
		return S3Prefix + strings.TrimPrefix(i.S3Key, "/")
	default:
		return i.URL
	}
}

// Span returns the segment length: end minus start, or Duration when no range is set.
func (s Segment) Span() (float64, error) {
	if s.EndTime > s.StartTime {
		return s.EndTime - s.StartTime, nil
	}
	if s.Duration > 0 {
		return s.Duration, nil
	}
	return 0, errs.WithSegment(
		errs.InvalidArgument("segment", "no positive duration (start %v, end %v)", s.StartTime, s.EndTime),
		errs.ErrInvalidArgument, string(s.ID))
}

// Refs lists the image references of the segment in order, skipping empty entries.
func (s Segment) Refs() []string {
	refs := make([]string, 0, len(s.Images))
	for _, img := range s.Images {
		if ref := img.Ref(); ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Audio returns the narration reference, if any.
func (m *Manifest) Audio() string {
	if m.AudioRef != "" {
		return m.AudioRef
	}
	if m.AudioFile != "" {
		return S3Prefix + strings.TrimPrefix(m.AudioFile, "/")
	}
	return ""
}

// Segment finds a segment by id. Ids are assigned by Validate.
func (m *Manifest) Segment(id string) (Segment, bool) {
	for _, s := range m.Segments {
		if string(s.ID) == id {
			return s, true
		}
	}
	return Segment{}, false
}

// Duration is the sum of segment spans.
func (m *Manifest) Duration() (float64, error) {
	total := 0.0
	for _, s := range m.Segments {
		d, err := s.Span()
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

// Validate fills defaults and checks segment ids and spans. Empty segment lists and
// segments without images are left to the renderer, which reports them as such.
func (m *Manifest) Validate() error {
	if m.ProjectID == "" {
		m.ProjectID = "project"
	}
	seen := make(map[SegmentID]bool, len(m.Segments))
	for i := range m.Segments {
		s := &m.Segments[i]
		if s.ID == "" {
			s.ID = SegmentID(strconv.Itoa(i + 1))
		}
		if seen[s.ID] {
			return errs.InvalidArgument("manifest", "duplicate segment id %q", s.ID)
		}
		seen[s.ID] = true
		if _, err := s.Span(); err != nil {
			return err
		}
	}
	if m.TotalDuration < 0 {
		return errs.InvalidArgument("manifest", "negative total_duration %v", m.TotalDuration)
	}
	return nil
}

// Parse decodes and validates a manifest in the given format.
func Parse(data []byte, format string) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode yaml manifest: %w", err)
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode json manifest: %w", err)
		}
	default:
		return nil, errs.InvalidArgument("manifest", "unknown format %q", format)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FormatOf picks the format from a file name.
func FormatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(data, FormatOf(path))
}

// FromImages builds a single-segment manifest over the given image refs.
func FromImages(projectID string, refs []string, duration float64, audio string) *Manifest {
	images := make([]Image, len(refs))
	for i, ref := range refs {
		images[i] = Image{SourceRef: ref}
	}
	return &Manifest{
		ProjectID:     projectID,
		Segments:      []Segment{{ID: "1", StartTime: 0, EndTime: duration, Images: images}},
		AudioRef:      audio,
		TotalDuration: duration,
	}
}

// Key is where a project's manifest lives in the bucket.
func Key(projectID string) string {
	return fmt.Sprintf("projects/%s/manifest.json", projectID)
}
