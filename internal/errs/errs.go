package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Classify with errors.Is.
var (
	// ErrInvalidArgument indicates a bad duration, zoom or effect configuration.
	// Always fatal to the call that raised it.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidInput indicates a corrupt or unreadable source raster.
	// Recoverable at the image clip level.
	ErrInvalidInput = errors.New("invalid input")
)

// Render-fatal kinds.
var (
	// ErrEmptySegment indicates a segment with no renderable image.
	ErrEmptySegment = errors.New("empty segment")

	// ErrNoRenderableContent indicates the timeline has nothing to encode.
	ErrNoRenderableContent = errors.New("no renderable content")
)

// Error carries the kind of failure plus the identity of the content that caused it.
type Error struct {
	Kind    error
	Op      string
	Segment string
	Image   string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Segment != "" {
		fmt.Fprintf(&b, " (segment %s", e.Segment)
		if e.Image != "" {
			fmt.Fprintf(&b, ", image %s", e.Image)
		}
		b.WriteString(")")
	} else if e.Image != "" {
		fmt.Fprintf(&b, " (image %s)", e.Image)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool { return target == e.Kind }

// InvalidArgument builds an ErrInvalidArgument with a formatted reason.
func InvalidArgument(op, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidArgument, Op: op, Err: fmt.Errorf(format, args...)}
}

// InvalidInput builds an ErrInvalidInput with a formatted reason.
func InvalidInput(op, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithSegment returns a copy of err annotated with the segment id. Errors that are not
// *Error are wrapped with the given kind.
func WithSegment(err error, kind error, segment string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		if cp.Segment == "" {
			cp.Segment = segment
		}
		return &cp
	}
	return &Error{Kind: kind, Segment: segment, Err: err}
}

// WithImage returns a copy of err annotated with the image reference.
func WithImage(err error, kind error, image string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		cp := *e
		if cp.Image == "" {
			cp.Image = image
		}
		return &cp
	}
	return &Error{Kind: kind, Image: image, Err: err}
}
