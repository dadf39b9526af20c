package source

import (
	"context"
	"image"
	"os"
	"path/filepath"

	"github.com/ivlev/kenburns/internal/errs"
)

// Local reads images from the file system. Relative refs are taken from Root when set.
type Local struct {
	Root string
}

func (l Local) Path(ref string) string {
	if l.Root != "" && !filepath.IsAbs(ref) {
		return filepath.Join(l.Root, ref)
	}
	return ref
}

func (l Local) Resolve(ctx context.Context, ref string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(l.Path(ref))
	if err != nil {
		return nil, &errs.Error{Kind: errs.ErrInvalidInput, Op: "open", Image: ref, Err: err}
	}
	defer f.Close()
	return Decode(f, ref)
}
