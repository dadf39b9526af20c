// Package source resolves image and audio references from a manifest into rasters and
// local audio files.
package source

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ivlev/kenburns/internal/errs"
	"github.com/ivlev/kenburns/internal/system"
)

// Resolver turns an image reference into a decoded raster. Unreadable or undecodable
// content is reported as errs.ErrInvalidInput.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (image.Image, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, ref string) (image.Image, error)

func (f ResolverFunc) Resolve(ctx context.Context, ref string) (image.Image, error) {
	return f(ctx, ref)
}

// Decode reads a raster in any registered format.
func Decode(r io.Reader, ref string) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &errs.Error{Kind: errs.ErrInvalidInput, Op: "decode", Image: ref, Err: err}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errs.WithImage(errs.InvalidInput("decode", "empty image %dx%d", b.Dx(), b.Dy()), errs.ErrInvalidInput, ref)
	}
	return img, nil
}

// ListImages returns the images of a directory in name order, or the path itself when it
// is a file.
func ListImages(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && system.HasExtension(entry.Name(), system.ImageExtensions) {
			paths = append(paths, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
