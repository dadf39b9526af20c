package source

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/kenburns/internal/errs"
)

// PDF rasterizes document pages. Refs look like "deck.pdf#3", pages counted from one.
type PDF struct {
	DPI   float64
	Local Local
}

const defaultDPI = 150

// IsPageRef reports whether ref points at a PDF page.
func IsPageRef(ref string) bool {
	_, _, err := ParsePageRef(ref)
	return err == nil
}

// ParsePageRef splits "deck.pdf#3" into the path and the zero-based page index.
func ParsePageRef(ref string) (string, int, error) {
	i := strings.LastIndex(ref, "#")
	if i < 0 || !strings.HasSuffix(strings.ToLower(ref[:i]), ".pdf") {
		return "", 0, fmt.Errorf("not a pdf page ref: %q", ref)
	}
	page, err := strconv.Atoi(ref[i+1:])
	if err != nil || page < 1 {
		return "", 0, fmt.Errorf("bad page number in %q", ref)
	}
	return ref[:i], page - 1, nil
}

// PageRefs lists one ref per page of the document at path.
func PageRefs(path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer doc.Close()

	refs := make([]string, doc.NumPage())
	for i := range refs {
		refs[i] = fmt.Sprintf("%s#%d", path, i+1)
	}
	return refs, nil
}

// Resolve opens the document per call; fitz documents are not safe for concurrent use.
func (p PDF) Resolve(ctx context.Context, ref string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, index, err := ParsePageRef(ref)
	if err != nil {
		return nil, errs.WithImage(errs.InvalidInput("pdf", "%v", err), errs.ErrInvalidInput, ref)
	}
	doc, err := fitz.New(p.Local.Path(path))
	if err != nil {
		return nil, &errs.Error{Kind: errs.ErrInvalidInput, Op: "pdf", Image: ref, Err: err}
	}
	defer doc.Close()

	if index >= doc.NumPage() {
		return nil, errs.WithImage(errs.InvalidInput("pdf", "page %d of %d", index+1, doc.NumPage()), errs.ErrInvalidInput, ref)
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = defaultDPI
	}
	img, err := doc.ImageDPI(index, dpi)
	if err != nil {
		return nil, &errs.Error{Kind: errs.ErrInvalidInput, Op: "pdf", Image: ref, Err: err}
	}
	return img, nil
}
