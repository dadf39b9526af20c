package source

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/ivlev/kenburns/internal/errs"
	"github.com/ivlev/kenburns/internal/storage"
)

// HTTP downloads images over http(s). No retries.
type HTTP struct {
	Client *http.Client
}

func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func (h HTTP) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", ref, resp.Status)
	}
	return resp.Body, nil
}

func (h HTTP) Resolve(ctx context.Context, ref string) (image.Image, error) {
	body, err := h.Open(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errs.Error{Kind: errs.ErrInvalidInput, Op: "fetch", Image: ref, Err: err}
	}
	defer body.Close()
	return Decode(body, ref)
}

// S3 reads images from the object store. Short refs ("s3:key") use Bucket.
type S3 struct {
	Store  storage.ObjectStore
	Bucket string
}

func (s S3) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("%s: no object store configured", ref)
	}
	loc, err := storage.ParseURI(ref, s.Bucket)
	if err != nil {
		return nil, err
	}
	return s.Store.Get(ctx, loc.Bucket, loc.Key)
}

func (s S3) Resolve(ctx context.Context, ref string) (image.Image, error) {
	body, err := s.Open(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errs.Error{Kind: errs.ErrInvalidInput, Op: "fetch", Image: ref, Err: err}
	}
	defer body.Close()
	return Decode(body, ref)
}
