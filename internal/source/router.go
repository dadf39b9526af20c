package source

import (
	"context"
	"image"
	"io"
	"os"

	"github.com/ivlev/kenburns/internal/storage"
)

// Router dispatches a ref by its shape: s3 refs, http(s) URLs, PDF pages, and local
// paths otherwise.
type Router struct {
	Local  Resolver
	PDF    Resolver
	Remote Resolver
	Store  Resolver
}

// NewRouter wires the standard resolvers. s3 may be the zero value when no bucket is configured.
func NewRouter(root string, s3 S3, client HTTP) *Router {
	local := Local{Root: root}
	return &Router{
		Local:  local,
		PDF:    PDF{Local: local},
		Remote: client,
		Store:  s3,
	}
}

func (r *Router) Resolve(ctx context.Context, ref string) (image.Image, error) {
	return r.pick(ref).Resolve(ctx, ref)
}

func (r *Router) pick(ref string) Resolver {
	switch {
	case storage.IsS3(ref):
		return r.Store
	case IsURL(ref):
		return r.Remote
	case IsPageRef(ref):
		return r.PDF
	default:
		return r.Local
	}
}

// Opener streams raw bytes for a ref; used for manifests and audio.
type Opener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Fetcher opens refs of any supported kind as byte streams.
type Fetcher struct {
	Root   string
	Remote HTTP
	Store  S3
}

func (f Fetcher) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	switch {
	case storage.IsS3(ref):
		return f.Store.Open(ctx, ref)
	case IsURL(ref):
		return f.Remote.Open(ctx, ref)
	default:
		return os.Open(Local{Root: f.Root}.Path(ref))
	}
}
