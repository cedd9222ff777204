package media

import (
	"context"
	"io"
)

// BlobStore persists an object under key and returns its public URL. The
// returned URL is stable for the lifetime of the object.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Name() string
}
