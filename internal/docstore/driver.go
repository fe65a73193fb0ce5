package docstore

import (
	"context"
	"io"
	"time"
)

// Driver abstracts the blob storage holding document version content.
// Version blobs are immutable: a key is written once and never overwritten.
type Driver interface {
	// Put writes a version blob under the given key.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Open returns a reader over the blob and its content type.
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Remove deletes the blob.
	Remove(ctx context.Context, key string) error

	// URL returns a URL under which the blob can be fetched, presigned when
	// the backing store requires it.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}
