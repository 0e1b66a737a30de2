// Package blob abstracts where uploaded document files live. The registry
// row keeps the storage ref returned by Save; everything else in the system
// treats it as opaque.
package blob

import (
	"context"
	"io"
)

type Store interface {
	// Save writes the file content and returns the storage ref to persist.
	Save(ctx context.Context, ref string, r io.Reader) (string, error)
	// Open returns the stored content for reading.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes the stored content. Deleting a missing ref is not an
	// error.
	Delete(ctx context.Context, ref string) error
}
