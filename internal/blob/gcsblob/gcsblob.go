// Package gcsblob stores uploaded files as objects in a Google Cloud Storage
// bucket, under an optional key prefix.
package gcsblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"github.com/sivakandan01/ai-backend/internal/blob"
)

type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ blob.Store = (*Store)(nil)

func New(client *storage.Client, bucket, prefix string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcsblob: bucket is required")
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *Store) Save(ctx context.Context, ref string, r io.Reader) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("gcsblob: empty storage ref")
	}
	w := s.client.Bucket(s.bucket).Object(s.object(ref)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", fmt.Errorf("gcsblob: write object failed: %w", err)
	}
	// Close commits the object; errors here mean nothing was written.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcsblob: commit object failed: %w", err)
	}
	return ref, nil
}

func (s *Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object(ref)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcsblob: open %s failed: %w", ref, err)
	}
	return r, nil
}

func (s *Store) Delete(ctx context.Context, ref string) error {
	err := s.client.Bucket(s.bucket).Object(s.object(ref)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcsblob: delete %s failed: %w", ref, err)
	}
	return nil
}

func (s *Store) object(ref string) string {
	if s.prefix == "" {
		return ref
	}
	return path.Join(s.prefix, ref)
}
