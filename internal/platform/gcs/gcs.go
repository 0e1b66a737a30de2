package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// New builds a Cloud Storage client using ambient credentials (service
// account or application default credentials).
func New(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client failed: %w", err)
	}
	return client, nil
}
