// Package fsblob stores uploaded files on the local filesystem, one file per
// storage ref under a configured root directory.
package fsblob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sivakandan01/ai-backend/internal/blob"
)

type Store struct {
	root string
}

var _ blob.Store = (*Store)(nil)

func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("fsblob: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fsblob: create root directory failed: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Save(_ context.Context, ref string, r io.Reader) (string, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return "", err
	}

	// Write to a temp file first so a failed upload never leaves a
	// half-written blob behind the final ref.
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("fsblob: create temp file failed: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("fsblob: write file failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("fsblob: close file failed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("fsblob: finalize file failed: %w", err)
	}
	return ref, nil
}

func (s *Store) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fsblob: open %s failed: %w", ref, err)
	}
	return f, nil
}

func (s *Store) Delete(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsblob: delete %s failed: %w", ref, err)
	}
	return nil
}

// resolve rejects refs that would escape the root directory.
func (s *Store) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("fsblob: empty storage ref")
	}
	cleaned := filepath.Clean(ref)
	if cleaned != ref || strings.Contains(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("fsblob: invalid storage ref %q", ref)
	}
	return filepath.Join(s.root, cleaned), nil
}
