// Package storage abstracts the shared filesystem the queue and result files live on.
// Queue logic only sees Store; the backend is picked once at startup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotExist is returned (wrapped) by Read and Stat when the file is missing. Callers treat it
// as an empty document, not a failure.
var ErrNotExist = errors.New("file does not exist")

// FileInfo is the subset of file metadata every backend can provide.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Store reads and replaces whole files. There is no locking primitive: concurrent writers are
// reconciled by read-merge-write in the queue layer.
type Store interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Stat(ctx context.Context, path string) (FileInfo, error)
	Close() error
}

// CleanPath normalizes a store-relative path. Absolute paths and ".." escapes are rejected.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q must be relative", p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return "", fmt.Errorf("path %q escapes the base directory", p)
		}
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", fmt.Errorf("path %q names the base directory", p)
	}
	return cleaned, nil
}

func notExist(op, p string) error {
	return fmt.Errorf("%s %s: %w", op, p, ErrNotExist)
}
