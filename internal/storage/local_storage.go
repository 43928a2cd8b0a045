package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	apperrors "go-qr-scanner/internal/errors"
)

// LocalFileFetcher reads images below a root directory
type LocalFileFetcher struct {
	root     string
	maxBytes int64
}

// NewLocalFileFetcher confines reads to root. An empty root means the
// working directory.
func NewLocalFileFetcher(root string) (*LocalFileFetcher, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image root", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, apperrors.NewValidationError("image root is not a directory", err)
	}
	return &LocalFileFetcher{root: abs, maxBytes: DefaultMaxImageBytes}, nil
}

// FetchImage reads a file given as a path relative to the root or a file:// URL.
func (l *LocalFileFetcher) FetchImage(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTimeoutError("image read cancelled", err)
	}

	name := filepath.FromSlash(strings.TrimPrefix(location, "file://"))
	if !filepath.IsAbs(name) {
		name = filepath.Join(l.root, name)
	}
	name = filepath.Clean(name)

	rel, err := filepath.Rel(l.root, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, apperrors.NewValidationError("path escapes the image root", nil)
	}

	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("image file not found", err)
		}
		return nil, apperrors.NewProcessingError("failed to open image file", err)
	}
	defer f.Close()

	return readLimited(f, l.maxBytes)
}
