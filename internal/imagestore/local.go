package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/config"
	"queryforum/backend/internal/logging"

	"go.uber.org/zap"
)

// LocalStore writes images below a directory that the HTTP server exposes
// at baseURL.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string, logger *zap.Logger) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("local image store: directory not set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local image store: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: baseURL, logger: logging.OrNop(logger).Named("imagestore")}, nil
}

// Dir is the root directory of stored images.
func (l *LocalStore) Dir() string {
	return l.dir
}

// Put writes the upload to a temporary file and renames it into place so a
// reader never sees a partial image.
func (l *LocalStore) Put(ctx context.Context, objectPath string, upload Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := l.resolve(objectPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", apperrors.Transient("upload image", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", apperrors.Transient("upload image", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, limited(upload.Body))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		l.logger.Error("image upload failed", zap.String("path", objectPath), zap.Error(err))
		return "", apperrors.Transient("upload image", err)
	}
	if n > config.MaxImageBytes {
		return "", apperrors.Invalid("image", "file exceeds size limit")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", apperrors.Transient("upload image", err)
	}

	l.logger.Info("image uploaded", zap.String("path", objectPath), zap.Int64("bytes", n))
	return joinURL(l.baseURL, objectPath), nil
}

// Delete removes a stored image.
func (l *LocalStore) Delete(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := l.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Transient("delete image", err)
	}
	return nil
}

// resolve maps objectPath into the store directory, rejecting paths that
// escape it.
func (l *LocalStore) resolve(objectPath string) (string, error) {
	target := filepath.Join(l.dir, filepath.FromSlash(objectPath))
	rel, err := filepath.Rel(l.dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.Invalid("image", "invalid object path")
	}
	return target, nil
}
