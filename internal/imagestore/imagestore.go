// Package imagestore uploads complaint images to an object store and returns
// a public URL for them.
package imagestore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/config"
)

// Upload is an image received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store persists an object under a path and returns its public URL.
// Delete removes an object; deleting a missing object is not an error.
type Store interface {
	Put(ctx context.Context, objectPath string, upload Upload) (string, error)
	Delete(ctx context.Context, objectPath string) error
}

// Validate rejects an upload before anything is sent to the store.
func Validate(upload Upload) error {
	if upload.Size <= 0 {
		return apperrors.Invalid("image", "file is empty")
	}
	if upload.Size > config.MaxImageBytes {
		return apperrors.Invalid("image", fmt.Sprintf("file exceeds %d MB", config.MaxImageBytes/(1024*1024)))
	}
	if upload.ContentType != "" && !strings.HasPrefix(upload.ContentType, "image/") {
		return apperrors.Invalid("image", "file must be an image")
	}
	return nil
}

// ObjectPath returns "<userID>/<unix millis>.<ext>" for filename.
func ObjectPath(userID, filename string, now time.Time) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d.%s", userID, now.UnixMilli(), ext)
}

// limited caps a body at the maximum image size plus one byte so an
// oversized stream is detected even when the declared size lied.
func limited(body io.Reader) io.Reader {
	return io.LimitReader(body, config.MaxImageBytes+1)
}

func joinURL(base, objectPath string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(objectPath, "/")
}
