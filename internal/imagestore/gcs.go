package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"queryforum/backend/internal/apperrors"
	"queryforum/backend/internal/config"
	"queryforum/backend/internal/logging"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// DefaultGCSBaseURL serves public objects of any bucket.
const DefaultGCSBaseURL = "https://storage.googleapis.com"

// GCSStore writes images to a Google Cloud Storage bucket.
type GCSStore struct {
	client     *storage.Client
	bucket     *storage.BucketHandle
	bucketName string
	baseURL    string
	logger     *zap.Logger
}

// NewGCSStore connects to bucketName. credentialsFile may be empty to use
// application default credentials; baseURL may be empty to use
// DefaultGCSBaseURL.
func NewGCSStore(ctx context.Context, bucketName, credentialsFile, baseURL string, logger *zap.Logger) (*GCSStore, error) {
	if bucketName == "" {
		return nil, errors.New("gcs image store: bucket not set")
	}
	if baseURL == "" {
		baseURL = DefaultGCSBaseURL
	}

	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs image store: failed in creating storage client: %w", err)
	}

	return &GCSStore{
		client:     client,
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		baseURL:    baseURL,
		logger:     logging.OrNop(logger).Named("imagestore"),
	}, nil
}

// Put streams the upload into the bucket.
func (g *GCSStore) Put(ctx context.Context, objectPath string, upload Upload) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.Object(objectPath).NewWriter(ctx)
	w.ContentType = upload.ContentType
	w.CacheControl = "public, max-age=3600"

	n, err := io.Copy(w, limited(upload.Body))
	if err != nil {
		_ = w.Close()
		g.logger.Error("image upload failed", zap.String("path", objectPath), zap.Error(err))
		return "", apperrors.Transient("upload image", err)
	}
	if n > config.MaxImageBytes {
		// Cancelling before Close abandons the partial object.
		cancel()
		_ = w.Close()
		return "", apperrors.Invalid("image", "file exceeds size limit")
	}
	if err := w.Close(); err != nil {
		g.logger.Error("failed to close writer", zap.String("path", objectPath), zap.Error(err))
		return "", apperrors.Transient("upload image", err)
	}
	g.logger.Info("image uploaded", zap.String("path", objectPath), zap.Int64("bytes", n))
	return g.PublicURL(objectPath), nil
}

// Delete removes an uploaded object.
func (g *GCSStore) Delete(ctx context.Context, objectPath string) error {
	err := g.bucket.Object(objectPath).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		g.logger.Error("image delete failed", zap.String("path", objectPath), zap.Error(err))
		return apperrors.Transient("delete image", err)
	}
	return nil
}

// PublicURL returns the URL an uploaded object is served from.
func (g *GCSStore) PublicURL(objectPath string) string {
	return joinURL(joinURL(g.baseURL, g.bucketName), objectPath)
}

// Close releases the storage client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}
