// Package archive keeps a copy of every raw upload in object storage. The
// original bytes are the audit trail when extraction output is disputed.
package archive

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"afin/internal/domain"
)

// Archiver stores raw uploads and returns a stable URI for each.
type Archiver interface {
	Save(ctx context.Context, userID string, upload domain.Upload) (string, error)
}

// GCS archives uploads to a Cloud Storage bucket. It assumes Application
// Default Credentials are configured.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates a bucket-backed archiver.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// Save implements the Archiver interface. Objects land under
// inbox/<user>/<date>/<uuid>-<filename> so the same filename uploaded twice
// never collides.
func (g *GCS) Save(ctx context.Context, userID string, upload domain.Upload) (string, error) {
	object := fmt.Sprintf("inbox/%s/%s/%s-%s",
		userID,
		time.Now().UTC().Format("2006-01-02"),
		uuid.NewString(),
		upload.Filename,
	)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if upload.MediaType != "" {
		w.ContentType = upload.MediaType
	}
	if _, err := w.Write(upload.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Save: write object %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Save: finalize upload %s: %w", object, err)
	}

	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

// Close releases the underlying storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Disabled is the no-op archiver used when no bucket is configured.
type Disabled struct{}

// Save implements the Archiver interface.
func (Disabled) Save(ctx context.Context, userID string, upload domain.Upload) (string, error) {
	return "", nil
}

// Ensure implementations satisfy Archiver.
var (
	_ Archiver = (*GCS)(nil)
	_ Archiver = Disabled{}
)
