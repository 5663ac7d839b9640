package storage

import (
	"context"

	"hazard-reporter/pkg/models"
)

// ArtifactStore keeps annotated images in remote object storage
type ArtifactStore interface {
	// Upload stores data and returns its public URL plus the handle needed to delete it
	Upload(ctx context.Context, data []byte, contentType string) (models.UploadResult, error)

	// Delete removes an uploaded object by its handle
	Delete(ctx context.Context, publicID string) error
}
