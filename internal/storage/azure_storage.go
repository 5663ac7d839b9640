package storage

import (
	"context"
	"fmt"
	"strings"

	apperrors "hazard-reporter/internal/errors"
	"hazard-reporter/internal/logger"
	"hazard-reporter/pkg/models"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BlobFolder is the virtual directory uploaded artifacts are placed under
const BlobFolder = "road_hazard_reports"

type azureArtifactStore struct {
	client    *azblob.Client
	container string
}

// NewAzureArtifactStore authenticates with a shared key. An empty serviceURL
// means the public endpoint of the account.
func NewAzureArtifactStore(accountName, accountKey, serviceURL, container string) (ArtifactStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, ClientOptions())
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}

	return NewAzureArtifactStoreWithClient(client, container), nil
}

// ClientOptions disables the SDK's retry policy. A failed upload surfaces
// immediately and a failed delete is only logged.
func ClientOptions() *azblob.ClientOptions {
	return &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
}

// NewAzureArtifactStoreWithClient wraps an already configured client
func NewAzureArtifactStoreWithClient(client *azblob.Client, container string) ArtifactStore {
	return &azureArtifactStore{client: client, container: container}
}

// EnsureContainer creates the container when it does not exist yet
func EnsureContainer(ctx context.Context, store ArtifactStore) error {
	s, ok := store.(*azureArtifactStore)
	if !ok {
		return nil
	}
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container %s: %w", s.container, err)
	}
	return nil
}

func (s *azureArtifactStore) Upload(ctx context.Context, data []byte, contentType string) (models.UploadResult, error) {
	blobName := fmt.Sprintf("%s/%s%s", BlobFolder, uuid.NewString(), extensionFor(contentType))

	_, err := s.client.UploadBuffer(ctx, s.container, blobName, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return models.UploadResult{}, apperrors.NewUploadError("image upload failed", err)
	}

	result := models.UploadResult{
		URL:      s.blobURL(blobName),
		PublicID: blobName,
	}
	logger.WithFields(logrus.Fields{
		"container": s.container,
		"blob":      blobName,
		"bytes":     len(data),
	}).Info("Artifact uploaded")
	return result, nil
}

func (s *azureArtifactStore) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return apperrors.NewValidationError("public id is required", nil)
	}
	if _, err := s.client.DeleteBlob(ctx, s.container, publicID, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return apperrors.NewNetworkError("image delete failed", err)
	}
	logger.WithField("blob", publicID).Info("Artifact deleted")
	return nil
}

func (s *azureArtifactStore) blobURL(blobName string) string {
	return strings.TrimRight(s.client.URL(), "/") + "/" + s.container + "/" + blobName
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
