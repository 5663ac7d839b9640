package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	apperrors "hazard-reporter/internal/errors"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobService struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	types   map[string]string
	deletes []string
}

func newFakeBlobService() *fakeBlobService {
	return &fakeBlobService{blobs: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.blobs[r.URL.Path] = data
		f.types[r.URL.Path] = r.Header.Get("x-ms-blob-content-type")
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		f.deletes = append(f.deletes, r.URL.Path)
		if _, ok := f.blobs[r.URL.Path]; !ok {
			w.Header().Set("x-ms-error-code", "BlobNotFound")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.blobs, r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	default:
		w.Header().Set("x-ms-error-code", "AuthorizationFailure")
		w.WriteHeader(http.StatusForbidden)
	}
}

func newTestStore(t *testing.T, handler http.Handler) (ArtifactStore, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := azblob.NewClientWithNoCredential(server.URL+"/", ClientOptions())
	require.NoError(t, err)
	return NewAzureArtifactStoreWithClient(client, "reports"), server.URL
}

func TestAzureArtifactStore_UploadAndDelete(t *testing.T) {
	fake := newFakeBlobService()
	store, baseURL := newTestStore(t, fake)
	ctx := context.Background()

	result, err := store.Upload(ctx, []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.PublicID, BlobFolder+"/"))
	assert.True(t, strings.HasSuffix(result.PublicID, ".jpg"))
	assert.Equal(t, baseURL+"/reports/"+result.PublicID, result.URL)

	path := "/reports/" + result.PublicID
	assert.Equal(t, []byte("jpeg-bytes"), fake.blobs[path])
	assert.Equal(t, "image/jpeg", fake.types[path])

	require.NoError(t, store.Delete(ctx, result.PublicID))
	assert.Empty(t, fake.blobs)
	assert.Equal(t, []string{path}, fake.deletes)
}

func TestAzureArtifactStore_UniqueNames(t *testing.T) {
	store, _ := newTestStore(t, newFakeBlobService())

	first, err := store.Upload(context.Background(), []byte("a"), "image/webp")
	require.NoError(t, err)
	second, err := store.Upload(context.Background(), []byte("b"), "image/webp")
	require.NoError(t, err)

	assert.NotEqual(t, first.PublicID, second.PublicID)
	assert.True(t, strings.HasSuffix(first.PublicID, ".webp"))
}

func TestAzureArtifactStore_DeleteMissingBlobIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t, newFakeBlobService())
	assert.NoError(t, store.Delete(context.Background(), BlobFolder+"/gone.jpg"))
	assert.Error(t, store.Delete(context.Background(), ""))
}

func TestAzureArtifactStore_UploadFailure(t *testing.T) {
	store, _ := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-error-code", "AuthorizationFailure")
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := store.Upload(context.Background(), []byte("x"), "image/jpeg")
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUpload))
}

func TestNewAzureArtifactStore_InvalidKey(t *testing.T) {
	_, err := NewAzureArtifactStore("account", "not base64!", "", "reports")
	assert.Error(t, err)
}
