package factory

import (
	"fmt"

	"hazard-reporter/internal/annotate"
	"hazard-reporter/internal/config"
	"hazard-reporter/internal/inference"
	"hazard-reporter/internal/storage"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// HTTPStorage uploads through the inference backend's CDN endpoints
	HTTPStorage StorageType = config.StorageBackendHTTP
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = config.StorageBackendAzure
)

// StorageFactory creates artifact store implementations
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.ArtifactStore, error)
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg     *config.Config
	backend *inference.Client
}

// NewStorageFactory creates a new storage factory. backend is reused for the http store.
func NewStorageFactory(cfg *config.Config, backend *inference.Client) StorageFactory {
	return &storageFactory{cfg: cfg, backend: backend}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.ArtifactStore, error) {
	switch storageType {
	case HTTPStorage:
		if f.backend == nil {
			return nil, fmt.Errorf("http storage requires an inference backend client")
		}
		return f.backend, nil
	case AzureStorage:
		return storage.NewAzureArtifactStore(
			f.cfg.AzureAccountName,
			f.cfg.AzureAccountKey,
			f.cfg.AzureServiceURL,
			f.cfg.AzureContainer,
		)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// RendererFactory creates annotators from config
type RendererFactory interface {
	CreateRenderer() (annotate.Renderer, error)
}

type rendererFactory struct {
	cfg *config.Config
}

// NewRendererFactory creates a new renderer factory
func NewRendererFactory(cfg *config.Config) RendererFactory {
	return &rendererFactory{cfg: cfg}
}

// CreateRenderer builds an annotator writing to the configured scratch dir
func (f *rendererFactory) CreateRenderer() (annotate.Renderer, error) {
	return annotate.NewAnnotator(annotate.Options{
		ScratchDir: f.cfg.ScratchDir,
		Format:     f.cfg.ArtifactFormat,
		Quality:    f.cfg.ArtifactQuality,
	})
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory  StorageFactory
	RendererFactory RendererFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config, backend *inference.Client) *ComponentFactory {
	return &ComponentFactory{
		StorageFactory:  NewStorageFactory(cfg, backend),
		RendererFactory: NewRendererFactory(cfg),
	}
}
