package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"hazard-reporter/internal/config"
	"hazard-reporter/internal/factory"
	"hazard-reporter/internal/geo"
	"hazard-reporter/internal/inference"
	"hazard-reporter/internal/logger"
	"hazard-reporter/internal/observer"
	"hazard-reporter/internal/reportid"
	"hazard-reporter/internal/repository"
	"hazard-reporter/internal/storage"
	"hazard-reporter/internal/submission"
	"hazard-reporter/internal/transport"
	"hazard-reporter/pkg/validation"
)

const sweepInterval = time.Minute

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	backend    *inference.Client
	reports    repository.ReportRepository
	artifacts  storage.ArtifactStore
	publisher  *observer.EventPublisher
	metrics    *observer.MetricsObserver
	pipeline   *submission.Pipeline
	registry   *transport.Registry
	hub        *transport.Hub
	handler    http.Handler
	stopSweeps context.CancelFunc
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)

	// Build dependency graph
	reports, err := repository.NewSQLiteReportRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open report store: %w", err)
	}

	backend := inference.NewClient(cfg.InferenceURL, cfg.InferenceTimeout)
	components := factory.NewComponentFactory(cfg, backend)

	artifacts, err := components.StorageFactory.CreateStorage(factory.StorageType(cfg.StorageBackend))
	if err != nil {
		reports.Close()
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}
	if err := storage.EnsureContainer(ctx, artifacts); err != nil {
		reports.Close()
		return nil, err
	}

	renderer, err := components.RendererFactory.CreateRenderer()
	if err != nil {
		reports.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	var geocoder geo.ReverseGeocoder
	if cfg.GeocoderURL != "" {
		geocoder = geo.NewNominatimGeocoder(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocoderTimeout)
	}

	hub := transport.NewHub()
	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)
	publisher.Subscribe(hub)

	pipeline := submission.NewPipeline(submission.Dependencies{
		Detector:  backend,
		Renderer:  renderer,
		Resolver:  geo.NewResolver(),
		Geocoder:  geocoder,
		Store:     artifacts,
		Allocator: reportid.NewAllocator(reports),
		Reports:   reports,
		Events:    publisher,
	}, submission.Options{
		GracePeriod:         cfg.SavedGracePeriod,
		CompensationTimeout: cfg.CompensationTimeout,
		Clock:               time.Now,
	})

	registry := transport.NewRegistry(cfg.SubmissionTTL)
	handler := transport.NewHandler(transport.Services{
		Submissions: pipeline,
		Reports:     reports,
		Registry:    registry,
		Hub:         hub,
		Validator: validation.NewImageValidatorWithThresholds(validation.ImageThresholds{
			MaxBytes:     cfg.MaxRequestBodySize,
			MinWidth:     validation.DefaultImageThresholds().MinWidth,
			MinHeight:    validation.DefaultImageThresholds().MinHeight,
			AllowedTypes: validation.DefaultImageThresholds().AllowedTypes,
		}),
		Metrics: metrics,
		Health:  backend,
	}, cfg)

	return &Container{
		config:    cfg,
		backend:   backend,
		reports:   reports,
		artifacts: artifacts,
		publisher: publisher,
		metrics:   metrics,
		pipeline:  pipeline,
		registry:  registry,
		hub:       hub,
		handler:   handler,
	}, nil
}

// Start launches background housekeeping
func (c *Container) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.stopSweeps = cancel
	go c.registry.Run(ctx, sweepInterval)
}

// Close drops pending submissions and closes the report store
func (c *Container) Close() error {
	if c.stopSweeps != nil {
		c.stopSweeps()
	}
	c.registry.Close()
	return c.reports.Close()
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Pipeline returns the submission pipeline
func (c *Container) Pipeline() *submission.Pipeline {
	return c.pipeline
}

// Metrics returns the pipeline counters
func (c *Container) Metrics() map[string]interface{} {
	return c.metrics.GetMetrics()
}
