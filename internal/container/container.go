package container

import (
	"fmt"
	"net/http"

	"go-qr-scanner/internal/analyzer"
	"go-qr-scanner/internal/config"
	"go-qr-scanner/internal/factory"
	"go-qr-scanner/internal/logger"
	"go-qr-scanner/internal/observer"
	"go-qr-scanner/internal/repository"
	"go-qr-scanner/internal/service"
	"go-qr-scanner/internal/transport"
	"go-qr-scanner/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	events          observer.Subject
	metrics         *observer.MetricsObserver
	pool            *analyzer.WorkerPool
	imageRepository repository.ImageRepository
	scanService     service.ScanService
	streams         *service.StreamRegistry
	handler         http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	components := factory.NewComponentFactory(cfg)

	// Events
	events := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	// Image sources
	fetchers, err := components.StorageFactory.CreateAll()
	if err != nil {
		return nil, fmt.Errorf("failed to create image sources: %w", err)
	}
	validator := validation.NewURLValidator()
	if _, ok := fetchers[validation.SourceLocal]; ok {
		validator.AllowLocal()
	}
	imageRepository := repository.NewImageRepository(validator, fetchers)

	// Decoders
	stillDecoder, err := components.DecoderFactory.CreateDecoder(factory.StillDecoder)
	if err != nil {
		return nil, err
	}
	streamDecoder, err := components.DecoderFactory.CreateDecoder(factory.StreamDecoder)
	if err != nil {
		return nil, err
	}

	pool := analyzer.NewWorkerPool(cfg.ScanWorkers)
	pool.Start()

	scanner := analyzer.NewStillImageScanner(stillDecoder, pool, events)
	scanService := service.NewScanService(imageRepository, scanner, cfg.ScanTimeout)
	streams := service.NewStreamRegistry(streamDecoder, events, cfg.MaxStreams)

	handler := transport.NewHandler(transport.Dependencies{
		Config:  cfg,
		Scans:   scanService,
		Streams: streams,
		Metrics: metrics,
		Pool:    pool,
	})

	return &Container{
		config:          cfg,
		events:          events,
		metrics:         metrics,
		pool:            pool,
		imageRepository: imageRepository,
		scanService:     scanService,
		streams:         streams,
		handler:         handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Close stops every stream session and the scan workers
func (c *Container) Close() {
	c.streams.Close()
	c.pool.Close()
}
