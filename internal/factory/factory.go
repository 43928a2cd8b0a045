package factory

import (
	"fmt"

	"go-qr-scanner/internal/analyzer"
	"go-qr-scanner/internal/config"
	"go-qr-scanner/internal/storage"
	"go-qr-scanner/pkg/validation"
)

// DecoderProfile selects decode effort for a scan path
type DecoderProfile string

const (
	// StreamDecoder favours latency, the next frame is milliseconds away
	StreamDecoder DecoderProfile = "stream"
	// StillDecoder makes one thorough attempt
	StillDecoder DecoderProfile = "still"
)

// DecoderFactory creates QR decoders
type DecoderFactory interface {
	CreateDecoder(profile DecoderProfile) (analyzer.QRDecoder, error)
}

// StorageFactory creates image fetchers
type StorageFactory interface {
	CreateStorage(kind validation.SourceKind) (storage.ImageFetcher, error)
	// CreateAll returns a fetcher for every source the configuration enables
	CreateAll() (map[validation.SourceKind]storage.ImageFetcher, error)
}

// decoderFactory implements DecoderFactory
type decoderFactory struct {
	stillTryHarder bool
}

// NewDecoderFactory creates a new decoder factory
func NewDecoderFactory(cfg *config.Config) DecoderFactory {
	return &decoderFactory{stillTryHarder: cfg == nil || cfg.ScanTryHarder}
}

// CreateDecoder creates a decoder for the given profile
func (f *decoderFactory) CreateDecoder(profile DecoderProfile) (analyzer.QRDecoder, error) {
	switch profile {
	case StreamDecoder:
		return analyzer.NewQRDecoder(analyzer.StreamOptions()), nil
	case StillDecoder:
		return analyzer.NewQRDecoder(analyzer.StillOptions().WithTryHarder(f.stillTryHarder)), nil
	default:
		return nil, fmt.Errorf("unsupported decoder profile: %s", profile)
	}
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a fetcher for the given source
func (f *storageFactory) CreateStorage(kind validation.SourceKind) (storage.ImageFetcher, error) {
	switch kind {
	case validation.SourceHTTP:
		return storage.NewHTTPImageFetcher(
			storage.WithTimeout(f.cfg.ImageFetchTimeout),
			storage.WithMaxBytes(f.cfg.MaxRequestBodySize),
		), nil
	case validation.SourceAzure:
		if !f.cfg.AzureEnabled() {
			return nil, fmt.Errorf("azure storage requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
		return storage.NewAzureBlobFetcher(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey)
	case validation.SourceLocal:
		if f.cfg.LocalImageRoot == "" {
			return nil, fmt.Errorf("local storage requires LOCAL_IMAGE_ROOT")
		}
		return storage.NewLocalFileFetcher(f.cfg.LocalImageRoot)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", kind)
	}
}

// CreateAll creates every configured fetcher. HTTP is always available.
func (f *storageFactory) CreateAll() (map[validation.SourceKind]storage.ImageFetcher, error) {
	fetchers := make(map[validation.SourceKind]storage.ImageFetcher)

	kinds := []validation.SourceKind{validation.SourceHTTP}
	if f.cfg.AzureEnabled() {
		kinds = append(kinds, validation.SourceAzure)
	}
	if f.cfg.LocalImageRoot != "" {
		kinds = append(kinds, validation.SourceLocal)
	}

	for _, kind := range kinds {
		fetcher, err := f.CreateStorage(kind)
		if err != nil {
			return nil, fmt.Errorf("create %s storage: %w", kind, err)
		}
		fetchers[kind] = fetcher
	}
	return fetchers, nil
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	DecoderFactory DecoderFactory
	StorageFactory StorageFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		DecoderFactory: NewDecoderFactory(cfg),
		StorageFactory: NewStorageFactory(cfg),
	}
}
