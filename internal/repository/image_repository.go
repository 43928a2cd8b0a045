package repository

import (
	"context"

	"go-qr-scanner/internal/logger"
	"go-qr-scanner/internal/storage"
	"go-qr-scanner/pkg/validation"

	"github.com/sirupsen/logrus"
)

// SourceImageRepository routes each location to the fetcher for its source
type SourceImageRepository struct {
	validator *validation.URLValidator
	fetchers  map[validation.SourceKind]storage.ImageFetcher
}

// NewImageRepository creates a repository. Sources without a fetcher are
// refused with ErrSourceUnavailable, except blob URLs, which fall back to
// plain HTTP when no Azure fetcher is configured (public containers).
func NewImageRepository(validator *validation.URLValidator, fetchers map[validation.SourceKind]storage.ImageFetcher) *SourceImageRepository {
	if validator == nil {
		validator = validation.NewURLValidator()
	}
	return &SourceImageRepository{
		validator: validator,
		fetchers:  fetchers,
	}
}

// FetchImage retrieves an image from its source
func (r *SourceImageRepository) FetchImage(ctx context.Context, location string) (*ImageData, error) {
	kind, err := r.validator.Classify(location)
	if err != nil {
		return nil, err
	}

	fetcher, ok := r.fetchers[kind]
	if !ok && kind == validation.SourceAzure {
		fetcher, ok = r.fetchers[validation.SourceHTTP]
	}
	if !ok || fetcher == nil {
		return nil, ErrSourceUnavailable
	}

	data, err := fetcher.FetchImage(ctx, location)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"source":   kind,
			"location": location,
		}).Warn("Image fetch failed")
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	logger.WithFields(logrus.Fields{
		"source": kind,
		"bytes":  len(data),
	}).Debug("Image fetched")

	return &ImageData{Location: location, Source: kind, Bytes: data}, nil
}

// ValidateImageURL validates if the provided location is acceptable
func (r *SourceImageRepository) ValidateImageURL(location string) error {
	return r.validator.ValidateImageURL(location)
}
