package repository

import (
	"context"

	"go-qr-scanner/pkg/validation"
)

// ImageRepository resolves an image location to its encoded bytes
type ImageRepository interface {
	// FetchImage retrieves an image from an http(s), blob or file location
	FetchImage(ctx context.Context, location string) (*ImageData, error)

	// ValidateImageURL validates if the provided location is acceptable
	ValidateImageURL(location string) error
}

// ImageData is a fetched, still encoded image
type ImageData struct {
	Location string
	Source   validation.SourceKind
	Bytes    []byte
}

// Size returns the encoded size in bytes
func (d *ImageData) Size() int {
	return len(d.Bytes)
}
