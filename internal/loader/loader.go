// Package loader turns encoded image bytes into a bitmap plus the metadata
// the scanners need.
package loader

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	apperrors "go-qr-scanner/internal/errors"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the decoded size of a single image.
const MaxPixels = 50_000_000

// Decode decodes data into an image. Any failure, including an image too
// large to decode, is reported as a load failure.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", apperrors.NewLoadFailedError("empty image data", nil)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperrors.NewLoadFailedError("unrecognized image format", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, format, apperrors.NewLoadFailedError(
			fmt.Sprintf("image dimensions %dx%d out of range", cfg.Width, cfg.Height), nil)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, format, apperrors.NewLoadFailedError("failed to decode "+format+" image", err)
	}
	return img, format, nil
}

// EXIFOrientation returns the orientation tag stored in the image metadata,
// or 1 (normal) when there is none.
func EXIFOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}
