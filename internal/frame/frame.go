// Package frame turns native pixel buffers and decoded images into the
// canonical luminance grid consumed by the QR decoder, and normalizes its
// orientation.
package frame

import (
	"fmt"

	apperrors "go-qr-scanner/internal/errors"
)

// Luminance is a row-major grid of 8-bit brightness samples.
//
// A Luminance value is never mutated after creation; transforms return a
// new grid.
type Luminance struct {
	width   int
	height  int
	samples []byte
	// rotation hint in degrees carried over from the source buffer
	rotation int
}

// NewLuminance copies samples into a new grid.
func NewLuminance(width, height int, samples []byte) (*Luminance, error) {
	if width <= 0 || height <= 0 {
		return nil, apperrors.NewConversionError(
			fmt.Sprintf("invalid dimensions %dx%d", width, height), nil)
	}
	if len(samples) != width*height {
		return nil, apperrors.NewConversionError(
			fmt.Sprintf("expected %d samples, got %d", width*height, len(samples)), nil)
	}
	own := make([]byte, len(samples))
	copy(own, samples)
	return &Luminance{width: width, height: height, samples: own}, nil
}

func (l *Luminance) Width() int  { return l.width }
func (l *Luminance) Height() int { return l.height }

// RotationHint returns the rotation in degrees reported by the frame source.
func (l *Luminance) RotationHint() int { return l.rotation }

// Samples returns the backing samples. Callers must treat the slice as read-only.
func (l *Luminance) Samples() []byte { return l.samples }

// At returns the sample at column x, row y.
func (l *Luminance) At(x, y int) byte {
	return l.samples[y*l.width+x]
}

// Equal reports whether both grids have the same size and samples.
func (l *Luminance) Equal(o *Luminance) bool {
	if l == nil || o == nil {
		return l == o
	}
	if l.width != o.width || l.height != o.height {
		return false
	}
	for i := range l.samples {
		if l.samples[i] != o.samples[i] {
			return false
		}
	}
	return true
}
