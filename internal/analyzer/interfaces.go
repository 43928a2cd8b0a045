package analyzer

import (
	"context"

	"go-qr-scanner/internal/frame"
)

// QRDecoder turns a luminance grid into a scan outcome. Implementations are
// stateless and safe for concurrent use.
type QRDecoder interface {
	Decode(f *frame.Luminance) ScanOutcome
}

// QRDecoderFunc adapts a function to QRDecoder.
type QRDecoderFunc func(f *frame.Luminance) ScanOutcome

func (fn QRDecoderFunc) Decode(f *frame.Luminance) ScanOutcome { return fn(f) }

// ResultHandler receives the single outcome of a scan session or attempt.
type ResultHandler func(ctx context.Context, outcome ScanOutcome)

// Dispatcher moves a callback onto the execution context its consumer
// requires and returns once it has run.
type Dispatcher interface {
	Dispatch(ctx context.Context, fn func()) error
}

// StillScanner scans a single user supplied image.
type StillScanner interface {
	Scan(ctx context.Context, data []byte, exifOrientation int) ScanOutcome
	ScanAsync(ctx context.Context, data []byte, exifOrientation int, handler ResultHandler)
}
