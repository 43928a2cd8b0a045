package analyzer

import (
	"context"
	"time"

	apperrors "go-qr-scanner/internal/errors"
	"go-qr-scanner/internal/frame"
	"go-qr-scanner/internal/loader"
	"go-qr-scanner/internal/observer"
)

// StillImageScanner scans user supplied images. It keeps no state between
// calls and makes a single attempt per image.
type StillImageScanner struct {
	decoder QRDecoder
	pool    *WorkerPool
	events  observer.Subject
}

// NewStillImageScanner creates a scanner. pool runs ScanAsync jobs; when it
// is nil each async scan gets its own goroutine. events may be nil.
func NewStillImageScanner(decoder QRDecoder, pool *WorkerPool, events observer.Subject) *StillImageScanner {
	return &StillImageScanner{
		decoder: decoder,
		pool:    pool,
		events:  events,
	}
}

// Scan decodes data, applies the EXIF orientation and reads the symbol.
func (s *StillImageScanner) Scan(ctx context.Context, data []byte, exifOrientation int) ScanOutcome {
	start := time.Now()
	outcome := s.scan(ctx, data, exifOrientation)
	s.publish(outcome, time.Since(start), exifOrientation)
	return outcome
}

func (s *StillImageScanner) scan(ctx context.Context, data []byte, exifOrientation int) ScanOutcome {
	if err := ctx.Err(); err != nil {
		return Failed(apperrors.NewTimeoutError("still scan cancelled", err))
	}

	img, _, err := loader.Decode(data)
	if err != nil {
		return Failed(err)
	}

	rotated := frame.RotateImage(img, frame.OrientationFromEXIF(exifOrientation))
	lum, err := frame.FromImage(rotated)
	if err != nil {
		return Failed(err)
	}

	if err := ctx.Err(); err != nil {
		return Failed(apperrors.NewTimeoutError("still scan cancelled", err))
	}
	return s.decoder.Decode(lum)
}

// ScanAsync runs Scan off the calling goroutine and invokes handler exactly
// once: with the outcome, or with a timeout error if ctx ends first.
func (s *StillImageScanner) ScanAsync(ctx context.Context, data []byte, exifOrientation int, handler ResultHandler) {
	if handler == nil {
		handler = func(context.Context, ScanOutcome) {}
	}

	result := make(chan ScanOutcome, 1)
	job := func() {
		result <- s.Scan(ctx, data, exifOrientation)
	}

	if s.pool == nil {
		go job()
	} else if !s.pool.SubmitContext(ctx, job) {
		go handler(ctx, Failed(apperrors.NewTimeoutError("still scan was not scheduled", ctx.Err())))
		return
	}

	go func() {
		select {
		case outcome := <-result:
			handler(ctx, outcome)
		case <-ctx.Done():
			handler(ctx, Failed(apperrors.NewTimeoutError("still scan timed out", ctx.Err())))
		}
	}()
}

func (s *StillImageScanner) publish(outcome ScanOutcome, elapsed time.Duration, exifOrientation int) {
	if s.events == nil {
		return
	}
	event := observer.ScanEvent{
		EventType:      observer.StillScanCompleted,
		Timestamp:      time.Now(),
		Source:         "still",
		ProcessingTime: elapsed,
		Success:        outcome.IsDecoded(),
		Outcome:        outcome.Kind.String(),
		Metadata:       map[string]interface{}{"exif_orientation": exifOrientation},
	}
	if !outcome.IsDecoded() {
		event.EventType = observer.StillScanFailed
		if outcome.Err != nil {
			event.ErrorMessage = outcome.Err.Error()
		}
	}
	s.events.NotifyObservers(context.Background(), event)
}
