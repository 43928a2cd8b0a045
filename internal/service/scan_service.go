package service

import (
	"context"
	"time"
	"unicode/utf8"

	"go-qr-scanner/internal/analyzer"
	apperrors "go-qr-scanner/internal/errors"
	"go-qr-scanner/internal/loader"
	"go-qr-scanner/internal/logger"
	"go-qr-scanner/internal/repository"
	"go-qr-scanner/pkg/models"

	"github.com/arbovm/levenshtein"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ScanOptions tunes a still scan request
type ScanOptions struct {
	// ExpectedText, when set, is compared with the decoded payload
	ExpectedText string
	// EXIFOrientation overrides the orientation read from the file
	EXIFOrientation *int
}

// ScanService scans still images from uploads or remote locations
type ScanService interface {
	ScanImage(ctx context.Context, data []byte, source string, opts ScanOptions) (*models.ScanResult, error)
	ScanURL(ctx context.Context, imageURL string, opts ScanOptions) (*models.ScanResult, error)
	ValidateImageURL(imageURL string) error
}

// scanService implements ScanService on top of the still image scanner
type scanService struct {
	imageRepo repository.ImageRepository
	scanner   analyzer.StillScanner
	timeout   time.Duration
}

// NewScanService creates a new scan service. timeout bounds each scan.
func NewScanService(imageRepository repository.ImageRepository, scanner analyzer.StillScanner, timeout time.Duration) ScanService {
	return &scanService{
		imageRepo: imageRepository,
		scanner:   scanner,
		timeout:   timeout,
	}
}

// ScanURL fetches an image and scans it
func (s *scanService) ScanURL(ctx context.Context, imageURL string, opts ScanOptions) (*models.ScanResult, error) {
	if err := s.ValidateImageURL(imageURL); err != nil {
		return nil, err
	}

	img, err := s.imageRepo.FetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	return s.ScanImage(ctx, img.Bytes, imageURL, opts)
}

// ScanImage scans encoded image bytes. Outcomes that carry an error are
// returned both in the result and as the error.
func (s *scanService) ScanImage(ctx context.Context, data []byte, source string, opts ScanOptions) (*models.ScanResult, error) {
	start := time.Now()

	orientation := loader.EXIFOrientation(data)
	if opts.EXIFOrientation != nil {
		orientation = *opts.EXIFOrientation
	}

	outcome := s.scan(ctx, data, orientation)

	result := &models.ScanResult{
		ID:                uuid.NewString(),
		Source:            source,
		Timestamp:         start.UTC(),
		ProcessingTimeSec: time.Since(start).Seconds(),
		Outcome:           outcome.Kind.String(),
		Text:              outcome.Text,
		Message:           outcome.Message(),
		ErrorType:         string(outcome.ErrorType()),
		EXIFOrientation:   orientation,
	}
	if opts.ExpectedText != "" && outcome.IsDecoded() {
		result.Verification = verify(outcome.Text, opts.ExpectedText)
	}

	logger.WithFields(logrus.Fields{
		"scan_id":          result.ID,
		"source":           source,
		"outcome":          result.Outcome,
		"exif_orientation": orientation,
		"duration_sec":     result.ProcessingTimeSec,
	}).Info("Still image scanned")

	if outcome.Err != nil {
		return result, outcome.Err
	}
	return result, nil
}

// scan runs the scanner asynchronously and waits for its single callback
func (s *scanService) scan(ctx context.Context, data []byte, orientation int) analyzer.ScanOutcome {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan analyzer.ScanOutcome, 1)
	s.scanner.ScanAsync(ctx, data, orientation, func(_ context.Context, outcome analyzer.ScanOutcome) {
		done <- outcome
	})
	return <-done
}

// ValidateImageURL validates the image URL
func (s *scanService) ValidateImageURL(imageURL string) error {
	if err := s.imageRepo.ValidateImageURL(imageURL); err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			return err
		}
		return apperrors.NewValidationError("invalid image URL", err)
	}
	return nil
}

// verify scores decoded against expected with a normalized edit distance
func verify(decoded, expected string) *models.Verification {
	distance := levenshtein.Distance(decoded, expected)
	longest := max(utf8.RuneCountInString(decoded), utf8.RuneCountInString(expected))

	score := 1.0
	if longest > 0 {
		score = 1 - float64(distance)/float64(longest)
	}
	if score < 0 {
		score = 0
	}

	return &models.Verification{
		ExpectedText: expected,
		Matched:      decoded == expected,
		Distance:     distance,
		MatchScore:   score,
	}
}
