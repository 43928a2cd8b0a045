package analyzer

import (
	"errors"

	apperrors "go-qr-scanner/internal/errors"
)

// OutcomeKind tags a ScanOutcome.
type OutcomeKind int

const (
	OutcomeNotFound OutcomeKind = iota
	OutcomeDecoded
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeDecoded:
		return "decoded"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeError:
		return "error"
	}
	return "unknown"
}

// ScanOutcome is the result of one decode attempt: decoded text, no symbol
// in view, or a typed failure. Build it with Decoded, NotFound or Failed.
type ScanOutcome struct {
	Kind OutcomeKind
	Text string
	Err  *apperrors.AppError
}

// Decoded reports a successfully read payload.
func Decoded(text string) ScanOutcome {
	return ScanOutcome{Kind: OutcomeDecoded, Text: text}
}

// NotFound reports a frame without a QR symbol.
func NotFound() ScanOutcome {
	return ScanOutcome{Kind: OutcomeNotFound}
}

// Failed reports a typed failure. Errors that are not AppErrors are recorded
// as processing failures.
func Failed(err error) ScanOutcome {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewProcessingError("scan failed", err)
	}
	return ScanOutcome{Kind: OutcomeError, Err: appErr}
}

// IsDecoded reports whether the outcome carries a payload.
func (o ScanOutcome) IsDecoded() bool {
	return o.Kind == OutcomeDecoded
}

// ErrorType returns the failure category, or "" for non-error outcomes.
func (o ScanOutcome) ErrorType() apperrors.ErrorType {
	if o.Kind != OutcomeError || o.Err == nil {
		return ""
	}
	return o.Err.Type
}

// Message is the single line shown to a user for this outcome.
func (o ScanOutcome) Message() string {
	switch o.Kind {
	case OutcomeDecoded:
		return o.Text
	case OutcomeNotFound:
		return "no QR code found"
	}
	switch o.ErrorType() {
	case apperrors.ErrorTypeDecode:
		return "could not read code"
	case apperrors.ErrorTypeLoadFailed:
		return "could not load image"
	case apperrors.ErrorTypeConversion:
		return "unsupported image data"
	case apperrors.ErrorTypeTimeout:
		return "scan timed out"
	}
	return "scan failed"
}
