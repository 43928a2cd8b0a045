package repository

import apperrors "go-qr-scanner/internal/errors"

var (
	// ErrSourceUnavailable indicates the location needs a source that is not configured
	ErrSourceUnavailable = apperrors.NewValidationError("image source not configured", nil)

	// ErrEmptyImage indicates the source returned no bytes
	ErrEmptyImage = apperrors.NewLoadFailedError("image is empty", nil)
)
