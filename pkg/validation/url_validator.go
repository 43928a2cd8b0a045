package validation

import (
	"net/url"
	"strings"

	apperrors "go-qr-scanner/internal/errors"
)

// SourceKind identifies where an image location points
type SourceKind string

const (
	SourceHTTP  SourceKind = "http"
	SourceAzure SourceKind = "azure"
	SourceLocal SourceKind = "local"
)

// azureBlobHostSuffix marks Azure Blob Storage endpoints
const azureBlobHostSuffix = ".blob.core.windows.net"

// URLValidator checks image locations before they are fetched
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
	allowLocal     bool
}

// NewURLValidator creates a URL validator that accepts any http(s) host
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
	}
}

// NewURLValidatorWithOptions creates a URL validator with custom options
func NewURLValidatorWithOptions(schemes []string, hosts []string) *URLValidator {
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
	}
}

// AllowLocal lets file:// locations through. Only the CLI enables it.
func (v *URLValidator) AllowLocal() *URLValidator {
	v.allowLocal = true
	return v
}

// ValidateImageURL validates a remote image URL
func (v *URLValidator) ValidateImageURL(imageURL string) error {
	_, err := v.Classify(imageURL)
	return err
}

// Classify validates location and reports which source serves it
func (v *URLValidator) Classify(location string) (SourceKind, error) {
	if strings.TrimSpace(location) == "" {
		return "", apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(location)
	if err != nil {
		return "", apperrors.NewValidationError("Invalid URL format", err)
	}

	if parsedURL.Scheme == "file" {
		if !v.allowLocal {
			return "", apperrors.NewValidationError("URL scheme not allowed", nil)
		}
		if parsedURL.Path == "" {
			return "", apperrors.NewValidationError("file URL must have a path", nil)
		}
		return SourceLocal, nil
	}

	if !v.isSchemeAllowed(parsedURL.Scheme) {
		return "", apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if parsedURL.Host == "" {
		return "", apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if !v.isHostAllowed(parsedURL.Hostname()) {
		return "", apperrors.NewValidationError("URL host not allowed", nil)
	}

	if strings.HasSuffix(strings.ToLower(parsedURL.Hostname()), azureBlobHostSuffix) {
		return SourceAzure, nil
	}
	return SourceHTTP, nil
}

// isSchemeAllowed checks if the URL scheme is in the allowed list
func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isHostAllowed checks if the URL host is in the allowed list
// Returns true if no host restrictions are set (empty allowedHosts)
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}
