package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "go-qr-scanner/internal/errors"
)

// DefaultMaxImageBytes caps a single fetched image.
const DefaultMaxImageBytes = 20 * 1024 * 1024

// ImageFetcher returns the encoded bytes of an image.
type ImageFetcher interface {
	FetchImage(ctx context.Context, location string) ([]byte, error)
}

// HTTPImageFetcher implements ImageFetcher over plain HTTP(S)
type HTTPImageFetcher struct {
	client     *http.Client
	maxBytes   int64
	attempts   int
	retryDelay time.Duration
}

// HTTPOption customizes an HTTPImageFetcher
type HTTPOption func(*HTTPImageFetcher)

// WithRetryDelay sets the base backoff between attempts. Attempt n waits n*delay.
func WithRetryDelay(d time.Duration) HTTPOption {
	return func(h *HTTPImageFetcher) { h.retryDelay = d }
}

// WithMaxBytes caps the response body size.
func WithMaxBytes(n int64) HTTPOption {
	return func(h *HTTPImageFetcher) {
		if n > 0 {
			h.maxBytes = n
		}
	}
}

// WithTimeout sets the overall client timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(h *HTTPImageFetcher) {
		if d > 0 {
			h.client.Timeout = d
		}
	}
}

// NewHTTPImageFetcher creates an HTTP image fetcher
func NewHTTPImageFetcher(opts ...HTTPOption) *HTTPImageFetcher {
	// Transport tuned for one image per request
	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		MaxIdleConns:           10,
		MaxIdleConnsPerHost:    2,
		IdleConnTimeout:        30 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  10 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		MaxResponseHeaderBytes: 4096,
	}

	h := &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		maxBytes:   DefaultMaxImageBytes,
		attempts:   3,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// FetchImage downloads imageURL. Network failures and 5xx responses are
// retried; 4xx responses are not.
func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < h.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * h.retryDelay):
			case <-ctx.Done():
				return nil, apperrors.NewTimeoutError("image fetch cancelled", ctx.Err())
			}
		}

		data, retry, err := h.fetchOnce(ctx, imageURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}

	return nil, apperrors.NewNetworkError(
		fmt.Sprintf("failed to fetch image after %d attempts", h.attempts), lastErr)
}

// fetchOnce performs a single request and reports whether a failure is transient
func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, false, apperrors.NewValidationError("invalid URL", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, image/bmp, image/tiff, */*")
	req.Header.Set("User-Agent", "Go-QR-Scanner/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, apperrors.NewTimeoutError("image fetch cancelled", ctx.Err())
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, apperrors.NewNotFoundError("image not found", fmt.Errorf("client error: status code %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, apperrors.NewNetworkError("image request rejected", fmt.Errorf("client error: status code %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, apperrors.NewNetworkError("unexpected response", fmt.Errorf("status code %d", resp.StatusCode))
	}

	data, err := readLimited(resp.Body, h.maxBytes)
	if err != nil {
		return nil, false, err
	}
	return data, false, nil
}

// readLimited reads r fully, failing once more than limit bytes arrive
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to read image body", err)
	}
	if int64(len(data)) > limit {
		return nil, apperrors.NewValidationError(fmt.Sprintf("image exceeds %d bytes", limit), nil)
	}
	return data, nil
}
