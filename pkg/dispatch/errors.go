package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingBoundary is returned when the multipart boundary is absent
	// from both the Content-Type header and the raw body.
	ErrMissingBoundary = errors.New("multipart boundary not found in header or body")

	// ErrUploadTooLarge is returned when a raw upload exceeds the
	// configured buffer limit. Deliberately distinct from generic
	// upstream failures so clients see a 413, not a 500.
	ErrUploadTooLarge = errors.New("upload exceeds maximum allowed size")
)

// UpstreamError carries a failed outbound call. When the upstream
// responded, its status code and body pass through to the client; a
// transport-level failure reports status 0 and maps to 500.
type UpstreamError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream call failed: %v", e.Err)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
