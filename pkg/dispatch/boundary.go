package dispatch

import (
	"bytes"
	"mime"
	"strings"
)

// BoundaryRecoverer recovers a multipart boundary from raw body bytes when
// the Content-Type header lost its boundary parameter. Isolated behind an
// interface so the recovery heuristic is testable independently of the
// dispatch path.
type BoundaryRecoverer interface {
	Recover(raw []byte) (string, bool)
}

// FirstLineRecoverer pattern-matches the first line of the raw body
// ("--<boundary>") to reconstruct the boundary. This is a best-effort
// resilience measure against clients or intermediaries that strip the
// boundary parameter; a body that does not open with a dash-dash line
// defeats it.
type FirstLineRecoverer struct{}

// Recover extracts the boundary from the body's first line.
func (FirstLineRecoverer) Recover(raw []byte) (string, bool) {
	end := bytes.IndexByte(raw, '\n')
	if end == -1 {
		end = len(raw)
	}
	line := strings.TrimRight(string(raw[:end]), "\r\n")

	if !strings.HasPrefix(line, "--") {
		return "", false
	}

	boundary := strings.TrimPrefix(line, "--")
	if boundary == "" {
		return "", false
	}

	return boundary, true
}

// EnsureBoundary returns a Content-Type usable for the outbound multipart
// call. The header's own boundary parameter wins; otherwise the recoverer
// reconstructs a corrected header from the raw bytes. When both fail the
// request is rejected with ErrMissingBoundary.
func EnsureBoundary(contentType string, raw []byte, recoverer BoundaryRecoverer) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "multipart/form-data"
		params = map[string]string{}
	}

	if params["boundary"] != "" {
		return contentType, nil
	}

	if recoverer != nil {
		if boundary, ok := recoverer.Recover(raw); ok {
			params["boundary"] = boundary
			return mime.FormatMediaType(mediaType, params), nil
		}
	}

	return "", ErrMissingBoundary
}
