package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/widgetgate/widgetgate/pkg/dispatch"
	"github.com/widgetgate/widgetgate/pkg/registry"
)

var (
	// ErrDomainDenied is returned when the request origin is not in the
	// tenant's allow-list.
	ErrDomainDenied = errors.New("origin not allowed for this tenant")

	// ErrUnauthorizedDevKey is returned on dev endpoint key mismatch.
	ErrUnauthorizedDevKey = errors.New("invalid or missing api key")
)

// errorBody renders a JSON error payload. The string-coercion fallback
// guards against values that fail to serialize, so the client always
// receives a well-formed body.
func errorBody(message string) []byte {
	data, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":%q}`, fmt.Sprint(message)))
	}
	return data
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(errorBody(message))
}

// writeError converts a per-request error into the matching HTTP response.
// Nothing here is allowed to crash the process; unknown errors become a
// generic 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var notFound *registry.NotFoundError
	var upstream *dispatch.UpstreamError

	switch {
	case errors.As(err, &notFound):
		writeJSONError(w, http.StatusNotFound, notFound.Error())

	case errors.Is(err, registry.ErrNotConfigured):
		writeJSONError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, dispatch.ErrMissingBoundary):
		writeJSONError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, dispatch.ErrUploadTooLarge):
		writeJSONError(w, http.StatusRequestEntityTooLarge, err.Error())

	case errors.Is(err, ErrDomainDenied):
		writeJSONError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, ErrUnauthorizedDevKey):
		writeJSONError(w, http.StatusUnauthorized, err.Error())

	case errors.As(err, &upstream):
		// Pass the upstream's own status and body through when it
		// responded; transport failures map to 500.
		if upstream.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(upstream.StatusCode)
			_, _ = w.Write(upstream.Body)
			return
		}
		s.logger.Error("Upstream call failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "proxy server error")

	default:
		s.logger.Error("Unhandled request error", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "proxy server error")
	}
}
