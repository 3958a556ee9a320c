package gateway

import (
	"net/http"
	"strings"

	"github.com/widgetgate/widgetgate/pkg/origin"
	"github.com/widgetgate/widgetgate/pkg/registry"
	"github.com/widgetgate/widgetgate/pkg/rewrite"
)

// identify resolves the tenant a request path refers to by scanning
// every non-UUID segment for a registered identifier. Nil when no
// segment resolves.
func (s *Server) identify(path string) *registry.Entry {
	reg := s.registry.Get()
	for _, segment := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if segment == "" || rewrite.IsUUID(segment) {
			continue
		}
		if entry, err := reg.Lookup(segment); err == nil {
			return entry
		}
	}
	return nil
}

// corsMiddleware enforces the per-tenant origin allow-list and answers
// preflights. Requests naming no known tenant pass through and fail
// further down; requests naming a tenant from a denied origin stop here
// with a 403.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqOrigin := r.Header.Get("Origin")
		entry := s.identify(r.URL.Path)

		if entry != nil {
			if !origin.Allowed(reqOrigin, entry) {
				s.logger.Warn("Origin denied", "origin", reqOrigin, "identifier", entry.Identifier)
				s.writeError(w, ErrDomainDenied)
				return
			}
			if reqOrigin != "" {
				setCORSHeaders(w, reqOrigin)
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(w http.ResponseWriter, reqOrigin string) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", reqOrigin)
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, x-oauth-api-key")
	header.Add("Vary", "Origin")
}

// limitKey names the limiter bucket for a request.
func limitKey(entry *registry.Entry) string {
	if entry == nil {
		return "unknown"
	}
	return entry.Identifier
}

// withTenantLimit caps per-tenant in-flight upstream calls when a limit
// is configured. Without a limit every request passes, reproducing the
// historical unbounded fan-out.
func (s *Server) withTenantLimit(w http.ResponseWriter, entry *registry.Entry, fn func()) {
	key := limitKey(entry)
	if !s.limiter.Acquire(key) {
		writeJSONError(w, http.StatusTooManyRequests, "tenant concurrency limit reached")
		return
	}
	defer s.limiter.Release(key)
	fn()
}
