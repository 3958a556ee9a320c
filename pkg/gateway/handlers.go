package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/widgetgate/widgetgate/pkg/assets"
	"github.com/widgetgate/widgetgate/pkg/dispatch"
	"github.com/widgetgate/widgetgate/pkg/identity"
	"github.com/widgetgate/widgetgate/pkg/origin"
	"github.com/widgetgate/widgetgate/pkg/registry"
	"github.com/widgetgate/widgetgate/pkg/rewrite"
)

// handleHealth serves the unscoped liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports readiness once a registry is loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ready",
		"tenants": s.registry.Get().Len(),
	})
}

// handleWebJS serves the embedded widget loader, gated against the union
// of every tenant's allowed origins.
func (s *Server) handleWebJS(w http.ResponseWriter, r *http.Request) {
	reqOrigin := r.Header.Get("Origin")
	if !origin.AllowedAny(reqOrigin, s.registry.Get().AllOrigins()) {
		s.writeError(w, ErrDomainDenied)
		return
	}

	if reqOrigin != "" {
		setCORSHeaders(w, reqOrigin)
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(assets.WebJS())
}

// handleAuthConfig serves a tenant's OAuth parameters to the widget. The
// endpoint is for development tooling and is gated by the gateway-wide
// dev key when one is configured.
func (s *Server) handleAuthConfig(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Server.DevAPIKey != "" && r.Header.Get("x-oauth-api-key") != s.cfg.Server.DevAPIKey {
		s.writeError(w, ErrUnauthorizedDevKey)
		return
	}

	identifier := chi.URLParam(r, "identifier")
	oauthCfg, err := s.registry.Get().OAuthLookup(identifier)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(oauthCfg)
}

// localConfig computes the gateway-side chatbot configuration for a
// tenant. The authentication key only exists when the tenant carries an
// OAuth block.
func (s *Server) localConfig(entry *registry.Entry) map[string]interface{} {
	local := map[string]interface{}{
		"identifier": entry.Identifier,
		"debug":      s.debugEnabled(entry),
	}
	if entry.OAuth != nil {
		local["authentication"] = entry.OAuth
	}
	return local
}

// handlePublicConfig serves the merged local+upstream chatbot
// configuration. Local values take precedence; conflicts are logged by
// the merger, never fatal.
func (s *Server) handlePublicConfig(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	entry, err := s.registry.Get().Lookup(identifier)
	if err != nil {
		s.writeError(w, err)
		return
	}

	upstreamCfg := map[string]interface{}{}
	relay, err := s.dispatcher.ForwardJSON(r.Context(), http.MethodGet,
		"/api/v1/public-chatbotConfig/"+entry.ChatflowID, "", nil, nil)
	if err != nil || relay.StatusCode != http.StatusOK {
		s.logger.Warn("Upstream chatbot config unavailable, serving local config",
			"identifier", entry.Identifier, "error", err)
	} else if err := json.Unmarshal(relay.Body, &upstreamCfg); err != nil {
		s.logger.Warn("Upstream chatbot config unparsable",
			"identifier", entry.Identifier, "error", err)
		upstreamCfg = map[string]interface{}{}
	}

	merged, _ := s.merger.Merge(s.localConfig(entry), upstreamCfg, entry.Identifier)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(merged)
}

// handleAttachments relays raw multipart uploads. It runs before any
// body-parsing middleware so the original byte stream reaches the
// upstream unmodified.
func (s *Server) handleAttachments(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	chatID := chi.URLParam(r, "chatId")

	entry, err := s.registry.Get().Lookup(identifier)
	if err != nil {
		s.writeError(w, err)
		return
	}

	raw, err := dispatch.ReadBody(r, s.cfg.Limits.MaxUploadBytes)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.withTenantLimit(w, entry, func() {
		relay, err := s.dispatcher.ForwardMultipart(r.Context(),
			"/api/v1/attachments/"+entry.ChatflowID+"/"+chatID, r.URL.RawQuery,
			raw, r.Header.Get("Content-Type"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeRelay(w, relay)
	})
}

// handleGetUploadFile streams a stored file back to the caller. The
// chatflowId query parameter may name a tenant identifier and is resolved
// to the internal id first. The tenant lives in the query rather than the
// path, so the origin check happens here instead of corsMiddleware.
func (s *Server) handleGetUploadFile(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	chatflowID := query.Get("chatflowId")

	var entry *registry.Entry
	if chatflowID != "" && !rewrite.IsUUID(chatflowID) {
		resolved, err := s.registry.Get().Lookup(chatflowID)
		if err != nil {
			s.writeError(w, err)
			return
		}

		reqOrigin := r.Header.Get("Origin")
		if !origin.Allowed(reqOrigin, resolved) {
			s.logger.Warn("Origin denied", "origin", reqOrigin, "identifier", resolved.Identifier)
			s.writeError(w, ErrDomainDenied)
			return
		}
		if reqOrigin != "" {
			setCORSHeaders(w, reqOrigin)
		}

		entry = resolved
		query.Set("chatflowId", resolved.ChatflowID)
	}

	s.withTenantLimit(w, entry, func() {
		err := s.dispatcher.ForwardStream(r.Context(), w, http.MethodGet,
			"/api/v1/get-upload-file", query.Encode(), nil, r.Header)
		if err != nil {
			s.writeError(w, err)
		}
	})
}

// handlePrediction relays chat completion calls, streamed when the body
// asks for it, buffered otherwise.
func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	body, err := dispatch.ReadBody(r, s.cfg.Limits.MaxUploadBytes)
	if err != nil {
		s.writeError(w, err)
		return
	}

	path, entry := s.rewriter.Rewrite(r.URL.Path)

	if user, ok := identity.UserFrom(r.Context()); ok {
		s.logger.Debug("Relaying authenticated prediction", "user", user.Subject)
	}

	s.withTenantLimit(w, entry, func() {
		if dispatch.WantsStream(path, body) {
			if err := s.dispatcher.ForwardStream(r.Context(), w, r.Method, path, r.URL.RawQuery, body, r.Header); err != nil {
				s.writeError(w, err)
			}
			return
		}

		relay, err := s.dispatcher.ForwardJSON(r.Context(), r.Method, path, r.URL.RawQuery, body, r.Header)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeRelay(w, relay)
	})
}

// handleGeneric relays every other /api/v1 route through the reverse
// proxy, with the identifier rewritten when one is present.
func (s *Server) handleGeneric(w http.ResponseWriter, r *http.Request) {
	_, entry := s.rewriter.Rewrite(r.URL.Path)

	s.withTenantLimit(w, entry, func() {
		s.genericProxy.ServeHTTP(w, r)
	})
}

// debugEnabled resolves the effective debug flag for a tenant: the
// per-tenant override wins over the global toggle.
func (s *Server) debugEnabled(entry *registry.Entry) bool {
	if entry != nil && entry.Debug != nil {
		return *entry.Debug
	}
	return s.cfg.Server.Debug
}

// handleDebugSessions dumps the session cache for a tenant. Served only
// in debug mode; otherwise indistinguishable from an unknown route.
func (s *Server) handleDebugSessions(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "identifier")
	entry, err := s.registry.Get().Lookup(identifier)
	if err != nil || !s.debugEnabled(entry) {
		http.NotFound(w, r)
		return
	}

	sessions, err := s.sessions.List(entry.Identifier)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"identifier": entry.Identifier,
		"count":      len(sessions),
		"sessions":   sessions,
	})
}

// writeRelay copies a buffered upstream response downstream.
func (s *Server) writeRelay(w http.ResponseWriter, relay *dispatch.Relay) {
	for key, values := range relay.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(relay.StatusCode)
	_, _ = w.Write(relay.Body)
}

// rewritePath is the PathRewriteFunc handed to the generic proxy.
func (s *Server) rewritePath(path string) string {
	rewritten, _ := s.rewriter.Rewrite(path)
	return rewritten
}
