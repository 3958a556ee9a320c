// Package gateway assembles the HTTP surface: routing, CORS enforcement,
// identity resolution, and the relay handlers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/widgetgate/widgetgate/pkg/config"
	"github.com/widgetgate/widgetgate/pkg/dispatch"
	"github.com/widgetgate/widgetgate/pkg/filewatcher"
	"github.com/widgetgate/widgetgate/pkg/identity"
	"github.com/widgetgate/widgetgate/pkg/kvs"
	"github.com/widgetgate/widgetgate/pkg/logging"
	"github.com/widgetgate/widgetgate/pkg/merge"
	"github.com/widgetgate/widgetgate/pkg/passthrough"
	"github.com/widgetgate/widgetgate/pkg/ratelimit"
	"github.com/widgetgate/widgetgate/pkg/registry"
	"github.com/widgetgate/widgetgate/pkg/rewrite"
	"github.com/widgetgate/widgetgate/pkg/session"
)

// reloadDebounce is how long the config watcher waits after the last
// write before reloading.
const reloadDebounce = 500 * time.Millisecond

// Server is the gateway HTTP server.
type Server struct {
	cfg          *config.Config
	configPath   string
	registry     *registry.Handle
	sessions     session.Cache
	resolver     *identity.Resolver
	rewriter     *rewrite.Rewriter
	dispatcher   *dispatch.Dispatcher
	merger       *merge.Merger
	limiter      *ratelimit.ConcurrencyLimiter
	genericProxy *httputil.ReverseProxy
	router       chi.Router
	logger       logging.Logger
}

// New assembles a Server from configuration. configPath may be empty, in
// which case hot reload is disabled.
func New(cfg *config.Config, configPath string, logger logging.Logger) (*Server, error) {
	log := logger.WithModule("gateway")

	reg, err := registry.New(cfg.Tenants, cfg.Server.DefaultRedirectURI, logger.WithModule("registry"))
	if err != nil {
		return nil, err
	}
	handle := registry.NewHandle(reg)

	sessions, err := newSessionCache(cfg.Sessions)
	if err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.NewDispatcher(cfg.Upstream, logger)
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}

	target, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	matcher := passthrough.NewMatcher(&cfg.Passthrough)
	if matcher.HasErrors() {
		for _, patternErr := range matcher.Errors() {
			log.Warn("Ignoring invalid passthrough pattern", "error", patternErr)
		}
	}

	rewriter := rewrite.NewRewriter(handle)

	s := &Server{
		cfg:        cfg,
		configPath: configPath,
		registry:   handle,
		sessions:   sessions,
		rewriter:   rewriter,
		dispatcher: dispatcher,
		merger:     merge.NewMerger(logger),
		limiter:    ratelimit.NewConcurrencyLimiter(cfg.Limits.TenantConcurrency),
		logger:     log,
	}
	s.resolver = identity.NewResolver(handle, sessions, matcher,
		cfg.Upstream.Timeouts.GetIdentityTimeout(), logger)
	s.genericProxy = dispatch.NewReverseProxy(target, cfg.Upstream.APIKey, s.rewritePath, log)
	s.router = s.buildRouter()

	return s, nil
}

// newSessionCache builds the session cache for the configured backend.
func newSessionCache(cfg config.SessionsConfig) (session.Cache, error) {
	switch cfg.Store {
	case "", "memory":
		return session.NewMemoryCache(cfg.GetSweepInterval()), nil
	case "leveldb", "redis":
		store, err := kvs.New(kvs.Config{
			Type:      cfg.Store,
			Namespace: "sessions",
			LevelDB:   cfg.LevelDB,
			Redis:     cfg.Redis,
		})
		if err != nil {
			return nil, err
		}
		return session.NewKVSCache(store), nil
	default:
		return nil, config.ErrInvalidSessionStore
	}
}

// buildRouter wires the route tree. No global timeout middleware: streamed
// responses live as long as the client and upstream keep the connection.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/web.js", s.handleWebJS)
	r.Options("/web.js", s.handleWebJS)

	r.Route("/api", func(api chi.Router) {
		api.Use(s.corsMiddleware)

		api.Get("/auth/config/{identifier}", s.handleAuthConfig)

		api.Route("/v1", func(v1 chi.Router) {
			// Raw multipart passthrough stays outside the resolver so the
			// body bytes reach the upstream untouched.
			v1.Post("/attachments/{identifier}/{chatId}", s.handleAttachments)

			v1.Group(func(rel chi.Router) {
				rel.Use(s.resolver.Middleware)
				rel.Get("/public-chatbotConfig/{identifier}", s.handlePublicConfig)
				rel.Get("/get-upload-file", s.handleGetUploadFile)
				rel.HandleFunc("/prediction/*", s.handlePrediction)
				rel.HandleFunc("/*", s.handleGeneric)
			})
		})
	})

	r.Get("/debug/sessions/{identifier}", s.handleDebugSessions)

	return r
}

// Handler exposes the assembled route tree.
func (s *Server) Handler() http.Handler {
	return s.router
}

// OnFileChange reloads the tenant table when the config file changes. A
// broken config keeps the previous registry serving.
func (s *Server) OnFileChange(event filewatcher.ChangeEvent) {
	s.logger.Info("Config file changed, reloading tenants", "path", event.Path)

	cfg, err := config.NewFileLoader(event.Path).Load()
	if err != nil {
		s.logger.Error("Config reload failed, keeping previous tenants", "error", err)
		return
	}

	reg, err := registry.New(cfg.Tenants, cfg.Server.DefaultRedirectURI, s.logger.WithModule("registry"))
	if err != nil {
		s.logger.Error("Tenant reload failed, keeping previous tenants", "error", err)
		return
	}

	s.registry.Swap(reg)
	s.logger.Info("Tenant table reloaded", "tenants", reg.Len())
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully. The session cache is closed on the way out.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	if s.configPath != "" {
		watcher, err := filewatcher.NewWatcher(s.configPath, reloadDebounce)
		if err != nil {
			s.logger.Warn("Config watcher unavailable, hot reload disabled", "error", err)
		} else {
			watcher.AddListener(s)
			go watcher.Start(ctx)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gateway listening", "addr", addr,
			"tenants", s.registry.Get().Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.logger.Info("Shutting down")
		err := srv.Shutdown(shutdownCtx)
		if closeErr := s.sessions.Close(); closeErr != nil {
			s.logger.Warn("Session cache close failed", "error", closeErr)
		}
		return err

	case err := <-errCh:
		_ = s.sessions.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
