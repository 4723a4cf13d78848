package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tickerdesk/tickerdesk/pkg/agent"
	"github.com/tickerdesk/tickerdesk/pkg/auth"
	"github.com/tickerdesk/tickerdesk/pkg/config"
	"github.com/tickerdesk/tickerdesk/pkg/logger"
	"github.com/tickerdesk/tickerdesk/pkg/observability"
	"github.com/tickerdesk/tickerdesk/pkg/rag"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 5 * time.Second

// Options configures a Server. Config is required; the collaborators are
// optional so the server can come up before the agent or the index is
// ready and report that through /ping.
type Options struct {
	// Config provides the listener address, timeouts, and CORS policy.
	Config *config.Config

	// Runner executes invocations. When nil, the invocation endpoints
	// return 503.
	Runner agent.Runner

	// Knowledge backs /knowledge-base and the health readiness flag.
	Knowledge *rag.Engine

	// Validator verifies bearer tokens on protected routes. When nil,
	// verification is bypassed and requests run as the development user.
	Validator auth.TokenValidator

	// Observability supplies the tracer, the metrics recorder, and the
	// /metrics handler.
	Observability *observability.Manager

	// DevRoutes registers the unauthenticated /invoke-dev route. Off by
	// default; the route does not exist unless explicitly enabled.
	DevRoutes bool

	// Logger for request logging. Defaults to the package logger.
	Logger *slog.Logger
}

// Server is the tickerdesk HTTP server.
type Server struct {
	config     *config.Config
	runner     agent.Runner
	knowledge  *rag.Engine
	validator  auth.TokenValidator
	obs        *observability.Manager
	devRoutes  bool
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a Server from the given options.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	s := &Server{
		config:    opts.Config,
		runner:    opts.Runner,
		knowledge: opts.Knowledge,
		validator: opts.Validator,
		obs:       opts.Observability,
		devRoutes: opts.DevRoutes,
		logger:    log,
	}

	s.httpServer = &http.Server{
		Addr:         opts.Config.Server.Address(),
		Handler:      s.routes(),
		ReadTimeout:  opts.Config.Server.ReadTimeout,
		WriteTimeout: opts.Config.Server.WriteTimeout,
		IdleTimeout:  opts.Config.Server.IdleTimeout,
	}

	return s, nil
}

// routes assembles the router. The observability middleware runs first so
// every request is measured; the logging and CORS middleware never wrap
// the response writer, keeping http.Flusher reachable for the streaming
// handlers.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	if s.obs != nil {
		r.Use(observability.HTTPMiddleware(s.obs.Tracer("server"), s.obs.Recorder()))
	}
	r.Use(s.requestLogger)
	r.Use(corsMiddleware(s.config.Server.CORS))

	r.Get("/ping", s.handleHealth)
	r.Get("/health", s.handleHealth)

	r.Post("/invocations", s.handleInvocations)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware())
		r.Post("/invoke", s.handleInvoke)
		r.Get("/knowledge-base", s.handleKnowledgeBase)
	})

	if s.devRoutes {
		r.Post("/invoke-dev", s.handleInvokeDev)
	}

	if s.obs != nil && s.obs.MetricsEnabled() {
		r.Get(s.obs.MetricsEndpoint(), s.obs.Recorder().Handler().ServeHTTP)
	}

	r.Get("/api/schema", s.handleSchema)

	return r
}

// authMiddleware returns the real token check, or the development bypass
// when no validator is configured.
func (s *Server) authMiddleware() func(http.Handler) http.Handler {
	if s.validator == nil {
		return auth.BypassMiddleware(devSubject)
	}
	return auth.Middleware(s.validator)
}

// Start runs the server until ctx is cancelled or the listener fails,
// then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("server listening",
			"addr", s.httpServer.Addr,
			"auth", s.validator != nil,
			"dev_routes", s.devRoutes,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown drains in-flight requests for up to shutdownTimeout.
func (s *Server) Shutdown() error {
	s.logger.Info("server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

// Handler returns the assembled router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
