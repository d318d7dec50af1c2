// Package api serves the sidecar's HTTP surface: the streaming agent
// endpoint, the dashboard data endpoints and the operational endpoints.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/emanuelteklu/cc-sidecar/pkg/agent"
	"github.com/emanuelteklu/cc-sidecar/pkg/auth"
	"github.com/emanuelteklu/cc-sidecar/pkg/config"
	"github.com/emanuelteklu/cc-sidecar/pkg/diag"
	"github.com/emanuelteklu/cc-sidecar/pkg/observability"
	"github.com/emanuelteklu/cc-sidecar/pkg/ops"
	"github.com/emanuelteklu/cc-sidecar/pkg/stream"
)

const defaultHeartbeat = 15 * time.Second

// AgentRunner produces the event stream for one conversation.
type AgentRunner interface {
	Stream(ctx context.Context, messages []agent.ChatMessage, extraContext string) <-chan stream.Event
}

// HealthReporter backs GET /api/health.
type HealthReporter interface {
	Check(ctx context.Context) diag.Health
}

// SignalSource backs GET /api/signals.
type SignalSource interface {
	Scan(ctx context.Context) []diag.Commit
}

// Server is the sidecar HTTP server.
type Server struct {
	cfg        *config.Config
	verifier   *auth.Verifier
	agent      AgentRunner
	workspace  *ops.Workspace
	health     HealthReporter
	signals    SignalSource
	logger     *observability.Logger
	heartbeat  time.Duration
	handler    http.Handler
	httpServer *http.Server

	// baseCtx parents every request context and is cancelled when shutdown
	// begins, which ends open agent streams.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// ServerConfig configures the API server.
type ServerConfig struct {
	Config    *config.Config
	Verifier  *auth.Verifier
	Agent     AgentRunner
	Workspace *ops.Workspace
	Health    HealthReporter
	Signals   SignalSource
	Logger    *observability.Logger

	// HeartbeatInterval is how often an idle agent stream gets a keep-alive
	// comment (default 15s).
	HeartbeatInterval time.Duration
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Config == nil {
		cfg.Config = config.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.Discard()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}

	s := &Server{
		cfg:       cfg.Config,
		verifier:  cfg.Verifier,
		agent:     cfg.Agent,
		workspace: cfg.Workspace,
		health:    cfg.Health,
		signals:   cfg.Signals,
		logger:    cfg.Logger.Component("api"),
		heartbeat: cfg.HeartbeatInterval,
	}
	if s.verifier == nil {
		s.verifier = auth.NewVerifier(auth.Options{Logger: s.logger.Logger})
	}

	s.handler = s.routes()
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	srv := s.cfg.Server
	s.httpServer = &http.Server{
		Addr: srv.Bind,
		// h2c serves HTTP/2 cleartext next to HTTP/1.1.
		Handler:           h2c.NewHandler(s.handler, &http2.Server{}),
		ReadHeaderTimeout: srv.ReadHeaderTimeout,
		IdleTimeout:       srv.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	s.httpServer.RegisterOnShutdown(s.cancelBase)

	return s
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.corsMiddleware)
	router.Use(s.instrumentMiddleware)

	// Public endpoints
	router.Get("/healthz", s.handleHealthz)
	router.Get("/api/signals", s.handleSignals)
	if s.cfg.Telemetry.PublicMetrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.verifier, s.logger.Logger))

		r.Post("/api/agent/run", s.handleAgentRun)
		r.Get("/api/health", s.handleHealth)
		r.Get("/api/overnight", s.handleListOvernight)
		r.Post("/api/overnight", s.handleAddOvernight)
		r.Get("/api/research", s.handleListResearch)
		r.Get("/api/research/*", s.handleGetResearch)
		r.Get("/api/tokens", s.handleTokens)
		if !s.cfg.Telemetry.PublicMetrics {
			r.Handle("/metrics", promhttp.Handler())
		}
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return router
}

// Handler returns the routed handler without the h2c wrapper.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("serving sidecar", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("serving sidecar", "addr", l.Addr().String())
	return s.httpServer.Serve(l)
}

// Shutdown cancels open agent streams and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
