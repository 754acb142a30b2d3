// Package server contains the two transport gateways in front of the
// command dispatcher: a stateless HTTP API and a stateful WebSocket
// endpoint, sharing one listener, one auth gate and one dispatcher.
package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mjohnson139/MobileApi-sub000/auth"
	"github.com/mjohnson139/MobileApi-sub000/command"
	"github.com/mjohnson139/MobileApi-sub000/metrics"
	"github.com/mjohnson139/MobileApi-sub000/ratelimit"
	"github.com/mjohnson139/MobileApi-sub000/screenshot"
	"github.com/mjohnson139/MobileApi-sub000/state"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Options carries the collaborators a Server needs. Store and Dispatcher are
// required; zero-value fields get working defaults.
type Options struct {
	Store       *state.Store
	Dispatcher  *command.Dispatcher
	Credentials *auth.Credentials
	Tokens      *auth.TokenService
	Metrics     *metrics.Collector
	Limiter     ratelimit.Limiter
	Screens     screenshot.Provider
	Logger      *zap.Logger

	Port           int
	CORSOrigin     string
	RequestTimeout time.Duration

	// MetricsPushInterval is the period of the metrics_update push to
	// authenticated WebSocket sessions. Zero disables the push.
	MetricsPushInterval time.Duration
}

// Server is the combined gateway process: the chi-routed HTTP API with the
// WebSocket endpoint mounted at /ws.
type Server struct {
	opts   Options
	logger *zap.Logger
	gate   *authGate
	ws     *WebSocketServer

	httpServer *http.Server
}

// New wires the gateways. The WebSocket server subscribes to the store so
// state changes from either transport reach connected sessions.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Screens == nil {
		opts.Screens = screenshot.NewPlaceholderProvider()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewSlidingWindow(100, 15*time.Minute)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		gate:   &authGate{tokens: opts.Tokens},
	}
	s.ws = newWebSocketServer(s)
	s.ws.start()

	router := chi.NewRouter()
	router.Use(s.corsMiddleware)
	router.Use(s.observeMiddleware)

	router.Get("/health", s.handleHealth)
	router.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	router.Handle("/ws", s.ws.transport)

	router.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Use(s.timeoutMiddleware)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/validate", s.handleValidate)

		r.With(s.requireScope(auth.ScopeRead)).Get("/api/state", s.handleGetState)
		r.With(s.requireScope(auth.ScopeWrite)).Post("/api/state", s.handleUpdateState)
		r.With(s.requireScope(auth.ScopeWrite)).Post("/api/actions/{type}", s.handleAction)
		r.With(s.requireScope(auth.ScopeRead)).Get("/api/screenshot", s.handleScreenshot)
		r.With(s.requireScope(auth.ScopeRead)).Get("/api/metrics", s.handleMetrics)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorEnvelope{
			Error:     "NOT_FOUND",
			Message:   "Unknown route",
			Timestamp: time.Now(),
		})
	})

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the full route tree, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// StartOptions controls how Start binds the listener.
type StartOptions struct {
	Addr     string
	CertFile string
	KeyFile  string

	// Ready, when non-nil, is closed once the listener is bound.
	Ready chan struct{}
}

// Start binds the listener and serves until Stop is called. It blocks.
func (s *Server) Start(options StartOptions) error {
	listener, err := net.Listen("tcp", options.Addr)
	if err != nil {
		return err
	}
	if options.Ready != nil {
		close(options.Ready)
	}
	s.logger.Info("server starting", zap.String("addr", options.Addr))

	if options.CertFile != "" && options.KeyFile != "" {
		return s.httpServer.ServeTLS(listener, options.CertFile, options.KeyFile)
	}
	return s.httpServer.Serve(listener)
}

// Stop shuts the server down, tearing down WebSocket sessions first.
func (s *Server) Stop(ctx context.Context) error {
	s.ws.stop()
	return s.httpServer.Shutdown(ctx)
}

// uptime returns seconds since the state tree was created, which predates
// the gateways and survives their restarts within one process.
func (s *Server) uptime() float64 {
	return time.Since(s.opts.Store.StartedAt()).Seconds()
}
