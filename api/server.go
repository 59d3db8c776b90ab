// Package api exposes the rbacAuth Engine over HTTP with a chi router.
//
// Successful responses use the envelope
//
//	{"statusCode": 200, "data": {...}, "message": "..."}
//
// and failures
//
//	{"success": false, "statusCode": 401, "message": "...", "errors": []}
//
// Every handler reports failures through writeError, which is the only
// place an error is turned into a status code and a client message.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	rbacAuth "github.com/MrEthical07/rbacAuth"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Config holds listener and edge-protection settings.
type Config struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// MaxBodyBytes caps request bodies. Zero selects 1 MiB.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// Throttle limits requests per client IP on the public auth routes.
	Throttle ThrottleConfig `yaml:"throttle"`
	// TrustForwardedFor takes the client IP from X-Forwarded-For. Enable
	// only behind a proxy that sets it.
	TrustForwardedFor bool     `yaml:"trust_forwarded_for"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
}

// DefaultConfig returns listener defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: 1 << 20,
		Throttle: ThrottleConfig{
			Enabled: true,
			RPS:     5,
			Burst:   20,
			IdleTTL: 10 * time.Minute,
		},
	}
}

// Deps holds the collaborators of a Server.
type Deps struct {
	Config Config
	Engine *rbacAuth.Engine
	Logger *slog.Logger
	// Metrics serves GET /api/metrics when set.
	Metrics http.Handler
	// Ready reports dependency health for GET /api/health.
	Ready func(ctx context.Context) error
}

// Server is the HTTP front end of the Engine.
type Server struct {
	cfg      Config
	engine   *rbacAuth.Engine
	logger   *slog.Logger
	metrics  http.Handler
	ready    func(ctx context.Context) error
	throttle *ipThrottle
	server   *http.Server
}

// New validates deps. The server does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("engine is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := deps.Config
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		cfg:     cfg,
		engine:  deps.Engine,
		logger:  logger,
		metrics: deps.Metrics,
		ready:   deps.Ready,
	}
	if cfg.Throttle.Enabled {
		s.throttle = newIPThrottle(cfg.Throttle)
	}
	return s, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start listens in a background goroutine. Listener errors other than a
// clean shutdown are logged.
func (s *Server) Start(ctx context.Context) error {
	if s.server != nil {
		return errors.New("server already started")
	}
	if s.cfg.Addr == "" {
		return fmt.Errorf("listen address required")
	}

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		s.logger.Info("api server starting", "address", s.cfg.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()
	return nil
}

// Close shuts the listener down, waiting for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}
