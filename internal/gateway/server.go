package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendorlane/pulse/internal/auth"
	"github.com/vendorlane/pulse/internal/config"
	"github.com/vendorlane/pulse/internal/observability"
	"github.com/vendorlane/pulse/internal/realtime"
	"github.com/vendorlane/pulse/internal/review"
	"github.com/vendorlane/pulse/internal/store"
)

// Server ties the HTTP API, the websocket hub, and the review sweeper to a
// single listener.
type Server struct {
	config  *config.Config
	store   store.Store
	hub     *realtime.Hub
	auth    *auth.Service
	sweeper *review.Sweeper
	logger  *slog.Logger
	metrics *observability.Metrics

	httpServer *http.Server
	listener   net.Listener
}

// Options bundles the dependencies NewServer wires together.
type Options struct {
	Config  *config.Config
	Store   store.Store
	Auth    *auth.Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewServer builds the server and its hub. Start brings it online.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("gateway: config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("gateway: store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hub := realtime.NewHub(opts.Store, logger.With("component", "hub"), opts.Metrics, realtime.Options{
		HeartbeatInterval:    opts.Config.Realtime.HeartbeatInterval,
		PongTimeoutIntervals: opts.Config.Realtime.PongTimeoutIntervals,
		WriteTimeout:         opts.Config.Realtime.WriteTimeout,
		MaxMessageSize:       opts.Config.Realtime.MaxMessageSize,
		SendBuffer:           opts.Config.Realtime.SendBuffer,
	})

	s := &Server{
		config:  opts.Config,
		store:   opts.Store,
		hub:     hub,
		auth:    opts.Auth,
		logger:  logger,
		metrics: opts.Metrics,
	}

	if opts.Config.Review.Enabled {
		s.sweeper = review.NewSweeper(opts.Store, hub, opts.Config.Review.Schedule,
			logger.With("component", "sweeper"))
	}
	return s, nil
}

// Hub exposes the websocket hub, mainly for tests and the CLI.
func (s *Server) Hub() *realtime.Hub {
	return s.hub
}

// Handler builds the full route tree with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	authed := auth.Middleware(s.auth, s.logger)
	mux.Handle("/ws", authed(s.hub))

	api := http.NewServeMux()
	s.registerAPIRoutes(api)
	mux.Handle("/api/v1/", authed(http.StripPrefix("/api/v1", api)))

	return s.withRequestMetrics(mux)
}

// Start listens and serves until Stop is called. It also starts the review
// sweeper when enabled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
	}

	if s.sweeper != nil {
		if err := s.sweeper.Start(ctx); err != nil {
			listener.Close()
			return fmt.Errorf("review sweeper: %w", err)
		}
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("gateway listening", "addr", listener.Addr().String())
	return nil
}

// Stop drains HTTP, tears down websocket sessions, and stops the sweeper.
func (s *Server) Stop(ctx context.Context) {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http server shutdown error", "error", err)
		}
		s.httpServer = nil
	}
	s.hub.Close()
}

// Addr reports the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
