package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/embedder/internal/channel"
	"github.com/mattjoyce/embedder/internal/config"
	"github.com/mattjoyce/embedder/internal/events"
	"github.com/mattjoyce/embedder/internal/host"
)

// Caller injects messages into the runtime.
type Caller interface {
	Call(ctx context.Context, channel string, payload []byte) ([]byte, error)
	Notify(channel string, payload []byte) error
}

// ChannelLister exposes the registered channels.
type ChannelLister interface {
	Names() []string
	Lookup(name string) (channel.Channel, bool)
}

// StatsSource reports host counters for /healthz.
type StatsSource interface {
	Stats() host.Stats
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the bearer token. Empty disables authentication.
	APIKey       string
	ReplyTimeout time.Duration
	// ConfigDigest is echoed by /healthz so operators can tell which config is live.
	ConfigDigest string
}

// ConfigFrom maps the api section of the service config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Listen:       c.API.Listen,
		APIKey:       c.API.Auth.APIKey,
		ReplyTimeout: c.API.ReplyTimeout,
		ConfigDigest: c.Digest,
	}
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	caller    Caller
	channels  ChannelLister
	stats     StatsSource
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// closing ends open /events streams; http.Server.Shutdown does not
	// cancel their request contexts.
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a new API server instance
func New(config Config, caller Caller, channels ChannelLister, stats StatsSource, hub *events.Hub, logger *slog.Logger) *Server {
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = 5 * time.Second
	}
	if hub == nil {
		hub = events.NewHub(events.DefaultCapacity)
	}
	return &Server{
		config:    config,
		caller:    caller,
		channels:  channels,
		stats:     stats,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
		closing:   make(chan struct{}),
	}
}

// CloseStreams ends every open /events stream. Later streams end at once.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No WriteTimeout: /events streams for the life of the client.
		IdleTimeout: 60 * time.Second,
	}
	s.server.RegisterOnShutdown(s.CloseStreams)

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.APIKey != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/channels", s.handleListChannels)
		// Channel names contain slashes, so the name is the wildcard tail.
		r.Post("/channels/*", s.handleChannelPost)
		r.Post("/frames", s.handleFrame)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
