package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Address        string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// NewRouter wires middleware and routes. Middleware must be attached before
// any route is registered on a chi mux.
func NewRouter(cfg ServerConfig, handler *Handler, logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StripSlashes)
	r.Use(NewCORS(cfg.AllowedOrigins))
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))

	handler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Server is the gateway HTTP server.
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer builds the HTTP server around router.
func NewServer(cfg ServerConfig, router http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		logger: logger,
		server: &http.Server{
			Addr:         cfg.Address,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start blocks serving requests.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("starting llm gateway")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down llm gateway")
	return s.server.Shutdown(ctx)
}
