package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fintalk-io/fintalk/internal/config"
	"github.com/fintalk-io/fintalk/internal/gateway"
	"github.com/fintalk-io/fintalk/internal/otel"
	"github.com/fintalk-io/fintalk/internal/store"
)

const defaultTimeout = 60 * time.Second

// Server holds the dependencies for the HTTP API.
type Server struct {
	router      *chi.Mux
	gateway     *gateway.Gateway
	store       *store.Store
	cfg         *config.Config
	corsOrigins []string
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"] for MVP).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer builds a Server with the required dependencies and optional Option(s).
func NewServer(gw *gateway.Gateway, st *store.Store, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		gateway:     gw,
		store:       st,
		cfg:         cfg,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler (chi router with all middleware and routes).
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)
	r.Post("/v1/auth/register", s.handleRegister)
	r.Post("/v1/auth/login", s.handleLogin)

	// Authenticated API group
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.JWTSecret))
		r.Use(middleware.Timeout(defaultTimeout))

		r.Post("/v1/chat", s.handleChat)
		r.Get("/v1/books", s.handleBooks)
		r.Get("/v1/books/{id}/categories", s.handleBookCategories)
		r.Delete("/v1/books/{id}", s.handleArchiveBook)
	})

	return r
}
