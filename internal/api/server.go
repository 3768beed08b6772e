package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clipvault/internal/alarm"
	"clipvault/internal/config"
	"clipvault/internal/finder"
	"clipvault/internal/types"
)

// defaultRequestTimeout is the soft timeout applied to request contexts. In
// Lambda deployments this should be the function timeout minus one second.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Api-Key",
}

// Server encapsulates all dependencies for the pipeline API, allowing easy
// injection during testing and distinct configuration per environment.
type Server struct {
	Config    *config.Config
	Ingestion *alarm.IngestionService
	Finder    *finder.Finder
	Logger    *slog.Logger

	router *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting, with a fail-fast check on critical wiring. The caller mounts
// routes via MountRoutes after construction.
func NewServer(
	cfg *config.Config,
	ingestion *alarm.IngestionService,
	videoFinder *finder.Finder,
	logger *slog.Logger,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if ingestion == nil {
		return nil, fmt.Errorf("ingestion service must not be nil")
	}
	if videoFinder == nil {
		return nil, fmt.Errorf("video finder must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Ingestion: ingestion,
		Finder:    videoFinder,
		Logger:    logger,
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router. Used by
// http.ListenAndServe (local) and the Lambda proxy adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain and all endpoints.
//
// Ordering rationale:
//  1. Recoverer      - outermost, catches all panics.
//  2. ContextTimeout - soft deadline before the Lambda hard timeout.
//  3. RequestID      - correlation ID for logs and outbound portal calls.
//  4. RequestLogger  - structured logging with redacted headers.
//  5. CORS           - browser headers plus OPTIONS preflight handling.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.Config.Security.CorsAllowedOrigins))

	s.router.Post("/alarmevent", s.HandleAlarmEvent)

	// Query endpoints sit behind the shared API key.
	s.router.Group(func(r chi.Router) {
		r.Use(s.APIKeyGuard)
		r.Get("/", s.HandleVideoByEventID)
		r.Get("/latestvideo", s.HandleLatestVideo)
	})

	s.router.Get("/healthz", s.HandleHealth)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundRoute,
			"no such route", nil))
	})
}
