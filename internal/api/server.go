// Package api provides the HTTP API server for the calendar archive.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/calendararchive/calendar-server/internal/metrics"
	"github.com/calendararchive/calendar-server/internal/sse"
	"github.com/calendararchive/calendar-server/internal/store"
)

// Paths served outside huma, and the rate-limited ones.
const (
	PathStream  = "/api/v1/stream"
	PathWS      = "/api/v1/ws"
	PathLogin   = "/api/v1/auth/login"
	PathImport  = "/api/v1/admin/import"
	PathMetrics = "/metrics"
)

// Options configures the server surface.
type Options struct {
	Version     string
	CORSOrigins []string
	// AuthLimiter guards login; ImportLimiter guards bulk import. Nil
	// limiters get the defaults.
	AuthLimiter   *RateLimiter
	ImportLimiter *RateLimiter
	// Metrics, when set, instruments every route and serves PathMetrics.
	Metrics *metrics.Metrics
}

// Streams are the long-lived transports mounted next to the REST API.
type Streams struct {
	SSE http.Handler
	WS  http.Handler
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store         store.Store
	services      *Services
	sseManager    *sse.Manager
	router        *chi.Mux
	api           huma.API
	logger        *slog.Logger
	authLimiter   *RateLimiter
	importLimiter *RateLimiter
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(st store.Store, services *Services, sseManager *sse.Manager, streams Streams, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.AuthLimiter == nil {
		opts.AuthLimiter = NewRateLimiter(10, time.Minute, 5)
	}
	if opts.ImportLimiter == nil {
		opts.ImportLimiter = NewRateLimiter(6, time.Minute, 2)
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		store:         st,
		services:      services,
		sseManager:    sseManager,
		router:        chi.NewRouter(),
		logger:        logger,
		authLimiter:   opts.AuthLimiter,
		importLimiter: opts.ImportLimiter,
	}

	s.setupMiddleware(opts.CORSOrigins, opts.Metrics)

	humaConfig := huma.DefaultConfig("Calendar Archive API", opts.Version)
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerEventRoutes()
	s.registerAdminRoutes()
	s.registerNotificationRoutes()
	s.registerExportRoutes()
	s.registerSearchRoutes()
	s.registerBackupRoutes()

	if m := opts.Metrics; m != nil {
		s.router.Handle(PathMetrics, m.Handler())
		if streams.SSE != nil {
			streams.SSE = m.TrackStream("sse", streams.SSE)
		}
		if streams.WS != nil {
			streams.WS = m.TrackStream("ws", streams.WS)
		}
	}
	if streams.SSE != nil {
		s.router.Get(PathStream, streams.SSE.ServeHTTP)
	}
	if streams.WS != nil {
		s.router.Get(PathWS, streams.WS.ServeHTTP)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, mainly for tests and OpenAPI export.
func (s *Server) API() huma.API {
	return s.api
}

// Close stops the rate limiter cleanup goroutines.
func (s *Server) Close() {
	s.authLimiter.Stop()
	s.importLimiter.Stop()
}

func (s *Server) setupMiddleware(origins []string, m *metrics.Metrics) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if m != nil {
		s.router.Use(m.Middleware)
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(RateLimitMiddleware(s.authLimiter, s.logger, PathLogin))
	s.router.Use(RateLimitMiddleware(s.importLimiter, s.logger, PathImport))
	s.router.Use(middleware.Compress(5))
}
