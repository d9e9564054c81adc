// Package api serves stored events to the map client over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/acled-ingest/internal/acled"
	"github.com/sells-group/acled-ingest/internal/store"
)

// EventReader is the read side of the store used by the API.
type EventReader interface {
	GetEvent(ctx context.Context, externalID string) (*store.StoredEvent, error)
	FindEvents(ctx context.Context, filter store.EventFilter) (*store.EventPage, error)
	EventTypes(ctx context.Context) ([]acled.TypeGroup, error)
	EventTile(ctx context.Context, z, x, y int, filter store.EventFilter) ([]byte, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	RateLimit   float64             // requests per second per client IP; <= 0 disables limiting
	CORSOrigins []string            // allowed origins; empty allows none
	Gatherer    prometheus.Gatherer // served at /metrics; nil omits the route
}

// Server is the HTTP server for the events API.
type Server struct {
	events EventReader
	router *chi.Mux
	server *http.Server
}

// NewServer creates a Server reading from events.
func NewServer(events EventReader, opts Options) *Server {
	s := &Server{
		events: events,
		router: chi.NewRouter(),
	}
	s.setupMiddleware(opts)
	s.setupRoutes(opts)
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if opts.RateLimit > 0 {
		s.router.Use(newRateLimiter(opts.RateLimit).middleware)
	}
}

func (s *Server) setupRoutes(opts Options) {
	s.router.Get("/health", s.handleHealth)
	if opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleListEvents)
		r.Get("/events/types", s.handleEventTypes)
		r.Get("/events/{acledID}", s.handleGetEvent)
		r.Get("/tiles/{z}/{x}/{y}.mvt", s.handleEventTile)
		r.Get("/runs", s.handleListRuns)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown is called. Start after Shutdown
// returns nil immediately.
func (s *Server) Start(addr string) error {
	s.server.Addr = addr
	zap.L().Info("starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request with the chi request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		zap.L().Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("ip", r.RemoteAddr),
		)
	})
}

// apiError is the JSON body of every 4xx/5xx response.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, format string, args ...any) {
	writeJSON(w, status, apiError{Error: code, Message: fmt.Sprintf(format, args...)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}
