// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/metrics"
	"brandpulse/internal/server/handlers"
)

// Dependencies holds the services the HTTP server exposes
type Dependencies struct {
	Reader       signal.Reader
	Runner       handlers.BatchRunner
	Topics       handlers.TopicRefresher
	Events       handlers.EventSource
	EventsPrefix string
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
	logger logging.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, deps Dependencies, logger logging.Logger) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	insightsHandler := handlers.NewInsightsHandler(deps.Reader, logger)
	pipelineHandler := handlers.NewPipelineHandler(deps.Runner, deps.Topics, logger)

	// Routes
	router.Route("/api", func(r chi.Router) {
		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("OK"))
		})

		r.Route("/v1", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))
				r.Get("/posts", insightsHandler.GetPosts)
				r.Get("/trends", insightsHandler.GetTrends)
				r.Get("/themes", insightsHandler.GetThemes)
				r.Get("/competitors/mentions", insightsHandler.GetMentions)
				r.Get("/summary", insightsHandler.GetSummary)
			})

			r.Post("/batches", pipelineHandler.PostBatch)
			r.Post("/topics/refresh", pipelineHandler.RefreshTopics)
			r.Post("/reprocess", pipelineHandler.Reprocess)
			r.Delete("/posts/{id}", pipelineHandler.DeletePost)
		})
	})

	router.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint for pipeline events
	router.Get("/ws/events", handlers.EventsWebSocketHandler(deps.Events, deps.EventsPrefix, logger))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
		logger: logger,
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request through logrus
func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.WithFields(logging.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("HTTP request")
		})
	}
}
