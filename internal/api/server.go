// Package api exposes the document review pipeline over HTTP: a
// multipart upload goes in, NDJSON issue batches stream out.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhaoxiaowang1993/ai-doc-review/internal/config"
	"github.com/zhaoxiaowang1993/ai-doc-review/internal/review"
)

// Server is the HTTP API server for the review service.
type Server struct {
	router   chi.Router
	pipeline *review.Pipeline
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(pipeline *review.Pipeline, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		pipeline: pipeline,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.ReviewAPIKey, s.log))

		r.Post("/api/review", s.handleReview)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
