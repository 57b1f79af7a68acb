// Package api serves the assessment HTTP endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/pipeline"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// MaxUploadBytes bounds the whole multipart body.
	MaxUploadBytes int64
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Server holds the handlers' dependencies.
type Server struct {
	intake  *pipeline.Intake
	tracker *pipeline.Tracker
	health  Pinger
	auth    *Authenticator
	opts    Options
}

// NewServer creates a Server.
func NewServer(intake *pipeline.Intake, tracker *pipeline.Tracker, health Pinger, auth *Authenticator, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 12 << 20
	}
	return &Server{
		intake:  intake,
		tracker: tracker,
		health:  health,
		auth:    auth,
		opts:    opts,
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Route("/api/assessments/{id}", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/submit", s.handleSubmit)
		r.Get("/status", s.handleStatus)
		r.Get("/attempts", s.handleAttempts)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
