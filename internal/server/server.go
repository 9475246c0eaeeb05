package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/pkg/record"
)

// Server exposes the configured models over a REST API.
type Server struct {
	logger *zap.Logger
	models map[string]*record.Model
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func New(models map[string]*record.Model, opts ...Option) *Server {
	s := &Server{
		logger: zap.NewNop(),
		models: models,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				zap.String("from", r.RemoteAddr),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/tables", func(r chi.Router) {
		r.Get("/", s.listTables)
		r.Route("/{table}", func(r chi.Router) {
			r.Use(s.modelCtx)
			r.Get("/", s.describeTable)
			r.Get("/count", s.countRows)
			r.Get("/rows", s.listRows)
			r.Post("/rows", s.createRow)
			r.Get("/rows/{id}", s.getRow)
			r.Put("/rows/{id}", s.updateRow)
			r.Delete("/rows/{id}", s.deleteRow)
		})
	})

	return r
}

// Start serves until ctx is canceled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting server", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
