// Package server is the HTTP presentation adapter over the taxonomy service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"catalog/taxonomy/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	service *service.Service
	router  chi.Router
}

// New builds the router. gatherer may be nil, in which case /metrics is not
// mounted.
func New(svc *service.Service, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		service: svc,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/taxonomy", s.handleTree)
	r.Post("/taxonomy/refresh", s.handleRefresh)

	r.Route("/api", func(r chi.Router) {
		r.Post("/categories", s.handleCreateCategory)
		r.Put("/categories/{id}", s.handleUpdateCategory)
		r.Delete("/categories/{id}", s.handleDeleteCategory)
		r.Patch("/categories/{id}/toggle-status", s.handleToggleCategoryStatus)

		r.Post("/subcategory", s.handleCreateSubcategory)
		r.Patch("/subcategories/{id}", s.handleUpdateSubcategory)
		r.Delete("/subcategory/{id}", s.handleDeleteSubcategory)
		r.Patch("/subcategory/{id}/status", s.handleToggleSubcategoryStatus)

		r.Post("/sub-subcategory", s.handleCreateSubSubcategory)
		r.Patch("/sub-subcategory/{id}", s.handleUpdateSubSubcategory)
		r.Delete("/sub-subcategory/{id}", s.handleDeleteSubSubcategory)
		r.Patch("/sub-subcategory/{id}/status", s.handleToggleSubSubcategoryStatus)

		r.Post("/expansion/categories/{id}/toggle", s.handleToggleCategoryExpansion)
		r.Post("/expansion/subcategories/{id}/toggle", s.handleToggleSubcategoryExpansion)
	})

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("🌐 Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("🛑 Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}
