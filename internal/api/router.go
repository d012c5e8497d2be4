package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/boxlink/internal/panel"
)

const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Get("/login-url", s.handleLoginURL)
			r.Delete("/", s.handleLogout)
		})

		r.Route("/boxes", func(r chi.Router) {
			r.Get("/", s.handleListBoxes)
			r.Put("/active", s.handleSelectBox)
		})

		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.handleListServices)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetService)
				r.Get("/state", s.handleGetServiceState)
				r.Put("/state", s.handleSetServiceState)
				r.Put("/tags", s.handleSetServiceTags)
			})
		})

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", s.handleListTags)
			r.Put("/{id}", s.handlePutTag)
			r.Delete("/{id}", s.handleDeleteTag)
		})

		r.Route("/operations", func(r chi.Router) {
			r.Post("/get", s.handlePerformGet)
			r.Post("/set", s.handlePerformSet)
		})

		r.Route("/polling", func(r chi.Router) {
			r.Get("/", s.handleGetPolling)
			r.Put("/", s.handleSetPolling)
		})

		r.Post("/system/clear", s.handleClear)

		if s.auditLog != nil {
			r.Get("/audit", s.handleListAudit)
		}

		r.Get(s.wsCfg.Path, s.handleWebSocket)
	})

	if s.cfg.Panel.Enabled {
		r.Handle("/*", panel.Handler(s.cfg.Panel.Dir))
	}

	return r
}

// handleHealth reports the server and every registered component.
// Any failing component turns the status into "degraded" with a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.components))
	for name, c := range s.components {
		if err := c.HealthCheck(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"configured": s.core.Configured(r.Context()),
		"components": components,
	})
}
