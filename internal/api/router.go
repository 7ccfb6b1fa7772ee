package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath is mounted under /api/v1 when websocket.path is empty.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check and metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/refresh", s.handleRefreshDevices)
				r.Get("/{id}/status", s.handleGetDeviceStatus)
			})

			r.Route("/scenes", func(r chi.Router) {
				r.Get("/stats", s.handleSceneStats)
				r.Post("/all", s.handleRunAll)
				r.Post("/first/{n}", s.handleRunFirstN)
			})

			r.Get(s.wsPath(), s.handleWebSocket)
		})
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
