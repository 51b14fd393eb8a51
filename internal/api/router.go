package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-floorplan/internal/auth"
	"github.com/nerrad567/gray-logic-floorplan/internal/viewer"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Browser viewer (static, embedded via go:embed)
	r.Handle("/viewer/*", http.StripPrefix("/viewer", viewer.Handler(s.cfg.ViewerDir)))
	r.Handle("/viewer", http.RedirectHandler("/viewer/", http.StatusMovedPermanently))

	r.Route("/api/v1", func(r chi.Router) {
		// Health and Prometheus metrics (no auth required)
		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", s.metrics.Handler())

		// Level images; the token in the path is the credential.
		r.Get("/sessions/{sid}/assets/{token}", s.handleSessionAsset)

		// WebSocket session (token validated in handler)
		r.Get("/widgets/{id}/ws", s.handleSession)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.With(s.requirePermission(auth.PermSystemAdmin)).Get("/status", s.handleStatus)
			r.With(s.requirePermission(auth.PermSystemAdmin)).Get("/audit", s.handleListAudit)

			r.Route("/widgets/{id}", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermFloorplanView)).Get("/", s.handleGetWidget)
				r.With(s.requirePermission(auth.PermFloorplanConfigure)).Put("/", s.handlePutWidget)
				r.With(s.requirePermission(auth.PermFloorplanConfigure)).Delete("/", s.handleDeleteWidget)
			})

			r.Route("/buildings", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermFloorplanView)).Get("/", s.handleListBuildings)
				r.With(s.requirePermission(auth.PermFloorplanView)).Get("/{id}", s.handleGetBuilding)
				r.With(s.requirePermission(auth.PermFloorplanConfigure)).Put("/{id}", s.handlePutBuilding)
				r.With(s.requirePermission(auth.PermFloorplanConfigure)).Delete("/{id}", s.handleDeleteBuilding)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
