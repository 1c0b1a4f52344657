package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - user must be logged in
			// to request a ticket
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Group endpoints
			r.Route("/groups", func(r chi.Router) {
				r.Get("/", s.handleListGroups)
				r.Post("/", s.handleCreateGroup)
				r.Post("/reload", s.handleReloadGroups)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetGroup)
					r.Patch("/", s.handleUpdateGroup)
					r.Delete("/", s.handleDeleteGroup)
					r.Get("/members", s.handleGroupMembers)
					r.Post("/services/{service}", s.handleGroupService)
				})
			})

			// Entity state endpoints
			r.Route("/states", func(r chi.Router) {
				r.Get("/", s.handleListStates)
				r.Get("/{entityID}", s.handleGetState)
			})

			// Registry mapping endpoints
			r.Route("/registry", func(r chi.Router) {
				r.Get("/", s.handleListMappings)
				r.Put("/{uniqueID}", s.handleUpsertMapping)
				r.Delete("/{uniqueID}", s.handleDeleteMapping)
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"groups":  s.manager.Count(),
	})
}
