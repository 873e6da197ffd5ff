package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marlowe-systems/aegis-core/internal/authz"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Login is the one endpoint that issues sessions
		r.Post("/auth/login", s.handleLogin)

		// Everything else requires a valid session
		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/logout-all", s.handleLogoutAll)
			r.Get("/auth/me", s.handleMe)

			// Explicit authorization check for external collaborators
			r.Post("/authorize", s.handleAuthorize)

			// Self-service session review
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", s.handleListSessions)
				r.Delete("/{token}", s.handleRevokeSession)
			})

			// User management; per-record access is decided in the handlers
			// because ownership depends on the target ID
			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Patch("/", s.handleUpdateUser)
					r.Delete("/", s.handleDeleteUser)
				})
			})

			// Audit retrieval is gated up front: the whole subtree is a
			// read of the audit log
			r.Route("/audit", func(r chi.Router) {
				r.Use(s.requireAccess(authz.ResourceAuditLog, authz.ActionRead))
				r.Get("/events", s.handleAuditEvents)
				r.Get("/summary", s.handleAuditSummary)
				r.Get("/login-stats", s.handleLoginStats)
				r.Get("/access-stats", s.handleAccessStats)
				r.Get("/violations", s.handleViolations)
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
