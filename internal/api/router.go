package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	// The gateway resolves route templates against the mux, so the field
	// must be set before any request is served.
	s.mux = r

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Credential endpoints (no auth required; logout is safe because
		// invalidating a token requires holding it)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		// Everything else flows through the authorization gateway: token,
		// account status, and resource grant are checked on each request.
		r.Group(func(r chi.Router) {
			r.Use(s.gatewayMiddleware)

			r.Get("/auth/me", s.handleMe)

			// Role administration
			r.Route("/rol", func(r chi.Router) {
				r.Get("/", s.handleListRoles)
				r.Post("/", s.handleCreateRole)
				r.Patch("/{id}/estado", s.handleSetRoleStatus)
				r.Post("/{id}/usuario", s.handleAssignRole)
				r.Delete("/{id}/usuario/{userId}", s.handleRevokeRole)
			})

			// Resource catalog administration
			r.Route("/recurso", func(r chi.Router) {
				r.Get("/", s.handleListResources)
				r.Post("/", s.handleCreateResource)
				r.Patch("/{id}/estado", s.handleSetResourceStatus)
				r.Post("/{id}/rol", s.handleGrantResource)
				r.Delete("/{id}/rol/{roleId}", s.handleRevokeResource)
			})

			// Account administration
			r.Route("/usuario", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Patch("/{id}/estado", s.handleSetUserStatus)
				r.Get("/{id}/sesiones", s.handleListSessions)
			})

			// Audit trail
			r.Get("/auditoria", s.handleListAudit)
		})
	})

	// Unknown paths still pass the gateway so probing the route space
	// without credentials yields 401, not 404.
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		s.gatewayMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeNotFound(w, "Recurso no encontrado")
		})).ServeHTTP(w, req)
	})

	return r
}

// ProtectedResources is the resource catalog seeded on first boot: every
// gateway-protected route with the roles initially allowed to call it.
// Administrators can reshape these grants at runtime.
func ProtectedResources() []auth.SeedResource {
	everyone := []string{auth.RolePatient, auth.RoleDoctor, auth.RoleAdmin, auth.RoleStaff}
	adminOnly := []string{auth.RoleAdmin}

	return []auth.SeedResource{
		{Method: http.MethodGet, Path: "/api/auth/me", Roles: everyone},

		{Method: http.MethodGet, Path: "/api/rol", Roles: adminOnly},
		{Method: http.MethodPost, Path: "/api/rol", Roles: adminOnly},
		{Method: http.MethodPatch, Path: "/api/rol/:id/estado", Roles: adminOnly},
		{Method: http.MethodPost, Path: "/api/rol/:id/usuario", Roles: adminOnly},
		{Method: http.MethodDelete, Path: "/api/rol/:id/usuario/:userId", Roles: adminOnly},

		{Method: http.MethodGet, Path: "/api/recurso", Roles: adminOnly},
		{Method: http.MethodPost, Path: "/api/recurso", Roles: adminOnly},
		{Method: http.MethodPatch, Path: "/api/recurso/:id/estado", Roles: adminOnly},
		{Method: http.MethodPost, Path: "/api/recurso/:id/rol", Roles: adminOnly},
		{Method: http.MethodDelete, Path: "/api/recurso/:id/rol/:roleId", Roles: adminOnly},

		{Method: http.MethodGet, Path: "/api/usuario", Roles: adminOnly},
		{Method: http.MethodPatch, Path: "/api/usuario/:id/estado", Roles: adminOnly},
		{Method: http.MethodGet, Path: "/api/usuario/:id/sesiones", Roles: adminOnly},

		{Method: http.MethodGet, Path: "/api/auditoria", Roles: adminOnly},
	}
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
