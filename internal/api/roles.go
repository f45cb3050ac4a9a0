package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
)

// handleListRoles returns every role, active or not.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.perms.ListRoles(r.Context())
	if err != nil {
		s.logger.Error("listing roles", "error", err)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

// handleCreateRole registers a role name. Re-posting an existing name
// returns the stored row unchanged.
func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Se requiere el nombre del rol")
		return
	}
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	if name == "" {
		writeBadRequest(w, "Se requiere el nombre del rol")
		return
	}
	role, err := s.perms.CreateRole(r.Context(), name)
	if err != nil {
		s.logger.Error("creating role", "error", err, "name", name)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"role": role})
}

// handleSetRoleStatus activates or deactivates a role. Deactivation takes
// effect on the next request of every user holding the role.
func (s *Server) handleSetRoleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	active, ok := decodeActive(w, r)
	if !ok {
		return
	}

	if err := s.perms.SetRoleActive(r.Context(), id, active); err != nil {
		writePermError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "isActive": active})
}

// handleAssignRole links a user to the role. Assigning twice reactivates
// the existing link instead of duplicating it.
func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		writeBadRequest(w, "Se requiere el id del usuario")
		return
	}

	if err := s.perms.AssignRole(r.Context(), req.UserID, roleID); err != nil {
		s.logger.Error("assigning role", "error", err, "role_id", roleID, "user_id", req.UserID)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roleId": roleID, "userId": req.UserID})
}

// handleRevokeRole deactivates a user's role link. Revoking an absent link
// is a no-op.
func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}

	if err := s.perms.RevokeRole(r.Context(), userID, roleID); err != nil {
		s.logger.Error("revoking role", "error", err, "role_id", roleID, "user_id", userID)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roleId": roleID, "userId": userID})
}

// pathID parses a positive integer URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "Identificador inválido")
		return 0, false
	}
	return id, true
}

// decodeActive reads the {"isActive": bool} body shared by the status
// endpoints, writing a 400 on failure.
func decodeActive(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		writeBadRequest(w, "Se requiere el campo isActive")
		return false, false
	}
	return *req.IsActive, true
}

// writePermError maps catalog lookup failures onto 404, everything else 500.
func writePermError(w http.ResponseWriter, s *Server, err error) {
	switch {
	case errors.Is(err, auth.ErrRoleNotFound):
		writeNotFound(w, "Rol no encontrado")
	case errors.Is(err, auth.ErrResourceNotFound):
		writeNotFound(w, "Recurso no encontrado")
	default:
		s.logger.Error("permission store failure", "error", err)
		writeInternalError(w)
	}
}
