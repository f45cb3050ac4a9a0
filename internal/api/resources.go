package api

import (
	"encoding/json"
	"net/http"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
)

// handleListResources returns the full resource catalog.
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.perms.ListResources(r.Context())
	if err != nil {
		s.logger.Error("listing resources", "error", err)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

// handleCreateResource registers a method/path pair in the catalog. The
// path is normalized before storage so lookups are shape-insensitive.
// Re-posting an existing pair returns the stored row unchanged.
func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string `json:"method"`
		Path   string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method == "" || req.Path == "" {
		writeBadRequest(w, "Se requieren método y ruta")
		return
	}

	sig := auth.NewSignature(req.Method, req.Path)
	resource, err := s.perms.CreateResource(r.Context(), sig.Method, sig.Path)
	if err != nil {
		s.logger.Error("creating resource", "error", err, "resource", sig.String())
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"resource": resource})
}

// handleSetResourceStatus activates or deactivates a catalog entry. A
// deactivated resource denies every caller from the next request on.
func (s *Server) handleSetResourceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	active, ok := decodeActive(w, r)
	if !ok {
		return
	}

	if err := s.perms.SetResourceActive(r.Context(), id, active); err != nil {
		writePermError(w, s, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "isActive": active})
}

// handleGrantResource allows a role to call the resource. Granting twice
// reactivates the existing grant instead of duplicating it.
func (s *Server) handleGrantResource(w http.ResponseWriter, r *http.Request) {
	resourceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		RoleID int64 `json:"roleId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoleID <= 0 {
		writeBadRequest(w, "Se requiere el id del rol")
		return
	}

	if err := s.perms.GrantResource(r.Context(), resourceID, req.RoleID); err != nil {
		s.logger.Error("granting resource", "error", err, "resource_id", resourceID, "role_id", req.RoleID)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resourceId": resourceID, "roleId": req.RoleID})
}

// handleRevokeResource deactivates a role's grant on the resource. Revoking
// an absent grant is a no-op.
func (s *Server) handleRevokeResource(w http.ResponseWriter, r *http.Request) {
	resourceID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleId")
	if !ok {
		return
	}

	if err := s.perms.RevokeResource(r.Context(), resourceID, roleID); err != nil {
		s.logger.Error("revoking resource", "error", err, "resource_id", resourceID, "role_id", roleID)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resourceId": resourceID, "roleId": roleID})
}
