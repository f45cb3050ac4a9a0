package api

import (
	"net/http"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
)

// handleListUsers returns every account, active or not.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("listing users", "error", err)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleSetUserStatus activates or deactivates an account. Deactivation
// locks the user out on their next request; existing tokens stop working
// without being touched.
func (s *Server) handleSetUserStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	active, ok := decodeActive(w, r)
	if !ok {
		return
	}

	status := auth.StatusInactive
	if active {
		status = auth.StatusActive
	}
	if err := s.users.SetStatus(r.Context(), id, status); err != nil {
		s.logger.Error("setting user status", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

// handleListSessions returns the user's live refresh tokens, one per
// logged-in device. The token strings themselves are never serialized.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	sessions, err := s.tokens.ListActiveByUser(r.Context(), id)
	if err != nil {
		s.logger.Error("listing sessions", "error", err, "user_id", id)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
