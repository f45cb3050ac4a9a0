package api

import (
	"net/http"
	"strconv"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/audit"
)

// handleListAudit returns audit trail entries, newest first. Query
// parameters: action, userId, resource, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		Resource: q.Get("resource"),
	}
	if v := q.Get("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeBadRequest(w, "Identificador inválido")
			return
		}
		filter.UserID = id
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err)
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
