package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
)

// errorResponse is the failure envelope for every error status. Details is
// present only on 403 responses, carrying the resource signature and the
// caller's role names for auditability, never a more specific message.
type errorResponse struct {
	Error   string        `json:"error"`
	Details *errorDetails `json:"details,omitempty"`
}

type errorDetails struct {
	Resource string   `json:"resource"`
	Roles    []string `json:"roles"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		// Best-effort write; the connection may already be gone.
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, message)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "Error interno del servidor")
}

// writeForbidden writes a 403 with the denial's audit detail attached.
func writeForbidden(w http.ResponseWriter, denial *auth.ForbiddenError) {
	roles := denial.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusForbidden, errorResponse{
		Error: denial.Reason,
		Details: &errorDetails{
			Resource: denial.Resource,
			Roles:    roles,
		},
	})
}

// writeServiceError maps credential issuance errors onto HTTP statuses.
// Unrecognized errors become an opaque 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeBadRequest(w, "Solicitud inválida")
	case errors.Is(err, auth.ErrUsernameExists):
		writeBadRequest(w, "El nombre de usuario ya existe")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "Credenciales inválidas")
	case errors.Is(err, auth.ErrTokenNotFound):
		writeNotFound(w, "Token no encontrado")
	default:
		writeInternalError(w)
	}
}
