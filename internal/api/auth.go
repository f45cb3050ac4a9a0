package api

import (
	"encoding/json"
	"net/http"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/audit"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
)

// handleRegister creates an account and returns it with a fresh access token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Cuerpo JSON inválido")
		return
	}

	result, err := s.service.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{
		"user":        result.User,
		"accessToken": result.AccessToken,
	}
	if !result.RoleLink.OK() {
		// The account exists and the token works; only the role link is
		// pending an administrator.
		resp["warning"] = "Usuario creado sin vínculo de rol"
	}
	writeJSON(w, http.StatusCreated, resp)
}

// loginRequest is the request body for POST /api/auth/login. Username or
// email identifies the account; username wins when both are present.
type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin verifies credentials and issues the token pair. The X-Device
// header tags the stored refresh token for later session listings, falling
// back to the User-Agent when absent.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Cuerpo JSON inválido")
		return
	}

	device := r.Header.Get("X-Device")
	if device == "" {
		device = r.UserAgent()
	}

	session, err := s.service.Login(r.Context(), auth.LoginInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Device:   device,
	})
	if err != nil {
		s.auditAuth(r, audit.ActionLoginFailed, 0, req.Username, nil)
		writeServiceError(w, err)
		return
	}

	s.auditAuth(r, audit.ActionLogin, session.User.ID, session.User.Username, map[string]any{
		"device": device,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user":         session.User,
		"accessToken":  session.AccessToken,
		"refreshToken": session.RefreshToken,
	})
}

// logoutRequest is the request body for POST /api/auth/logout. Either a
// refresh token (single-session logout) or a user id with all=true
// (every session) must be given.
type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	UserID       int64  `json:"userId"`
	All          bool   `json:"all"`
}

// handleLogout invalidates refresh tokens. The token may travel in the
// body, the query string or as the bearer credential. Repeating the call
// for an already-invalid token succeeds again; the end state is the same.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.Body != nil {
		// An empty body is fine when the token travels elsewhere.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.RefreshToken == "" {
		req.RefreshToken = r.URL.Query().Get("token")
	}
	if req.RefreshToken == "" {
		req.RefreshToken, _ = bearerToken(r)
	}

	result, err := s.service.Logout(r.Context(), auth.LogoutInput{
		Token:      req.RefreshToken,
		UserID:     req.UserID,
		AllDevices: req.All,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The service resolved the owner; the username lookup stays best
	// effort so a deactivated account still logs out cleanly.
	username := ""
	if user, err := s.users.FindActiveByID(r.Context(), result.UserID); err == nil {
		username = user.Username
	}
	s.auditAuth(r, audit.ActionLogout, result.UserID, username, map[string]any{
		"all_devices": req.All,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "Sesión cerrada"})
}

// handleMe returns the authenticated caller's account and active role names.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())
	if identity == nil {
		writeUnauthorized(w, "No autenticado")
		return
	}

	user, err := s.users.FindActiveByID(r.Context(), identity.UserID)
	if err != nil {
		writeUnauthorized(w, "No autenticado")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"roles": identity.Roles,
	})
}

// auditAuth records an authentication event. Failures are logged, never
// surfaced to the client.
func (s *Server) auditAuth(r *http.Request, action string, userID int64, username string, details map[string]any) {
	if s.audit == nil {
		return
	}
	entry := audit.NewEntry(action, userID, username, "", details)
	if err := s.audit.Create(r.Context(), entry); err != nil {
		s.logger.Warn("audit write failed", "error", err, "action", action)
	}
}
