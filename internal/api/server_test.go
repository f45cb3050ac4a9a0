package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/audit"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/infrastructure/config"
	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/infrastructure/logging"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// testEnv bundles the server, its router and the stores backing it, so
// tests can reach behind the HTTP surface to set up fixtures.
type testEnv struct {
	srv           *Server
	router        *chi.Mux
	db            *sql.DB
	users         *auth.SQLiteUserRepository
	tokens        *auth.SQLiteTokenRepository
	perms         *auth.SQLitePermissionRepository
	audit         *audit.SQLiteRepository
	adminPassword string
}

// testServer creates a fully seeded server over a temp-file SQLite database:
// roles, the protected resource catalog, and the first-boot admin account.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	users := auth.NewUserRepository(db)
	tokens := auth.NewTokenRepository(db)
	perms := auth.NewPermissionRepository(db)
	auditRepo := audit.NewRepository(db)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	adminPassword, err := auth.Seed(context.Background(), users, perms, ProtectedResources(), log.Logger)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	service := auth.NewService(auth.ServiceDeps{
		Users:      users,
		Tokens:     tokens,
		Perms:      perms,
		Logger:     log.Logger,
		Secret:     testJWTSecret,
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
	})

	srv, err := New(Deps{
		Config: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.ServerTimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 15,
			},
		},
		Logger:  log,
		Users:   users,
		Tokens:  tokens,
		Perms:   perms,
		Service: service,
		Audit:   auditRepo,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{
		srv:           srv,
		router:        srv.buildRouter(),
		db:            db,
		users:         users,
		tokens:        tokens,
		perms:         perms,
		audit:         auditRepo,
		adminPassword: adminPassword,
	}
}

// setupTestDB creates a temp-file SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT UNIQUE,
			password_hash TEXT,
			role TEXT NOT NULL DEFAULT 'PATIENT',
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE refresh_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			token TEXT NOT NULL UNIQUE,
			device TEXT,
			is_valid TEXT NOT NULL DEFAULT 'ACTIVE',
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			is_active INTEGER NOT NULL DEFAULT 1
		) STRICT;

		CREATE TABLE resources (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			method TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			UNIQUE (method, path)
		) STRICT;

		CREATE TABLE role_users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			UNIQUE (role_id, user_id),
			FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE resource_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			UNIQUE (resource_id, role_id),
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE,
			FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			user_id INTEGER,
			username TEXT,
			resource TEXT,
			details TEXT,
			created_at TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	return db
}

// adminToken logs in as the seeded admin and returns the access token.
func (env *testEnv) adminToken(t *testing.T) string {
	t.Helper()

	body := `{"username":"admin","password":"` + env.adminPassword + `"}`
	w := env.do(t, http.MethodPost, "/api/auth/login", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("admin login status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	return resp.AccessToken
}

// seedPatient creates an active PATIENT account with a role link and returns
// the user plus a valid access token.
func (env *testEnv) seedPatient(t *testing.T, username string) (*auth.User, string) {
	t.Helper()

	hash, err := auth.HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &auth.User{Username: username, PasswordHash: hash, Role: auth.RolePatient}
	if err := env.users.Create(context.Background(), user); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	role, err := env.perms.FindActiveRoleByName(context.Background(), auth.RolePatient)
	if err != nil {
		t.Fatalf("finding PATIENT role: %v", err)
	}
	if err := env.perms.AssignRole(context.Background(), user.ID, role.ID); err != nil {
		t.Fatalf("assigning role: %v", err)
	}

	token, err := auth.NewAccessToken(user.ID, testJWTSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return user, token
}

// do performs a request against the router and returns the recorder.
func (env *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRequestID_Generated(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:4200" {
		t.Errorf("ACAO = %q", got)
	}
}

func TestRegister(t *testing.T) {
	env := testServer(t)

	body := `{"username":"paciente1","email":"p1@example.com","password":"secret123"}`
	w := env.do(t, http.MethodPost, "/api/auth/register", body, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp struct {
		User        auth.User `json:"user"`
		AccessToken string    `json:"accessToken"`
		Warning     string    `json:"warning"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.User.ID == 0 {
		t.Error("user id missing")
	}
	if resp.AccessToken == "" {
		t.Error("access token missing")
	}
	if resp.Warning != "" {
		t.Errorf("unexpected warning %q (PATIENT role is seeded)", resp.Warning)
	}
}

func TestRegister_InvalidJSON(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", "not json", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRegister_MissingPassword(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/auth/register", `{"username":"x"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := testServer(t)

	body := `{"username":"paciente1","password":"secret123"}`
	if w := env.do(t, http.MethodPost, "/api/auth/register", body, ""); w.Code != http.StatusCreated {
		t.Fatalf("first register status = %d", w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/auth/register", body, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLogin(t *testing.T) {
	env := testServer(t)

	body := `{"username":"admin","password":"` + env.adminPassword + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("X-Device", "tablet")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("token pair incomplete")
	}

	// The session row carries the device tag from the header
	row, err := env.tokens.FindByToken(context.Background(), resp.RefreshToken)
	if err != nil {
		t.Fatalf("finding session: %v", err)
	}
	if row.Device != "tablet" {
		t.Errorf("device = %q, want tablet", row.Device)
	}
}

func TestLogin_DeviceFallsBackToUserAgent(t *testing.T) {
	env := testServer(t)

	body := `{"username":"admin","password":"` + env.adminPassword + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("User-Agent", "lab-mobile/2.1")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	row, err := env.tokens.FindByToken(context.Background(), resp.RefreshToken)
	if err != nil {
		t.Fatalf("finding session: %v", err)
	}
	if row.Device != "lab-mobile/2.1" {
		t.Errorf("device = %q, want lab-mobile/2.1", row.Device)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := testServer(t)

	body := `{"username":"admin","password":"wrong"}`
	w := env.do(t, http.MethodPost, "/api/auth/login", body, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, w); resp.Error != "Credenciales inválidas" {
		t.Errorf("error = %q, want Credenciales inválidas", resp.Error)
	}
}

func TestLogin_UnknownUserSameBody(t *testing.T) {
	// Unknown user and wrong password must be indistinguishable.
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/auth/login", `{"username":"ghost","password":"x"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if resp := decodeError(t, w); resp.Error != "Credenciales inválidas" {
		t.Errorf("error = %q, want Credenciales inválidas", resp.Error)
	}
}

func TestLogout(t *testing.T) {
	env := testServer(t)

	// Login to obtain a refresh token
	body := `{"username":"admin","password":"` + env.adminPassword + `"}`
	w := env.do(t, http.MethodPost, "/api/auth/login", body, "")
	var session struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}

	logoutBody := `{"refreshToken":"` + session.RefreshToken + `"}`
	w = env.do(t, http.MethodPost, "/api/auth/logout", logoutBody, "")
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d; body: %s", w.Code, w.Body.String())
	}

	row, err := env.tokens.FindByToken(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("finding token: %v", err)
	}
	if row.Active() {
		t.Error("token still active after logout")
	}

	// Idempotent: the same call succeeds again
	w = env.do(t, http.MethodPost, "/api/auth/logout", logoutBody, "")
	if w.Code != http.StatusOK {
		t.Errorf("repeated logout status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestLogout_BearerRefreshToken(t *testing.T) {
	// The refresh token may also arrive as the bearer credential with an
	// empty body.
	env := testServer(t)

	body := `{"username":"admin","password":"` + env.adminPassword + `"}`
	w := env.do(t, http.MethodPost, "/api/auth/login", body, "")
	var session struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}

	w = env.do(t, http.MethodPost, "/api/auth/logout", `{}`, session.RefreshToken)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d; body: %s", w.Code, w.Body.String())
	}

	row, err := env.tokens.FindByToken(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("finding token: %v", err)
	}
	if row.Active() {
		t.Error("token still active after bearer logout")
	}
}

func TestLogout_AuditNamesOwner(t *testing.T) {
	env := testServer(t)

	body := `{"username":"admin","password":"` + env.adminPassword + `"}`
	w := env.do(t, http.MethodPost, "/api/auth/login", body, "")
	var session struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}

	logoutBody := `{"refreshToken":"` + session.RefreshToken + `"}`
	if w = env.do(t, http.MethodPost, "/api/auth/logout", logoutBody, ""); w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}

	admin, err := env.users.FindByIdentity(context.Background(), "admin", "")
	if err != nil {
		t.Fatalf("finding admin: %v", err)
	}

	result, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionLogout})
	if err != nil {
		t.Fatalf("listing audit: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("logout entries = %d, want 1", result.Total)
	}
	entry := result.Entries[0]
	if entry.UserID != admin.ID {
		t.Errorf("entry.UserID = %d, want %d", entry.UserID, admin.ID)
	}
	if entry.Username != "admin" {
		t.Errorf("entry.Username = %q, want admin", entry.Username)
	}
}

func TestLogout_UnknownToken(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/auth/logout", `{"refreshToken":"never-issued"}`, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestLogout_NoInput(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodPost, "/api/auth/logout", `{}`, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLogout_AllDevices(t *testing.T) {
	env := testServer(t)
	user, _ := env.seedPatient(t, "paciente1")

	// Open three sessions
	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/api/auth/login",
			`{"username":"paciente1","password":"test-password"}`, "")
		if w.Code != http.StatusOK {
			t.Fatalf("login status = %d", w.Code)
		}
	}

	body := `{"userId":` + strconv.FormatInt(user.ID, 10) + `,"all":true}`
	w := env.do(t, http.MethodPost, "/api/auth/logout", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("all-devices logout status = %d; body: %s", w.Code, w.Body.String())
	}

	sessions, err := env.tokens.ListActiveByUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("listing sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("%d sessions still active", len(sessions))
	}
}
