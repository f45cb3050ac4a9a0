package auth

import (
	"errors"
	"time"
)

// Status values shared by user accounts and refresh tokens.
// Stored as text, matching the legacy schema this system replaces.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Seed role names. These exist for bootstrap and for the legacy fallback;
// the authorization model itself treats roles as data.
const (
	RolePatient = "PATIENT"
	RoleDoctor  = "DOCTOR"
	RoleAdmin   = "ADMIN"
	RoleStaff   = "STAFF"
)

// User represents an account in the credential store.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"` // never serialised; empty for passwordless seed accounts
	Role         string    `json:"role"` // legacy coarse role, fallback only
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// RefreshToken represents a persisted login session for one device.
// Logout flips IsValid to INACTIVE; rows are never deleted on logout.
type RefreshToken struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"-"` // never serialised
	Device    string    `json:"device,omitempty"`
	IsValid   string    `json:"is_valid"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Active reports whether the token is still valid (flag only, not expiry).
func (t *RefreshToken) Active() bool {
	return t.IsValid == StatusActive
}

// Role is a named permission group.
type Role struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Resource is a protected endpoint: an upper-cased HTTP method plus a
// normalized path template (e.g. GET /api/orden/:id).
type Resource struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	Method   string `json:"method"`
	IsActive bool   `json:"is_active"`
}

// RoleUser links one role to one user. Its active flag is independent of
// both the role's and the user's own flags.
type RoleUser struct {
	ID       int64 `json:"id"`
	RoleID   int64 `json:"role_id"`
	UserID   int64 `json:"user_id"`
	IsActive bool  `json:"is_active"`
}

// ResourceRole links one resource to one role, again with its own flag.
type ResourceRole struct {
	ID         int64 `json:"id"`
	ResourceID int64 `json:"resource_id"`
	RoleID     int64 `json:"role_id"`
	IsActive   bool  `json:"is_active"`
}

// RoleLink is a resolved role grant for a user: the joined role's id and
// name, returned only when both the link and the role are active.
type RoleLink struct {
	RoleID   int64  `json:"role_id"`
	RoleName string `json:"role_name"`
}

// Identity is the authenticated-request context attached by the gateway and
// consumed by downstream handlers. Absence of an Identity means the request
// never passed authorization.
type Identity struct {
	UserID   int64    `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// Sentinel errors for credential and token operations.
var (
	ErrValidation         = errors.New("invalid request")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenNotFound      = errors.New("refresh token not found")
	ErrRoleNotFound       = errors.New("role not found")
	ErrResourceNotFound   = errors.New("resource not found")
)
