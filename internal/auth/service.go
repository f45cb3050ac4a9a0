package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Service implements credential issuance: register, login and logout.
// It owns no HTTP concerns; the api package maps its errors onto statuses.
type Service struct {
	users  UserRepository
	tokens TokenRepository
	perms  *SQLitePermissionRepository
	logger *slog.Logger

	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceDeps holds the collaborators and token settings for a Service.
type ServiceDeps struct {
	Users      UserRepository
	Tokens     TokenRepository
	Perms      *SQLitePermissionRepository
	Logger     *slog.Logger
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewService creates the credential issuance service.
func NewService(deps ServiceDeps) *Service {
	return &Service{
		users:      deps.Users,
		tokens:     deps.Tokens,
		perms:      deps.Perms,
		logger:     deps.Logger,
		secret:     deps.Secret,
		accessTTL:  deps.AccessTTL,
		refreshTTL: deps.RefreshTTL,
	}
}

// SideEffect reports the outcome of a best-effort secondary operation.
// A failed side effect is recorded here and logged but never propagated:
// the primary operation's success stands on its own.
type SideEffect struct {
	Err error
}

// OK reports whether the side effect completed.
func (s SideEffect) OK() bool {
	return s.Err == nil
}

// RegisterInput carries the fields accepted at registration. Role and
// Status are optional and default to PATIENT / ACTIVE.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// RegisterResult is the outcome of a successful registration: the stored
// user, an access token bound to the new id, and the best-effort role link.
type RegisterResult struct {
	User        *User
	AccessToken string
	RoleLink    SideEffect
}

// Register creates a user account and immediately issues an access token.
// The password is mandatory; hashing uses Argon2id. Linking the new user to
// its role row is attempted but must not fail the registration; a failure
// there is reported on the result and logged as a warning.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrValidation)
	}
	if in.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Status:       in.Status,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	access, err := NewAccessToken(user.ID, s.secret, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	result := &RegisterResult{
		User:        user,
		AccessToken: access,
		RoleLink:    SideEffect{Err: s.linkRole(ctx, user)},
	}
	if !result.RoleLink.OK() {
		s.logger.Warn("best-effort role link failed during registration",
			"user_id", user.ID,
			"role", user.Role,
			"error", result.RoleLink.Err,
		)
	}
	return result, nil
}

// linkRole creates the role_users row matching the user's coarse role.
func (s *Service) linkRole(ctx context.Context, user *User) error {
	role, err := s.perms.FindActiveRoleByName(ctx, user.Role)
	if err != nil {
		return fmt.Errorf("resolving role %q: %w", user.Role, err)
	}
	if err := s.perms.AssignRole(ctx, user.ID, role.ID); err != nil {
		return fmt.Errorf("linking role %q: %w", user.Role, err)
	}
	return nil
}

// LoginInput identifies the caller by username or email plus password, with
// the device descriptor taken from a request header ("unknown" if absent).
type LoginInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"-"`
}

// Session is the outcome of a successful login.
type Session struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// Login verifies credentials against an ACTIVE account and mints both
// tokens, persisting the refresh token as a per-device session row. All
// failure modes collapse into ErrInvalidCredentials: the caller never learns
// which factor failed.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	user, err := s.users.FindByIdentity(ctx, in.Username, in.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(in.Password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	access, err := NewAccessToken(user.ID, s.secret, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}
	refresh, err := NewRefreshToken(user.ID, s.secret, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	row := &RefreshToken{
		UserID:    user.ID,
		Token:     refresh,
		Device:    in.Device,
		ExpiresAt: time.Now().UTC().Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, row); err != nil {
		return nil, err
	}

	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// LogoutInput supports the two logout forms: by refresh token (from body,
// query or bearer header), or by user id with the all-devices flag.
type LogoutInput struct {
	Token      string
	UserID     int64
	AllDevices bool
}

// LogoutResult identifies whose sessions were closed, so callers can
// attribute the event without re-resolving the token.
type LogoutResult struct {
	UserID   int64
	Sessions int64
}

// Logout invalidates sessions. Re-invalidating an already-inactive token is
// a no-op success; an unknown token is ErrTokenNotFound; neither input form
// satisfied is ErrValidation.
func (s *Service) Logout(ctx context.Context, in LogoutInput) (*LogoutResult, error) {
	switch {
	case in.Token != "":
		row, err := s.tokens.FindByToken(ctx, in.Token)
		if err != nil {
			return nil, err
		}
		if err := s.tokens.Invalidate(ctx, in.Token); err != nil {
			return nil, err
		}
		return &LogoutResult{UserID: row.UserID, Sessions: 1}, nil

	case in.UserID > 0 && in.AllDevices:
		count, err := s.tokens.InvalidateAllForUser(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		s.logger.Info("all-devices logout", "user_id", in.UserID, "sessions", count)
		return &LogoutResult{UserID: in.UserID, Sessions: count}, nil

	default:
		return nil, fmt.Errorf("%w: refresh token or user id with all-devices flag required", ErrValidation)
	}
}
