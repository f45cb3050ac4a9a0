package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TokenRepository defines the credential store's refresh token contract.
// Invalidation is always a flag flip, never a delete: revoked rows stay
// behind for audit until DeleteExpired reaps them.
type TokenRepository interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	Invalidate(ctx context.Context, token string) error
	InvalidateAllForUser(ctx context.Context, userID int64) (int64, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]RefreshToken, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed refresh token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

const tokenColumns = "id, user_id, token, device, is_valid, expires_at, created_at"

// Create inserts a new refresh token row. Device defaults to "unknown" and
// IsValid to ACTIVE when unset.
func (r *SQLiteTokenRepository) Create(ctx context.Context, token *RefreshToken) error {
	if token.Device == "" {
		token.Device = "unknown"
	}
	if token.IsValid == "" {
		token.IsValid = StatusActive
	}

	now := time.Now().UTC().Truncate(time.Second)
	token.CreatedAt = now

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token, device, is_valid, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token.UserID, token.Token, token.Device, token.IsValid,
		token.ExpiresAt.UTC().Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}

	token.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading new token id: %w", err)
	}
	return nil
}

// FindByToken retrieves a refresh token row by its token string.
func (r *SQLiteTokenRepository) FindByToken(ctx context.Context, token string) (*RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM refresh_tokens WHERE token = ?", token)

	t, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return t, nil
}

// Invalidate flips a single token's validity flag to INACTIVE. Flipping an
// already-inactive token is a no-op success (logout is idempotent).
func (r *SQLiteTokenRepository) Invalidate(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_valid = ? WHERE token = ?",
		StatusInactive, token)
	if err != nil {
		return fmt.Errorf("invalidating token: %w", err)
	}
	return nil
}

// InvalidateAllForUser flips every refresh token owned by a user, returning
// how many rows changed. Used for all-devices logout.
func (r *SQLiteTokenRepository) InvalidateAllForUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET is_valid = ? WHERE user_id = ? AND is_valid = ?",
		StatusInactive, userID, StatusActive)
	if err != nil {
		return 0, fmt.Errorf("invalidating tokens for user: %w", err)
	}

	count, _ := result.RowsAffected()
	return count, nil
}

// ListActiveByUser returns all valid, unexpired tokens for a user,
// newest first. Multiple concurrent sessions per user are expected.
func (r *SQLiteTokenRepository) ListActiveByUser(ctx context.Context, userID int64) ([]RefreshToken, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+tokenColumns+` FROM refresh_tokens
		 WHERE user_id = ? AND is_valid = ? AND expires_at > ?
		 ORDER BY created_at DESC, id DESC`,
		userID, StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("listing active tokens: %w", err)
	}
	defer rows.Close()

	tokens := []RefreshToken{}
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tokens: %w", err)
	}
	return tokens, nil
}

// DeleteExpired removes tokens past their expiry, freeing storage.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?",
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}

	count, _ := result.RowsAffected()
	return count, nil
}

func scanRefreshToken(s scanner) (*RefreshToken, error) {
	var t RefreshToken
	var device sql.NullString
	var expiresAt, createdAt string

	err := s.Scan(&t.ID, &t.UserID, &t.Token, &device, &t.IsValid, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scanning refresh token: %w", err)
	}

	if device.Valid {
		t.Device = device.String
	}
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	return &t, nil
}
