package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserRepository defines the credential store's user contract.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindActiveByID(ctx context.Context, id int64) (*User, error)
	FindByIdentity(ctx context.Context, username, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	SetStatus(ctx context.Context, id int64, status string) error
	Count(ctx context.Context) (int, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = "id, username, email, password_hash, role, status, created_at, updated_at"

// Create inserts a new user account, filling defaults for role and status
// when absent. The generated id is written back to the struct.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.Role == "" {
		user.Role = RolePatient
	}
	if user.Status == "" {
		user.Status = StatusActive
	}

	now := time.Now().UTC().Truncate(time.Second)
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, role, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username, nullString(user.Email), nullString(user.PasswordHash),
		user.Role, user.Status,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	user.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading new user id: %w", err)
	}
	return nil
}

// FindActiveByID retrieves a user by id only if the account is ACTIVE.
// Inactive or missing accounts both return ErrUserNotFound: the gateway
// treats them identically.
func (r *SQLiteUserRepository) FindActiveByID(ctx context.Context, id int64) (*User, error) {
	return r.getUser(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? AND status = ?",
		id, StatusActive)
}

// FindByIdentity retrieves an ACTIVE user by username or email, whichever
// was supplied. Username wins when both are present.
func (r *SQLiteUserRepository) FindByIdentity(ctx context.Context, username, email string) (*User, error) {
	switch {
	case username != "":
		return r.getUser(ctx,
			"SELECT "+userColumns+" FROM users WHERE username = ? AND status = ?",
			username, StatusActive)
	case email != "":
		return r.getUser(ctx,
			"SELECT "+userColumns+" FROM users WHERE email = ? AND status = ?",
			email, StatusActive)
	default:
		return nil, ErrUserNotFound
	}
}

// List returns all users ordered by creation date.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// SetStatus flips an account between ACTIVE and INACTIVE.
func (r *SQLiteUserRepository) SetStatus(ctx context.Context, id int64, status string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating user status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, query, args...))
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	var email, passwordHash sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Username, &email, &passwordHash,
		&u.Role, &u.Status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if email.Valid {
		u.Email = email.String
	}
	if passwordHash.Valid {
		u.PasswordHash = passwordHash.String
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &u, nil
}

// Shared SQLite helpers.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
