package auth

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
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

	migrationSQL := `
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

		CREATE INDEX idx_users_status ON users(status);

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

		CREATE INDEX idx_refresh_tokens_user ON refresh_tokens(user_id);
		CREATE INDEX idx_refresh_tokens_expires ON refresh_tokens(expires_at);

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

		CREATE INDEX idx_role_users_user ON role_users(user_id);

		CREATE TABLE resource_roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			resource_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			UNIQUE (resource_id, role_id),
			FOREIGN KEY (resource_id) REFERENCES resources(id) ON DELETE CASCADE,
			FOREIGN KEY (role_id) REFERENCES roles(id) ON DELETE CASCADE
		) STRICT;

		CREATE INDEX idx_resource_roles_resource ON resource_roles(resource_id);
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying auth migration: %v", err)
	}

	return db
}

// seedTestUser inserts a test user with password "test-password" and returns it.
func seedTestUser(t *testing.T, db *sql.DB, username, role string) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	repo := NewUserRepository(db)
	user := &User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		Status:       StatusActive,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// seedGrantedResource registers a resource, a role, the user's role link and
// the resource grant, all active. Returns the resource and role ids.
func seedGrantedResource(t *testing.T, db *sql.DB, userID int64, method, path, roleName string) (int64, int64) {
	t.Helper()

	perms := NewPermissionRepository(db)
	role, err := perms.CreateRole(context.Background(), roleName)
	if err != nil {
		t.Fatalf("creating role %s: %v", roleName, err)
	}
	resource, err := perms.CreateResource(context.Background(), method, path)
	if err != nil {
		t.Fatalf("creating resource %s %s: %v", method, path, err)
	}
	if err := perms.AssignRole(context.Background(), userID, role.ID); err != nil {
		t.Fatalf("assigning role: %v", err)
	}
	if err := perms.GrantResource(context.Background(), resource.ID, role.ID); err != nil {
		t.Fatalf("granting resource: %v", err)
	}
	return resource.ID, role.ID
}
