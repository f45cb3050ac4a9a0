package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLitePermissionRepository implements the PermissionStore read contract
// consumed by the gateway, plus the administrative mutations (create/toggle
// roles and resources, grant/revoke join rows) used by seeding and the
// admin endpoints. The gateway itself never mutates permission rows.
type SQLitePermissionRepository struct {
	db *sql.DB
}

// NewPermissionRepository creates a new SQLite-backed permission repository.
func NewPermissionRepository(db *sql.DB) *SQLitePermissionRepository {
	return &SQLitePermissionRepository{db: db}
}

// --- Gateway reads -------------------------------------------------------

// FindActiveResource looks up an active resource row by its canonical
// (method, path) signature. Missing or inactive both return
// ErrResourceNotFound.
func (r *SQLitePermissionRepository) FindActiveResource(ctx context.Context, method, path string) (*Resource, error) {
	var res Resource
	var isActive int

	err := r.db.QueryRowContext(ctx,
		"SELECT id, path, method, is_active FROM resources WHERE method = ? AND path = ? AND is_active = 1",
		method, path,
	).Scan(&res.ID, &res.Path, &res.Method, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, fmt.Errorf("finding resource: %w", err)
	}

	res.IsActive = isActive != 0
	return &res, nil
}

// FindActiveRoleLinksForUser returns the caller's effective role links:
// active role_users rows whose joined role is itself active. An empty slice
// is a normal outcome (the gateway then tries the legacy fallback).
func (r *SQLitePermissionRepository) FindActiveRoleLinksForUser(ctx context.Context, userID int64) ([]RoleLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ro.id, ro.name
		 FROM role_users ru
		 JOIN roles ro ON ro.id = ru.role_id
		 WHERE ru.user_id = ? AND ru.is_active = 1 AND ro.is_active = 1
		 ORDER BY ro.name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("finding role links: %w", err)
	}
	defer rows.Close()

	links := []RoleLink{}
	for rows.Next() {
		var l RoleLink
		if err := rows.Scan(&l.RoleID, &l.RoleName); err != nil {
			return nil, fmt.Errorf("scanning role link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating role links: %w", err)
	}
	return links, nil
}

// FindActiveRoleByName looks up an active role by name. Used for the legacy
// fallback and for best-effort role linking at registration.
func (r *SQLitePermissionRepository) FindActiveRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	var isActive int

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, is_active FROM roles WHERE name = ? AND is_active = 1",
		name,
	).Scan(&role.ID, &role.Name, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("finding role by name: %w", err)
	}

	role.IsActive = isActive != 0
	return &role, nil
}

// FindActiveResourceRole returns any active grant joining the resource to
// one of the given role ids, or (nil, nil) when no such grant exists;
// absence of a grant is a decision, not an error.
func (r *SQLitePermissionRepository) FindActiveResourceRole(ctx context.Context, resourceID int64, roleIDs []int64) (*ResourceRole, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(roleIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(roleIDs)+1)
	args = append(args, resourceID)
	for _, id := range roleIDs {
		args = append(args, id)
	}

	var rr ResourceRole
	var isActive int
	err := r.db.QueryRowContext(ctx,
		`SELECT id, resource_id, role_id, is_active FROM resource_roles
		 WHERE resource_id = ? AND is_active = 1 AND role_id IN (`+placeholders+`)
		 LIMIT 1`, args...,
	).Scan(&rr.ID, &rr.ResourceID, &rr.RoleID, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding resource grant: %w", err)
	}

	rr.IsActive = isActive != 0
	return &rr, nil
}

// --- Administrative mutations -------------------------------------------

// CreateRole inserts a role if it does not exist and returns the row either
// way. Creation is idempotent so seeding can run on every boot.
func (r *SQLitePermissionRepository) CreateRole(ctx context.Context, name string) (*Role, error) {
	var role Role
	var isActive int

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, is_active FROM roles WHERE name = ?", name,
	).Scan(&role.ID, &role.Name, &isActive)
	if err == nil {
		role.IsActive = isActive != 0
		return &role, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking role: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO roles (name, is_active) VALUES (?, 1)", name)
	if err != nil {
		return nil, fmt.Errorf("creating role: %w", err)
	}

	role.ID, _ = result.LastInsertId()
	role.Name = name
	role.IsActive = true
	return &role, nil
}

// SetRoleActive flips a role's active flag.
func (r *SQLitePermissionRepository) SetRoleActive(ctx context.Context, id int64, active bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE roles SET is_active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("updating role: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// ListRoles returns every role, active or not, ordered by name.
func (r *SQLitePermissionRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, is_active FROM roles ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		var role Role
		var isActive int
		if err := rows.Scan(&role.ID, &role.Name, &isActive); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		role.IsActive = isActive != 0
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}
	return roles, nil
}

// CreateResource registers a protected endpoint, normalizing its signature
// first. Idempotent like CreateRole.
func (r *SQLitePermissionRepository) CreateResource(ctx context.Context, method, path string) (*Resource, error) {
	sig := NewSignature(method, path)

	var res Resource
	var isActive int
	err := r.db.QueryRowContext(ctx,
		"SELECT id, path, method, is_active FROM resources WHERE method = ? AND path = ?",
		sig.Method, sig.Path,
	).Scan(&res.ID, &res.Path, &res.Method, &isActive)
	if err == nil {
		res.IsActive = isActive != 0
		return &res, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checking resource: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO resources (path, method, is_active) VALUES (?, ?, 1)",
		sig.Path, sig.Method)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	res.ID, _ = result.LastInsertId()
	res.Path = sig.Path
	res.Method = sig.Method
	res.IsActive = true
	return &res, nil
}

// SetResourceActive flips a resource's active flag. Deactivating a resource
// makes the endpoint unreachable by any role on the very next request.
func (r *SQLitePermissionRepository) SetResourceActive(ctx context.Context, id int64, active bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE resources SET is_active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("updating resource: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrResourceNotFound
	}
	return nil
}

// ListResources returns every registered resource ordered by path.
func (r *SQLitePermissionRepository) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, path, method, is_active FROM resources ORDER BY path ASC, method ASC")
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	defer rows.Close()

	resources := []Resource{}
	for rows.Next() {
		var res Resource
		var isActive int
		if err := rows.Scan(&res.ID, &res.Path, &res.Method, &isActive); err != nil {
			return nil, fmt.Errorf("scanning resource: %w", err)
		}
		res.IsActive = isActive != 0
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating resources: %w", err)
	}
	return resources, nil
}

// GrantResource permits a role on a resource, reactivating a previously
// revoked grant if one exists.
func (r *SQLitePermissionRepository) GrantResource(ctx context.Context, resourceID, roleID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resource_roles (resource_id, role_id, is_active) VALUES (?, ?, 1)
		 ON CONFLICT(resource_id, role_id) DO UPDATE SET is_active = 1`,
		resourceID, roleID)
	if err != nil {
		return fmt.Errorf("granting resource: %w", err)
	}
	return nil
}

// RevokeResource deactivates a role's grant on a resource. Revoking a grant
// that never existed is a no-op.
func (r *SQLitePermissionRepository) RevokeResource(ctx context.Context, resourceID, roleID int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE resource_roles SET is_active = 0 WHERE resource_id = ? AND role_id = ?",
		resourceID, roleID)
	if err != nil {
		return fmt.Errorf("revoking resource: %w", err)
	}
	return nil
}

// AssignRole links a role to a user, reactivating a revoked link if present.
func (r *SQLitePermissionRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_users (role_id, user_id, is_active) VALUES (?, ?, 1)
		 ON CONFLICT(role_id, user_id) DO UPDATE SET is_active = 1`,
		roleID, userID)
	if err != nil {
		return fmt.Errorf("assigning role: %w", err)
	}
	return nil
}

// RevokeRole deactivates a user's link to a role.
func (r *SQLitePermissionRepository) RevokeRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE role_users SET is_active = 0 WHERE role_id = ? AND user_id = ?",
		roleID, userID)
	if err != nil {
		return fmt.Errorf("revoking role: %w", err)
	}
	return nil
}
