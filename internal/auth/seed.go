package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// seedPasswordBytes is the number of random bytes for the seed admin password.
const seedPasswordBytes = 16

// SeedRoles is the bootstrap role set. Roles remain plain data afterwards:
// administrators can add, deactivate or re-grant them freely.
var SeedRoles = []string{RolePatient, RoleDoctor, RoleAdmin, RoleStaff}

// SeedResource describes a built-in protected endpoint and the seed roles
// granted on it. Registration is idempotent, so seeding runs on every boot
// and picks up endpoints added in newer versions.
type SeedResource struct {
	Method string
	Path   string
	Roles  []string
}

// Seed prepares the permission store and, on first boot only, creates the
// initial ADMIN account with a generated password. The password is logged
// once and must be changed immediately. Returns the generated password, or
// an empty string when account seeding was skipped.
func Seed(ctx context.Context, users UserRepository, perms *SQLitePermissionRepository,
	resources []SeedResource, logger *slog.Logger) (string, error) {

	roleIDs := make(map[string]int64, len(SeedRoles))
	for _, name := range SeedRoles {
		role, err := perms.CreateRole(ctx, name)
		if err != nil {
			return "", fmt.Errorf("seeding role %s: %w", name, err)
		}
		roleIDs[name] = role.ID
	}

	for _, sr := range resources {
		resource, err := perms.CreateResource(ctx, sr.Method, sr.Path)
		if err != nil {
			return "", fmt.Errorf("seeding resource %s %s: %w", sr.Method, sr.Path, err)
		}
		for _, roleName := range sr.Roles {
			roleID, ok := roleIDs[roleName]
			if !ok {
				role, err := perms.CreateRole(ctx, roleName)
				if err != nil {
					return "", fmt.Errorf("seeding role %s: %w", roleName, err)
				}
				roleID = role.ID
				roleIDs[roleName] = roleID
			}
			if err := perms.GrantResource(ctx, resource.ID, roleID); err != nil {
				return "", fmt.Errorf("seeding grant %s -> %s: %w", sr.Path, roleName, err)
			}
		}
	}

	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping admin seed")
		return "", nil
	}

	passwordBytes := make([]byte, seedPasswordBytes)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("generating seed password: %w", err)
	}
	password := hex.EncodeToString(passwordBytes)

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Username:     "admin",
		PasswordHash: hash,
		Role:         RoleAdmin,
		Status:       StatusActive,
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}
	if err := perms.AssignRole(ctx, admin.ID, roleIDs[RoleAdmin]); err != nil {
		return "", fmt.Errorf("linking seed admin role: %w", err)
	}

	logger.Warn("seed admin account created",
		"username", "admin",
		"password", password,
		"action_required", "change this password immediately",
	)

	return password, nil
}
