package auth

import (
	"context"
	"errors"
	"fmt"
)

// PermissionStore is the read contract the gateway needs per request. It is
// an interface so the authorization state machine can be exercised against a
// fake in-memory store without a database.
type PermissionStore interface {
	FindActiveResource(ctx context.Context, method, path string) (*Resource, error)
	FindActiveRoleLinksForUser(ctx context.Context, userID int64) ([]RoleLink, error)
	FindActiveRoleByName(ctx context.Context, name string) (*Role, error)
	FindActiveResourceRole(ctx context.Context, resourceID int64, roleIDs []int64) (*ResourceRole, error)
}

// ForbiddenError is an authorization denial. Reason is the user-facing
// message; Resource and Roles carry audit detail that downstream layers may
// log or expose under a details object, never as a more specific message.
type ForbiddenError struct {
	Reason   string
	Resource string
	Roles    []string
}

func (e *ForbiddenError) Error() string {
	if e.Resource == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.Resource)
}

// Denial reasons, surfaced verbatim in 403 bodies.
const (
	ReasonResourceUnknown = "Recurso no registrado o inactivo"
	ReasonNoActiveRoles   = "Sin roles activos"
	ReasonNotGranted      = "No autorizado para este recurso"
)

// Authorize decides whether an already-authenticated active user may access
// the resource identified by sig. The checks run strictly in order and
// short-circuit on the first failure; nothing is cached between requests, so
// every decision is read-consistent with the store at the instant it runs.
//
//  1. The signature must match an active resource row; an unregistered
//     endpoint is unreachable by any role.
//  2. The caller's effective roles are the active role links whose role is
//     active. Only when that set is entirely empty does the legacy coarse
//     role serve as fallback (it is never merged with a partial set).
//  3. Some active resource_roles row must join the resource to one of the
//     effective roles.
//
// On success it returns the Identity to attach to the request context.
func Authorize(ctx context.Context, user *User, sig Signature, store PermissionStore) (*Identity, error) {
	resource, err := store.FindActiveResource(ctx, sig.Method, sig.Path)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return nil, &ForbiddenError{Reason: ReasonResourceUnknown, Resource: sig.String()}
		}
		return nil, fmt.Errorf("resolving resource: %w", err)
	}

	links, err := store.FindActiveRoleLinksForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving roles: %w", err)
	}

	if len(links) == 0 && user.Role != "" {
		// Legacy fallback: the coarse role field names the sole effective
		// role, but only when the link set is entirely empty.
		role, err := store.FindActiveRoleByName(ctx, user.Role)
		if err != nil && !errors.Is(err, ErrRoleNotFound) {
			return nil, fmt.Errorf("resolving fallback role: %w", err)
		}
		if role != nil {
			links = []RoleLink{{RoleID: role.ID, RoleName: role.Name}}
		}
	}

	if len(links) == 0 {
		return nil, &ForbiddenError{Reason: ReasonNoActiveRoles, Resource: sig.String()}
	}

	roleIDs := make([]int64, len(links))
	roleNames := make([]string, len(links))
	for i, l := range links {
		roleIDs[i] = l.RoleID
		roleNames[i] = l.RoleName
	}

	grant, err := store.FindActiveResourceRole(ctx, resource.ID, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("resolving grant: %w", err)
	}
	if grant == nil {
		return nil, &ForbiddenError{
			Reason:   ReasonNotGranted,
			Resource: sig.String(),
			Roles:    roleNames,
		}
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    roleNames,
	}, nil
}
