package api

import (
	"context"

	"github.com/CristianR23-coder/ProyectoLabClinico-sub000/internal/auth"
)

type contextKey string

const identityContextKey contextKey = "identity"

// withIdentity stamps the resolved caller identity onto the request context.
func withIdentity(ctx context.Context, id *auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// identityFrom returns the caller identity placed by the auth gateway,
// or nil when the request never passed through it.
func identityFrom(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityContextKey).(*auth.Identity)
	return id
}
