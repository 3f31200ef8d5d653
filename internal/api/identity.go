package api

import (
	"context"

	"imagehub/internal/models"
)

type contextKey string

const identityContextKey contextKey = "imagehub.identity"

// ContextWithIdentity attaches the authenticated caller to the request
// context. The auth middleware is the only writer.
func ContextWithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(models.Identity)
	return id, ok
}
