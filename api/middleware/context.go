package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgAuth "github.com/angelmondragon/marketplace-core/pkg/auth"
	"github.com/angelmondragon/marketplace-core/pkg/enums"
)

type identityKey struct{}

// WithIdentity stores the authenticated actor on ctx.
func WithIdentity(ctx context.Context, id pkgAuth.Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the actor seeded by Auth.
func IdentityFromContext(ctx context.Context) (pkgAuth.Identity, bool) {
	if ctx == nil {
		return pkgAuth.Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(pkgAuth.Identity)
	if !ok || id.UserID == uuid.Nil {
		return pkgAuth.Identity{}, false
	}
	return id, true
}

// ActorFromContext returns the authenticated user id and role.
func ActorFromContext(ctx context.Context) (uuid.UUID, enums.ActorRole, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserID, id.Role, ok
}
