package actorctx

import (
	"context"

	"github.com/geocoder89/eventhub/internal/domain/user"
)

// Actor is the engine's view of "who is calling" - lifted out of the gin
// request context by the handler layer before calling into internal/engine,
// so the engine itself never depends on gin.
type Actor struct {
	UserID string
	Role   user.AuthRole
	Email  string
}

func (a Actor) IsZero() bool { return a.UserID == "" }

// HasAdminPrivileges reports whether this actor's authorization level
// bypasses ownership/co-organizer checks (Super Admin, Administrator).
func (a Actor) HasAdminPrivileges() bool {
	return a.Role == user.RoleSuperAdmin || a.Role == user.RoleAdministrator
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && !a.IsZero()
}
