package middleware

import "context"

// Actor is the authenticated caller, populated by Auth.
type Actor struct {
	UserID   string
	Role     string
	Username string
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the zero Actor for anonymous requests.
func ActorFromContext(ctx context.Context) Actor {
	if ctx == nil {
		return Actor{}
	}
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

func UserIDFromContext(ctx context.Context) string   { return ActorFromContext(ctx).UserID }
func RoleFromContext(ctx context.Context) string     { return ActorFromContext(ctx).Role }
func UsernameFromContext(ctx context.Context) string { return ActorFromContext(ctx).Username }

// WithUserID and WithRole amend the current actor. Handler tests use them to
// skip token minting.
func WithUserID(ctx context.Context, userID string) context.Context {
	a := ActorFromContext(ctx)
	a.UserID = userID
	return WithActor(ctx, a)
}

func WithRole(ctx context.Context, role string) context.Context {
	a := ActorFromContext(ctx)
	a.Role = role
	return WithActor(ctx, a)
}
