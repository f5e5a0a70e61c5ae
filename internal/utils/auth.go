package utils

import "context"

type contextKey string

const actorKey contextKey = "actor"

const (
	RoleAdmin  = "admin"
	RoleKasir  = "kasir"
	RoleSystem = "system"
)

// Actor is the opaque identity passed through the core. It is never
// interpreted beyond role checks at the transport edge.
type Actor struct {
	UserID int64
	Email  string
	Role   string
}

func (a Actor) IsZero() bool {
	return a.UserID == 0 && a.Role == ""
}

// UserIDPtr returns nil for anonymous actors so it can be stored as NULL.
func (a Actor) UserIDPtr() *int64 {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

// WithActor sets the actor into context (called by middleware)
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext retrieves the actor safely
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}

func HasRole(ctx context.Context, roles ...string) bool {
	a, ok := ActorFromContext(ctx)
	if !ok {
		return false
	}
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
