package http

import (
	"context"
)

type contextKey int

const actorKey contextKey = iota

func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorIDFromContext returns the authenticated actor, or "" for public routes.
func ActorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(actorKey).(string)
	return id
}
