package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor id in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the actor id, reporting false when absent.
func ActorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorContextKey{}).(int64)
	return id, ok && id > 0
}
