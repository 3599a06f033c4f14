package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting staff member's display name in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. Returns "system" when no
// actor was attached, so ledger entries are never written without attribution.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	if actor == "" {
		return "system"
	}
	return actor
}
