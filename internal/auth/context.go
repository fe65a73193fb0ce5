package auth

import "context"

// Role names known to the workflow core. ADMIN steps may configure any role
// string; these are the ones the core itself checks.
const (
	RoleClient     = "client"
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor" // Required for document-gate overrides
)

// Actor is the authenticated caller of a request: a client working a dossier
// or an agent reviewing it.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the actor holds the given role.
func (a *Actor) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

// ActorContextKey is the key for storing the Actor in a request context.
const ActorContextKey ContextKey = "actorContext"

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// GetActor extracts the Actor from a request context. Returns nil when the
// request carried no valid token.
func GetActor(ctx context.Context) *Actor {
	actor, ok := ctx.Value(ActorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}
