package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ctxActorKey contextKey = "actor"

// Verifier resolves a bearer token to an actor id.
type Verifier interface {
	CurrentActorID(token string) (string, error)
}

// SessionAuth authenticates requests via the Authorization bearer token and
// puts the actor id into the request context.
func SessionAuth(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID, err := verifier.CurrentActorID(extractBearer(r))
			if err != nil {
				http.Error(w, `{"error":"missing or invalid session token"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actorID)))
		})
	}
}

// ActorFromCtx returns the authenticated actor id or "".
func ActorFromCtx(ctx context.Context) string {
	actor, _ := ctx.Value(ctxActorKey).(string)
	return actor
}

// WithActor returns a context carrying the given actor id.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ctxActorKey, actorID)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
