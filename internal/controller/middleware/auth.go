// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"net/http"

	"retz/internal/auth"
	"retz/internal/store"
)

type userKey struct{}

// Auth authenticates the request's Basic-Auth-shaped keyId/secret
// credentials against the Store and attaches the resolved User to the
// request context.
func Auth(users store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, secret, ok := r.BasicAuth()
			if !ok {
				http.Error(w, "missing credentials", http.StatusUnauthorized)
				return
			}

			u, err := auth.Verify(r.Context(), users, keyID, secret)
			if err != nil {
				http.Error(w, "authentication failed", http.StatusInternalServerError)
				return
			}
			if u == nil {
				http.Error(w, "invalid credentials", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey{}, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext extracts the authenticated User from the context.
func UserFromContext(ctx context.Context) *store.User {
	u, _ := ctx.Value(userKey{}).(*store.User)
	return u
}

// ContextWithUser attaches u as the authenticated user, the same way
// Auth does after a successful credential check. Exported so other
// packages' tests can exercise handlers without a real request.
func ContextWithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}
