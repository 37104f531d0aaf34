// Package auth verifies keyId/secret credentials against the Store.
// Retz stores secrets in plaintext (matching the original Java
// implementation's users table, which has no hash column), so
// verification is a constant-time byte comparison rather than a hash
// lookup.
package auth

import (
	"context"
	"crypto/subtle"

	"retz/internal/store"
)

// Verify checks keyId/secret against the Store, returning the User on
// success. It returns (nil, nil) for "not authenticated" so callers
// can distinguish that from a Store failure.
func Verify(ctx context.Context, users store.UserStore, keyID, secret string) (*store.User, error) {
	u, err := users.GetUser(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Enabled {
		return nil, nil
	}
	if subtle.ConstantTimeCompare([]byte(u.Secret), []byte(secret)) != 1 {
		return nil, nil
	}
	return u, nil
}
