package auth

import (
	"context"
	"testing"

	"retz/internal/store"
)

type fakeUserStore struct {
	store.UserStore
	user *store.User
}

func (f fakeUserStore) GetUser(ctx context.Context, keyID string) (*store.User, error) {
	if f.user == nil || f.user.KeyID != keyID {
		return nil, nil
	}
	return f.user, nil
}

func TestVerify_Success(t *testing.T) {
	us := fakeUserStore{user: &store.User{KeyID: "k1", Secret: "s1", Enabled: true}}
	u, err := Verify(context.Background(), us, "k1", "s1")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if u == nil || u.KeyID != "k1" {
		t.Errorf("expected authenticated user k1, got %+v", u)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	us := fakeUserStore{user: &store.User{KeyID: "k1", Secret: "s1", Enabled: true}}
	u, err := Verify(context.Background(), us, "k1", "wrong")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if u != nil {
		t.Error("expected nil user for wrong secret")
	}
}

func TestVerify_DisabledUser(t *testing.T) {
	us := fakeUserStore{user: &store.User{KeyID: "k1", Secret: "s1", Enabled: false}}
	u, err := Verify(context.Background(), us, "k1", "s1")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if u != nil {
		t.Error("expected nil user for disabled account")
	}
}

func TestVerify_UnknownKeyID(t *testing.T) {
	us := fakeUserStore{}
	u, err := Verify(context.Background(), us, "missing", "s1")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if u != nil {
		t.Error("expected nil user for unknown keyId")
	}
}
