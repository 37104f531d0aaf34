package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"retz/internal/store"
)

type mockUserStore struct {
	store.UserStore
	user *store.User
	err  error
}

func (m *mockUserStore) GetUser(ctx context.Context, keyID string) (*store.User, error) {
	return m.user, m.err
}

func TestAuth_MissingCredentials(t *testing.T) {
	mw := Auth(&mockUserStore{})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuth_StoreError(t *testing.T) {
	mw := Auth(&mockUserStore{err: errors.New("database error")})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("key1", "secret1")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestAuth_UnknownUser(t *testing.T) {
	mw := Auth(&mockUserStore{user: nil})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("key1", "secret1")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuth_WrongSecret(t *testing.T) {
	mw := Auth(&mockUserStore{user: &store.User{KeyID: "key1", Secret: "correct", Enabled: true}})

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("key1", "wrong")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuth_ValidCredentials(t *testing.T) {
	u := &store.User{KeyID: "key1", Secret: "correct", Enabled: true}
	mw := Auth(&mockUserStore{user: u})

	var captured *store.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("key1", "correct")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	if captured == nil || captured.KeyID != "key1" {
		t.Errorf("expected authenticated user key1 in context, got %+v", captured)
	}
}

func TestUserFromContext_Empty(t *testing.T) {
	u := UserFromContext(context.Background())
	if u != nil {
		t.Errorf("expected nil user from empty context, got %+v", u)
	}
}
