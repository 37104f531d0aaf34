package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"retz/internal/controller/middleware"
	"retz/internal/store"
	"retz/pkg/api"
)

func withAuthedUser(req *http.Request, keyID string) *http.Request {
	return req.WithContext(middleware.ContextWithUser(req.Context(), &store.User{KeyID: keyID, Enabled: true}))
}

func TestLoadApplication_Success(t *testing.T) {
	mock := newMockStore()
	mock.addApplicationOK = true
	h := New(mock, nil, nil)

	body, _ := json.Marshal(api.LoadApplicationRequest{Appid: "app1"})
	req := httptest.NewRequest(http.MethodPost, "/applications", bytes.NewReader(body))
	req = withAuthedUser(req, "owner1")
	rr := httptest.NewRecorder()

	h.LoadApplication(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("got status %d, want %d, body=%s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if mock.apps["app1"].Owner != "owner1" {
		t.Errorf("expected owner1 as application owner, got %q", mock.apps["app1"].Owner)
	}
}

func TestLoadApplication_RefusedByStore(t *testing.T) {
	mock := newMockStore()
	mock.addApplicationOK = false
	h := New(mock, nil, nil)

	body, _ := json.Marshal(api.LoadApplicationRequest{Appid: "app1"})
	req := httptest.NewRequest(http.MethodPost, "/applications", bytes.NewReader(body))
	req = withAuthedUser(req, "owner1")
	rr := httptest.NewRecorder()

	h.LoadApplication(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestDeleteApplication_Conflict(t *testing.T) {
	mock := newMockStore()
	mock.deleteApplicationErr = &store.InvariantViolation{Detail: "application has active jobs"}
	h := New(mock, nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/applications/app1", nil)
	req.SetPathValue("appid", "app1")
	rr := httptest.NewRecorder()

	h.DeleteApplication(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusConflict)
	}
}
