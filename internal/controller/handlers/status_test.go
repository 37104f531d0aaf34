package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"retz/internal/status"
	"retz/pkg/api"
)

func TestStatus_Success(t *testing.T) {
	mock := newMockStore()
	mock.countQueued = 3
	mock.countRunning = 2
	h := New(mock, nil, status.New(mock, "test-version"))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()

	h.Status(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp api.StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.QueueLength != 3 || resp.RunningLength != 2 {
		t.Errorf("got %+v, want queueLength=3 runningLength=2", resp)
	}
	if resp.Version != "test-version" {
		t.Errorf("got version %q, want test-version", resp.Version)
	}
}

func TestStatus_NotConfigured(t *testing.T) {
	mock := newMockStore()
	h := New(mock, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()

	h.Status(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
