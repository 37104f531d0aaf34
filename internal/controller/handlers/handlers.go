// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"retz/internal/status"
	"retz/internal/store"
	"retz/pkg/api"
)

// JobKiller lets the controller ask the dispatcher to kill a running
// task without depending on the dispatcher package directly.
type JobKiller interface {
	RequestKill(ctx context.Context, jobID int64) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store    store.Store
	killer   JobKiller
	reporter *status.Reporter
}

// New creates a new Handlers instance with the given dependencies.
func New(s store.Store, killer JobKiller, reporter *status.Reporter) *Handlers {
	return &Handlers{store: s, killer: killer, reporter: reporter}
}

// respondJson writes a standard JSON response.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// httpError writes a consistent error response.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
