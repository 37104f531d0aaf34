package handlers

import (
	"encoding/json"
	"net/http"

	"retz/pkg/api"
)

// CreateUser handles POST /users (admin-only, gated by
// middleware.RequireInternalAuth). It provisions a new keyId/secret
// pair and returns the secret exactly once.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Info string `json:"info"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	u, err := h.store.CreateUser(ctx, req.Info)
	if err != nil {
		h.httpError(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, api.CreateUserResponse{KeyID: u.KeyID, Secret: u.Secret})
}

// GetUser handles GET /users/{keyId}.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID := r.PathValue("keyId")

	u, err := h.store.GetUser(ctx, keyID)
	if err != nil {
		h.httpError(w, "failed to look up user", http.StatusInternalServerError)
		return
	}
	if u == nil {
		h.httpError(w, "user not found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, map[string]interface{}{
		"key_id":  u.KeyID,
		"enabled": u.Enabled,
		"info":    u.Info,
	})
}

// EnableUser handles PUT /users/{keyId}/enable (admin-only).
func (h *Handlers) EnableUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keyID := r.PathValue("keyId")

	var req api.EnableUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.EnableUser(ctx, keyID, req.Enabled); err != nil {
		h.httpError(w, "failed to update user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
