package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"retz/internal/controller/middleware"
	"retz/internal/store"
	"retz/pkg/api"
)

// LoadApplication handles POST /applications. The owner is always the
// authenticated caller; a request naming a different owner is
// rejected.
func (h *Handlers) LoadApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoadApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Appid == "" {
		h.httpError(w, "appid is required", http.StatusBadRequest)
		return
	}

	u := middleware.UserFromContext(ctx)
	if u == nil {
		h.httpError(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if req.Owner != "" && req.Owner != u.KeyID {
		h.httpError(w, "owner must be the authenticated caller", http.StatusForbidden)
		return
	}

	def := map[string]interface{}{}
	if len(req.Files) > 0 {
		def["files"] = req.Files
	}
	if len(req.PersistentFiles) > 0 {
		def["persistentFiles"] = req.PersistentFiles
	}
	if len(req.LargeFiles) > 0 {
		def["largeFiles"] = req.LargeFiles
	}
	if len(req.Env) > 0 {
		def["env"] = req.Env
	}

	app := store.Application{Appid: req.Appid, Owner: u.KeyID, Definition: def}

	ok, err := h.store.AddApplication(ctx, app)
	if err != nil {
		h.httpError(w, "failed to load application", http.StatusInternalServerError)
		return
	}
	if !ok {
		h.httpError(w, "owner is disabled or unknown", http.StatusForbidden)
		return
	}

	h.respondJson(w, http.StatusCreated, api.ApplicationResponse{Appid: app.Appid, Owner: app.Owner, Files: req.Files, Env: req.Env})
}

// ListApplications handles GET /applications, scoped to the
// authenticated caller.
func (h *Handlers) ListApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u := middleware.UserFromContext(ctx)
	if u == nil {
		h.httpError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	apps, err := h.store.GetAllApplications(ctx, u.KeyID)
	if err != nil {
		h.httpError(w, "failed to list applications", http.StatusInternalServerError)
		return
	}

	resp := make([]api.ApplicationResponse, 0, len(apps))
	for _, a := range apps {
		resp = append(resp, api.ApplicationResponse{Appid: a.Appid, Owner: a.Owner})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetApplication handles GET /applications/{appid}.
func (h *Handlers) GetApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appid := r.PathValue("appid")

	app, err := h.store.GetApplication(ctx, appid)
	if err != nil {
		h.httpError(w, "failed to look up application", http.StatusInternalServerError)
		return
	}
	if app == nil {
		h.httpError(w, "application not found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, api.ApplicationResponse{Appid: app.Appid, Owner: app.Owner})
}

// DeleteApplication handles DELETE /applications/{appid}. Refused by
// the Store if the application has any non-terminal Job.
func (h *Handlers) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appid := r.PathValue("appid")

	if err := h.store.DeleteApplication(ctx, appid); err != nil {
		var inUse *store.InvariantViolation
		if errors.As(err, &inUse) {
			h.httpError(w, err.Error(), http.StatusConflict)
			return
		}
		h.httpError(w, "failed to delete application", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
