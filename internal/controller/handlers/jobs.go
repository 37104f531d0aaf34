package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"retz/internal/controller/middleware"
	"retz/internal/store"
	"retz/pkg/api"
)

// ScheduleJob handles POST /jobs: validates the named Application
// exists and enqueues the Job in QUEUED state.
func (h *Handlers) ScheduleJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ScheduleJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Appid == "" || req.Cmd == "" {
		h.httpError(w, "appid and cmd are required", http.StatusBadRequest)
		return
	}

	// Job ids are allocated outside SafeAddJob's transaction, mirroring
	// the original scheduler's single-writer id counter. Two concurrent
	// requests, even on a single controller instance, can read the same
	// latest id; the second insert then fails on the jobs primary key.
	latest, err := h.store.GetLatestJobID(ctx)
	if err != nil {
		h.httpError(w, "failed to allocate job id", http.StatusInternalServerError)
		return
	}

	j := store.Job{
		ID:       latest + 1,
		Appid:    req.Appid,
		Cmd:      req.Cmd,
		Priority: req.Priority,
		Tags:     req.Tags,
		State:    store.JobQueued,
		Resources: store.Resources{
			Cpu:   req.Cpu,
			MemMB: req.MemMB,
		},
	}

	if err := h.store.SafeAddJob(ctx, j); err != nil {
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.respondJson(w, http.StatusCreated, api.ScheduleJobResponse{ID: j.ID})
}

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.httpError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	j, err := h.store.GetJob(ctx, id)
	if err != nil {
		h.httpError(w, "failed to look up job", http.StatusInternalServerError)
		return
	}
	if j == nil {
		h.httpError(w, "job not found", http.StatusNotFound)
		return
	}

	h.respondJson(w, http.StatusOK, toJobResponse(*j))
}

// ListJobs handles GET /jobs, scoped to the authenticated caller and
// filtered by the required "state" query parameter.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	u := middleware.UserFromContext(ctx)
	if u == nil {
		h.httpError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	state := store.JobState(q.Get("state"))
	if state == "" {
		h.httpError(w, "state query parameter is required", http.StatusBadRequest)
		return
	}

	limit := 100
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var tag *string
	if t := q.Get("tag"); t != "" {
		tag = &t
	}

	jobs, err := h.store.ListJobs(ctx, u.KeyID, state, tag, limit)
	if err != nil {
		h.httpError(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}

	resp := make([]api.JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}
	h.respondJson(w, http.StatusOK, api.ListJobsResponse{Jobs: resp})
}

// KillJob handles POST /jobs/{id}/kill.
func (h *Handlers) KillJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.httpError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	if h.killer == nil {
		h.httpError(w, "kill not available", http.StatusServiceUnavailable)
		return
	}

	if err := h.killer.RequestKill(ctx, id); err != nil {
		if _, ok := err.(*store.JobNotFound); ok {
			h.httpError(w, "job not found", http.StatusNotFound)
			return
		}
		if _, ok := err.(*store.IllegalTransition); ok {
			h.httpError(w, "job cannot be killed from its current state", http.StatusConflict)
			return
		}
		h.httpError(w, "failed to kill job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.KillJobResponse{ID: id, Killing: true})
}

func toJobResponse(j store.Job) api.JobResponse {
	return api.JobResponse{
		ID:        j.ID,
		Appid:     j.Appid,
		Cmd:       j.Cmd,
		State:     string(j.State),
		Priority:  j.Priority,
		Cpu:       j.Resources.Cpu,
		MemMB:     j.Resources.MemMB,
		Retry:     j.Retry,
		TaskID:    j.TaskID,
		URL:       j.URL,
		StartedAt: j.StartedAt,
		Finished:  j.Finished,
	}
}
