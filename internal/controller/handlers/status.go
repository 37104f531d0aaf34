package handlers

import (
	"net/http"

	"retz/pkg/api"
)

// Status handles GET /status, a public unauthenticated snapshot of the
// scheduler's load.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.reporter == nil {
		h.httpError(w, "status not available", http.StatusServiceUnavailable)
		return
	}

	resp, err := h.reporter.Report(ctx)
	if err != nil {
		h.httpError(w, "failed to compute status", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.StatusResponse{
		QueueLength:   resp.QueueLength,
		RunningLength: resp.RunningLength,
		TotalUsed:     resp.TotalUsed,
		NumSlaves:     resp.NumSlaves,
		Offers:        resp.Offers,
		TotalOffered:  resp.TotalOffered,
		Version:       resp.Version,
	})
}
