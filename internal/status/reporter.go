// Package status computes the scheduler's on-demand status snapshot:
// queue/running counts from the Store plus a cached view of the last
// offers the Dispatcher observed. It must never block longer than a
// single count query; staleness of the offer snapshot is acceptable.
package status

import (
	"context"
	"sync"

	"retz/internal/planner"
	"retz/internal/store"
)

// Response mirrors StatusResponse's field set.
type Response struct {
	QueueLength   int     `json:"queueLength"`
	RunningLength int     `json:"runningLength"`
	TotalUsed     int     `json:"totalUsed"`
	NumSlaves     int     `json:"numSlaves"`
	Offers        int     `json:"offers"`
	TotalOffered  int     `json:"totalOffered"`
	Version       string  `json:"version"`
}

// Reporter computes Response values on demand.
type Reporter struct {
	jobs    store.JobStore
	version string

	mu           sync.Mutex
	lastOffers   []planner.Offer
	lastAgentIDs map[string]struct{}
}

// New builds a Reporter for the given JobStore, stamping every
// Response with version.
func New(jobs store.JobStore, version string) *Reporter {
	return &Reporter{jobs: jobs, version: version, lastAgentIDs: make(map[string]struct{})}
}

// ObserveOffers records the most recent offer snapshot; called by the
// Dispatcher on every onOffers.
func (r *Reporter) ObserveOffers(offers []planner.Offer, agentIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastOffers = offers
	r.lastAgentIDs = make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		r.lastAgentIDs[id] = struct{}{}
	}
}

// Report computes a fresh Response: live counts from the Store, plus
// the cached offer snapshot.
func (r *Reporter) Report(ctx context.Context) (Response, error) {
	queued, err := r.jobs.CountQueued(ctx)
	if err != nil {
		return Response{}, err
	}
	running, err := r.jobs.CountRunning(ctx)
	if err != nil {
		return Response{}, err
	}

	r.mu.Lock()
	totalOffered := 0
	for _, o := range r.lastOffers {
		totalOffered += o.Resources.Cpu
	}
	offerCount := len(r.lastOffers)
	numSlaves := len(r.lastAgentIDs)
	r.mu.Unlock()

	return Response{
		QueueLength:   queued,
		RunningLength: running,
		TotalUsed:     running,
		NumSlaves:     numSlaves,
		Offers:        offerCount,
		TotalOffered:  totalOffered,
		Version:       r.version,
	}, nil
}
