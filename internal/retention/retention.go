// Package retention drives periodic purging of terminal Jobs. The GC
// itself is a single Store call (DeleteOldJobs) run in its own
// transaction; Runner only supplies the ticking cadence, in the same
// ticker-driven background-loop shape used elsewhere in this service.
package retention

import (
	"context"
	"log/slog"
	"time"

	"retz/internal/store"
)

// Runner periodically purges terminal Jobs older than Leeway.
type Runner struct {
	jobs     store.JobStore
	interval time.Duration
	leeway   int64
	log      *slog.Logger
}

// New builds a Runner that calls DeleteOldJobs(leewaySeconds) every
// interval.
func New(jobs store.JobStore, interval time.Duration, leewaySeconds int64, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{jobs: jobs, interval: interval, leeway: leewaySeconds, log: log}
}

// Run blocks, purging on every tick, until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.jobs.DeleteOldJobs(ctx, r.leeway)
			if err != nil {
				r.log.Error("retention GC failed", "error", err)
				continue
			}
			if n > 0 {
				r.log.Info("retention GC purged terminal jobs", "count", n)
			}
		}
	}
}
