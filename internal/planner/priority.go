package planner

import (
	"context"

	"retz/internal/store"
)

// Priority orders QUEUED jobs by priority ascending (lower value runs
// first), breaking ties by id. Mirrors PriorityPlanner's
// "ORDER BY priority ASC, id ASC".
type Priority struct{}

func (Priority) OrderBy() []string { return []string{"priority", "id"} }

func (p Priority) Plan(ctx context.Context, jobs store.JobStore, offers []Offer) (Plan, error) {
	return planWithOrder(ctx, jobs, offers, p.OrderBy())
}
