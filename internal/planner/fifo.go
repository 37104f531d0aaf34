package planner

import (
	"context"

	"retz/internal/store"
)

// FIFO orders QUEUED jobs strictly by id, oldest first.
type FIFO struct{}

func (FIFO) OrderBy() []string { return []string{"id"} }

func (p FIFO) Plan(ctx context.Context, jobs store.JobStore, offers []Offer) (Plan, error) {
	return planWithOrder(ctx, jobs, offers, p.OrderBy())
}
