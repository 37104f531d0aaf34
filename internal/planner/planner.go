// Package planner turns a set of resource offers and the set of
// QUEUED jobs into a launch plan. A Planner is a pure strategy: given
// offers and a store.JobStore to query, it decides which jobs to
// launch against which offers. It never mutates Store state; the
// Dispatcher applies the Plan transactionally.
package planner

import (
	"context"

	"retz/internal/store"
)

// Offer is the subset of a broker-advertised resource offer the
// Planner needs to bin-pack jobs against.
type Offer struct {
	ID        string
	AgentID   string
	Resources store.Resources
}

// Launch pairs a Job with the Offer it was packed into.
type Launch struct {
	Job   store.Job
	Offer Offer
}

// Plan is the result of one planning pass: Launches to carry out and
// Unused offers the Dispatcher should decline or cancel.
type Plan struct {
	Launches []Launch
	Unused   []Offer
}

// Planner packs QUEUED jobs into Offers.
type Planner interface {
	// Plan queries jobs (via the Store) and greedily fits them into
	// offers: a single Store.FindFit call under this Planner's
	// ordering, sized to the combined capacity of all offers, then
	// first-fit bin-packed across the individual offers.
	Plan(ctx context.Context, jobs store.JobStore, offers []Offer) (Plan, error)

	// OrderBy is the SQL column ordering this Planner requests from
	// Store.FindFit.
	OrderBy() []string
}

// planWithOrder is shared by every Planner implementation: it takes a
// single FindFit(orderBy, ...) snapshot against the aggregate of all
// offer capacity, then first-fits the resulting prefix into individual
// offers. A single FindFit call is what makes the result a genuine
// prefix of the queued order; calling FindFit once per offer would
// hand every offer the same unconsumed prefix and double-launch jobs
// across them.
func planWithOrder(ctx context.Context, jobs store.JobStore, offers []Offer, orderBy []string) (Plan, error) {
	var plan Plan
	if len(offers) == 0 {
		return plan, nil
	}

	totalCpu, totalMem := 0, 0
	for _, o := range offers {
		totalCpu += o.Resources.Cpu
		totalMem += o.Resources.MemMB
	}

	fit, err := jobs.FindFit(ctx, orderBy, totalCpu, totalMem)
	if err != nil {
		return Plan{}, err
	}

	remaining := make([]store.Resources, len(offers))
	for i, o := range offers {
		remaining[i] = o.Resources
	}
	used := make([]bool, len(offers))

	for _, j := range fit {
		for i := range offers {
			if j.Resources.Cpu <= remaining[i].Cpu && j.Resources.MemMB <= remaining[i].MemMB {
				plan.Launches = append(plan.Launches, Launch{Job: j, Offer: offers[i]})
				remaining[i].Cpu -= j.Resources.Cpu
				remaining[i].MemMB -= j.Resources.MemMB
				used[i] = true
				break
			}
		}
	}

	for i, o := range offers {
		if !used[i] {
			plan.Unused = append(plan.Unused, o)
		}
	}
	return plan, nil
}
