// Package broker defines ResourceBroker, the abstraction the
// Dispatcher drives to turn planned launches into running work and to
// learn about their fate. It mirrors the Mesos offer/launch/status
// protocol shape without committing to any specific cluster manager;
// concrete implementations live in sibling packages (mock, execbroker,
// dockerbroker, k8sbroker).
package broker

import (
	"context"

	"retz/internal/store"
)

// Offer is a chunk of resource capacity a ResourceBroker has made
// available for launching work.
type Offer struct {
	ID        string
	AgentID   string
	Resources store.Resources
}

// CommandSpec is everything a ResourceBroker needs to start a task.
type CommandSpec struct {
	Cmd string
	Env map[string]string
}

// UpdateState is the broker-reported lifecycle state of a launched
// task. It is a superset of store.JobState: LOST and FAILED are
// broker-only conditions, both of which the Dispatcher maps onto
// KILLED.
type UpdateState string

const (
	UpdateStarting UpdateState = "STARTING"
	UpdateStarted  UpdateState = "STARTED"
	UpdateFinished UpdateState = "FINISHED"
	UpdateLost     UpdateState = "LOST"
	UpdateFailed   UpdateState = "FAILED"
	UpdateKilled   UpdateState = "KILLED"
)

// StatusUpdate reports what happened to a previously launched task.
type StatusUpdate struct {
	TaskID   string
	State    UpdateState
	ExitCode *int
	URL      *string
}

// ResourceBroker is the interface the Dispatcher drives. Offers
// delivers a stream of available capacity; Launch/Kill act on a
// specific task; Reconcile asks the broker to re-report the state of
// tasks the scheduler still believes are live (the Dispatcher does not
// call it). Status updates arrive asynchronously on the channel
// returned by StatusUpdates.
type ResourceBroker interface {
	Offers(ctx context.Context) (<-chan Offer, error)
	Launch(ctx context.Context, taskID string, cmd CommandSpec, offer Offer) error
	Kill(ctx context.Context, taskID string) error
	Reconcile(ctx context.Context, taskIDs []string) error
	StatusUpdates() <-chan StatusUpdate
}
