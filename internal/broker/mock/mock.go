// Package mock implements a synthetic broker.ResourceBroker for
// Dispatcher tests and local development: it never launches real
// work, it just records calls and lets the test drive fake status
// updates.
package mock

import (
	"context"
	"sync"

	"retz/internal/broker"
)

// Launched records one call to Launch.
type Launched struct {
	TaskID string
	Cmd    broker.CommandSpec
	Offer  broker.Offer
}

// Broker is a test double satisfying broker.ResourceBroker.
type Broker struct {
	mu        sync.Mutex
	launched  []Launched
	killed    []string
	offers    chan broker.Offer
	updates   chan broker.StatusUpdate
	rejectIDs map[string]bool
}

// New returns a Broker that will deliver offers on SendOffer and
// reject launches for any taskID in reject.
func New(reject ...string) *Broker {
	rejectIDs := make(map[string]bool, len(reject))
	for _, id := range reject {
		rejectIDs[id] = true
	}
	return &Broker{
		offers:    make(chan broker.Offer, 16),
		updates:   make(chan broker.StatusUpdate, 16),
		rejectIDs: rejectIDs,
	}
}

func (b *Broker) Offers(ctx context.Context) (<-chan broker.Offer, error) {
	return b.offers, nil
}

func (b *Broker) StatusUpdates() <-chan broker.StatusUpdate {
	return b.updates
}

// SendOffer injects a synthetic offer for the Dispatcher to consume.
func (b *Broker) SendOffer(o broker.Offer) {
	b.offers <- o
}

// SendStatusUpdate injects a synthetic status update.
func (b *Broker) SendStatusUpdate(u broker.StatusUpdate) {
	b.updates <- u
}

func (b *Broker) Launch(ctx context.Context, taskID string, cmd broker.CommandSpec, offer broker.Offer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejectIDs[taskID] {
		return &RejectedError{TaskID: taskID}
	}
	b.launched = append(b.launched, Launched{TaskID: taskID, Cmd: cmd, Offer: offer})
	return nil
}

func (b *Broker) Kill(ctx context.Context, taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killed = append(b.killed, taskID)
	return nil
}

func (b *Broker) Reconcile(ctx context.Context, taskIDs []string) error {
	return nil
}

// Launches returns a snapshot of every accepted Launch call.
func (b *Broker) Launches() []Launched {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Launched, len(b.launched))
	copy(out, b.launched)
	return out
}

// Killed returns a snapshot of every task id passed to Kill.
func (b *Broker) Killed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.killed))
	copy(out, b.killed)
	return out
}

// RejectedError is returned by Launch for a taskID configured to be
// rejected, simulating a broker-side launch failure.
type RejectedError struct {
	TaskID string
}

func (e *RejectedError) Error() string { return "broker rejected launch of task " + e.TaskID }
