// Package execbroker implements broker.ResourceBroker by running each
// task as a local subprocess via os/exec. It is meant for development
// and single-node deployments; capacity is a fixed number of
// identically-sized slots advertised once at startup.
package execbroker

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"retz/internal/broker"
	"retz/internal/store"
)

// Config controls the synthetic offers this Broker advertises.
type Config struct {
	Slots         int
	SlotResources store.Resources

	// WorkDir is the working directory each subprocess is started in.
	// Empty means inherit the controller process's own working
	// directory.
	WorkDir string
}

// Broker runs tasks as local subprocesses.
type Broker struct {
	cfg     Config
	offers  chan broker.Offer
	updates chan broker.StatusUpdate

	mu    sync.Mutex
	procs map[string]*exec.Cmd
}

// New creates a Broker and immediately advertises cfg.Slots offers.
func New(cfg Config) *Broker {
	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}
	b := &Broker{
		cfg:     cfg,
		offers:  make(chan broker.Offer, cfg.Slots),
		updates: make(chan broker.StatusUpdate, cfg.Slots),
		procs:   make(map[string]*exec.Cmd),
	}
	for i := 0; i < cfg.Slots; i++ {
		b.offers <- broker.Offer{
			ID:        fmt.Sprintf("exec-slot-%d", i),
			AgentID:   "local",
			Resources: cfg.SlotResources,
		}
	}
	return b
}

func (b *Broker) Offers(ctx context.Context) (<-chan broker.Offer, error) {
	return b.offers, nil
}

func (b *Broker) StatusUpdates() <-chan broker.StatusUpdate {
	return b.updates
}

// Launch runs cmd.Cmd via the shell and reports FINISHED or FAILED on
// the updates channel once it exits, reclaiming the slot via a fresh
// offer so the pool stays at cfg.Slots capacity.
func (b *Broker) Launch(ctx context.Context, taskID string, cmd broker.CommandSpec, offer broker.Offer) error {
	c := exec.CommandContext(ctx, "sh", "-c", cmd.Cmd)
	c.Dir = b.cfg.WorkDir
	for k, v := range cmd.Env {
		c.Env = append(c.Env, k+"="+v)
	}

	b.mu.Lock()
	b.procs[taskID] = c
	b.mu.Unlock()

	if err := c.Start(); err != nil {
		return fmt.Errorf("execbroker: failed to start task %s: %w", taskID, err)
	}

	go b.wait(taskID, c, offer)
	return nil
}

func (b *Broker) wait(taskID string, c *exec.Cmd, offer broker.Offer) {
	err := c.Wait()

	b.mu.Lock()
	delete(b.procs, taskID)
	b.mu.Unlock()

	state := broker.UpdateFinished
	var exitCode *int
	if err != nil {
		state = broker.UpdateFailed
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		exitCode = &code
	} else {
		code := 0
		exitCode = &code
	}

	b.updates <- broker.StatusUpdate{TaskID: taskID, State: state, ExitCode: exitCode}
	b.offers <- offer
}

func (b *Broker) Kill(ctx context.Context, taskID string) error {
	b.mu.Lock()
	c, ok := b.procs[taskID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	if c.Process == nil {
		return nil
	}
	return c.Process.Kill()
}

func (b *Broker) Reconcile(ctx context.Context, taskIDs []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range taskIDs {
		if _, live := b.procs[id]; !live {
			b.updates <- broker.StatusUpdate{TaskID: id, State: broker.UpdateLost}
		}
	}
	return nil
}
