// Package dockerbroker implements broker.ResourceBroker by running
// each task as a Docker container, grounded on the same Docker SDK
// usage pattern as a plain container-exec runtime: inspect-then-pull,
// ContainerCreate/Start, ContainerWait for completion.
package dockerbroker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"retz/internal/broker"
	"retz/internal/store"
)

// Config controls the image every launched task runs and the
// synthetic capacity this Broker advertises.
type Config struct {
	Image         string
	Slots         int
	SlotResources store.Resources
}

// Broker runs tasks as Docker containers.
type Broker struct {
	cli     *client.Client
	cfg     Config
	offers  chan broker.Offer
	updates chan broker.StatusUpdate

	mu         sync.Mutex
	containers map[string]string // taskID -> container id
}

// New dials the Docker daemon via the standard environment
// (DOCKER_HOST etc.) and advertises cfg.Slots offers.
func New(cfg Config) (*Broker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dockerbroker: failed to create client: %w", err)
	}
	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}

	b := &Broker{
		cli:        cli,
		cfg:        cfg,
		offers:     make(chan broker.Offer, cfg.Slots),
		updates:    make(chan broker.StatusUpdate, cfg.Slots),
		containers: make(map[string]string),
	}
	for i := 0; i < cfg.Slots; i++ {
		b.offers <- broker.Offer{
			ID:        fmt.Sprintf("docker-slot-%d", i),
			AgentID:   "docker",
			Resources: cfg.SlotResources,
		}
	}
	return b, nil
}

func (b *Broker) Offers(ctx context.Context) (<-chan broker.Offer, error) {
	return b.offers, nil
}

func (b *Broker) StatusUpdates() <-chan broker.StatusUpdate {
	return b.updates
}

func envList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, k+"="+v)
	}
	return env
}

// Launch starts cmd.Cmd inside a container of cfg.Image, pulling the
// image first if it is not present locally.
func (b *Broker) Launch(ctx context.Context, taskID string, cmd broker.CommandSpec, offer broker.Offer) error {
	if _, err := b.cli.ImageInspect(ctx, b.cfg.Image); err != nil {
		reader, err := b.cli.ImagePull(ctx, b.cfg.Image, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("dockerbroker: failed to pull image %s: %w", b.cfg.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	containerConfig := &container.Config{
		Image: b.cfg.Image,
		Cmd:   []string{"sh", "-c", cmd.Cmd},
		Env:   envList(cmd.Env),
	}
	created, err := b.cli.ContainerCreate(ctx, containerConfig, nil, nil, nil, "")
	if err != nil {
		return fmt.Errorf("dockerbroker: failed to create container for task %s: %w", taskID, err)
	}
	if err := b.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("dockerbroker: failed to start container for task %s: %w", taskID, err)
	}

	b.mu.Lock()
	b.containers[taskID] = created.ID
	b.mu.Unlock()

	go b.wait(taskID, created.ID, offer)
	return nil
}

func (b *Broker) wait(taskID, containerID string, offer broker.Offer) {
	ctx := context.Background()
	statusCh, errCh := b.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	var update broker.StatusUpdate
	select {
	case err := <-errCh:
		code := -1
		update = broker.StatusUpdate{TaskID: taskID, State: broker.UpdateFailed, ExitCode: &code}
		_ = err
	case status := <-statusCh:
		code := int(status.StatusCode)
		if status.Error != nil {
			update = broker.StatusUpdate{TaskID: taskID, State: broker.UpdateFailed, ExitCode: &code}
		} else if code == 0 {
			update = broker.StatusUpdate{TaskID: taskID, State: broker.UpdateFinished, ExitCode: &code}
		} else {
			update = broker.StatusUpdate{TaskID: taskID, State: broker.UpdateFailed, ExitCode: &code}
		}
	}

	b.mu.Lock()
	delete(b.containers, taskID)
	b.mu.Unlock()

	b.updates <- update
	b.offers <- offer
}

func (b *Broker) Kill(ctx context.Context, taskID string) error {
	b.mu.Lock()
	id, ok := b.containers[taskID]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	timeout := 5
	return b.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
}

func (b *Broker) Reconcile(ctx context.Context, taskIDs []string) error {
	b.mu.Lock()
	known := make(map[string]bool, len(b.containers))
	for id := range b.containers {
		known[id] = true
	}
	b.mu.Unlock()

	for _, id := range taskIDs {
		if !known[id] {
			b.updates <- broker.StatusUpdate{TaskID: id, State: broker.UpdateLost}
		}
	}
	return nil
}
