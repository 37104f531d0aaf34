// Package dispatcher drives a broker.ResourceBroker against the Store
// and a planner.Planner: it turns broker offers into launched Jobs and
// broker status updates into Job state transitions. It owns no
// in-memory authoritative state; every decision is re-derived from
// the Store on each event, so correctness comes from the Store's
// SERIALIZABLE transactions rather than in-process locks (§5).
package dispatcher

import (
	"context"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"retz/internal/broker"
	job "retz/internal/job"
	"retz/internal/planner"
	"retz/internal/store"
)

var tracer = otel.Tracer("retz/dispatcher")

// offerObserver receives the most recent offer snapshot on every
// onOffers call, for the status reporter.
type offerObserver interface {
	ObserveOffers(offers []planner.Offer, agentIDs []string)
}

// Dispatcher wires a ResourceBroker, a Planner, and a Store together.
type Dispatcher struct {
	broker   broker.ResourceBroker
	planner  planner.Planner
	store    store.Store
	log      *slog.Logger
	reporter offerObserver
}

// New builds a Dispatcher. log may be nil, in which case slog.Default
// is used.
func New(b broker.ResourceBroker, p planner.Planner, s store.Store, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{broker: b, planner: p, store: s, log: log}
}

// WithReporter attaches a status reporter that observes every offer
// batch. Returns the Dispatcher for chaining at construction time.
func (d *Dispatcher) WithReporter(r offerObserver) *Dispatcher {
	d.reporter = r
	return d
}

// Run consumes offers and status updates from the broker until ctx is
// cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	offers, err := d.broker.Offers(ctx)
	if err != nil {
		return err
	}
	updates := d.broker.StatusUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case o, ok := <-offers:
			if !ok {
				offers = nil
				continue
			}
			offer := planner.Offer{ID: o.ID, AgentID: o.AgentID, Resources: o.Resources}
			if err := d.onOffers(ctx, []planner.Offer{offer}); err != nil {
				d.log.Error("onOffers failed", "error", err)
			}
		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			d.onStatusUpdate(ctx, u)
		}
	}
}

// onOffers implements spec §4.D step 1-5: snapshot the queued view via
// the Planner (itself built on Store.FindFit), mark planned Jobs
// STARTING in one transaction, submit launches to the broker, and
// compensate by reverting to QUEUED any Job the broker rejects.
func (d *Dispatcher) onOffers(ctx context.Context, offers []planner.Offer) error {
	ctx, span := tracer.Start(ctx, "dispatcher.onOffers", trace.WithAttributes(attribute.Int("offers.count", len(offers))))
	defer span.End()

	plan, err := d.planner.Plan(ctx, d.store, offers)
	if err != nil {
		return err
	}

	if d.reporter != nil {
		agentIDs := make([]string, 0, len(offers))
		for _, o := range offers {
			agentIDs = append(agentIDs, o.AgentID)
		}
		d.reporter.ObserveOffers(offers, agentIDs)
	}

	taskIDs := make(map[int64]string, len(plan.Launches))
	launched := make([]store.Job, 0, len(plan.Launches))
	for _, l := range plan.Launches {
		taskID := newTaskID(l.Job.ID)
		taskIDs[l.Job.ID] = taskID

		mutated, ok := job.Starting(taskID, nil)(l.Job)
		if !ok {
			d.log.Warn("planner selected a job not in QUEUED state, dropping", "job_id", l.Job.ID, "state", l.Job.State)
			continue
		}
		launched = append(launched, mutated)
	}

	if len(launched) > 0 {
		if err := d.store.UpdateJobs(ctx, launched); err != nil {
			return err
		}
	}

	for _, l := range plan.Launches {
		taskID, ok := taskIDs[l.Job.ID]
		if !ok {
			continue
		}
		cmd := broker.CommandSpec{Cmd: l.Job.Cmd}
		offerIn := broker.Offer{ID: l.Offer.ID, AgentID: l.Offer.AgentID, Resources: l.Offer.Resources}
		if err := d.broker.Launch(ctx, taskID, cmd, offerIn); err != nil {
			d.log.Warn("broker rejected launch, reverting job to QUEUED", "job_id", l.Job.ID, "task_id", taskID, "error", err)
			if revertErr := d.store.UpdateJob(ctx, l.Job.ID, job.Apply(func(j store.Job) (store.Job, bool) {
				if j.State != store.JobStarting {
					return store.Job{}, false
				}
				j.State = store.JobQueued
				j.TaskID = nil
				j.StartedAt = nil
				return j, true
			})); revertErr != nil {
				d.log.Error("failed to revert rejected launch", "job_id", l.Job.ID, "error", revertErr)
			}
		}
	}

	return nil
}

// onStatusUpdate implements spec §4.D's onStatusUpdate(taskId,
// status): resolve the Job by taskId, drop updates for unknown tasks,
// and apply the matching transition. Updates the state machine
// rejects (e.g. a late STARTED for a FINISHED Job) are logged and
// dropped, leaving the Job unchanged.
func (d *Dispatcher) onStatusUpdate(ctx context.Context, u broker.StatusUpdate) {
	ctx, span := tracer.Start(ctx, "dispatcher.onStatusUpdate", trace.WithAttributes(
		attribute.String("task_id", u.TaskID), attribute.String("state", string(u.State))))
	defer span.End()

	j, err := d.store.GetJobFromTaskID(ctx, u.TaskID)
	if err != nil {
		d.log.Error("onStatusUpdate: GetJobFromTaskID failed", "task_id", u.TaskID, "error", err)
		return
	}
	if j == nil {
		d.log.Info("onStatusUpdate: no job for task, dropping stale update", "task_id", u.TaskID)
		return
	}

	t := transitionFor(u.State)
	if t == nil {
		d.log.Warn("onStatusUpdate: unmapped broker state", "task_id", u.TaskID, "state", u.State)
		return
	}

	rejected := false
	if err := d.store.UpdateJob(ctx, j.ID, func(cur store.Job) (*store.Job, bool) {
		next, ok := t(cur)
		if !ok {
			rejected = true
			return nil, false
		}
		return &next, true
	}); err != nil {
		d.log.Error("onStatusUpdate: UpdateJob failed", "job_id", j.ID, "error", err)
		return
	}
	if rejected {
		d.log.Info("onStatusUpdate: transition rejected by state machine, dropping update", "job_id", j.ID, "task_id", u.TaskID, "state", u.State)
	}
}

func transitionFor(state broker.UpdateState) job.Transition {
	switch state {
	case broker.UpdateStarted:
		return job.Started()
	case broker.UpdateFinished:
		return job.Finished()
	case broker.UpdateKilled, broker.UpdateLost, broker.UpdateFailed:
		return job.Killed()
	default:
		return nil
	}
}

// OnDisconnected implements spec §4.D: no state mutation, rely on
// reregistration.
func (d *Dispatcher) OnDisconnected() {
	d.log.Warn("broker disconnected")
}

// OnReregistered implements spec §4.D: persist frameworkID, fatal on
// mismatch against any previously persisted id.
func (d *Dispatcher) OnReregistered(ctx context.Context, frameworkID string) error {
	existing, err := d.store.GetFrameworkID(ctx)
	if err != nil {
		return err
	}
	if existing != nil && *existing != frameworkID {
		return &store.InvariantViolation{Detail: "frameworkId mismatch on reregistration: have " + *existing + ", broker reports " + frameworkID}
	}
	_, err = d.store.SetFrameworkID(ctx, frameworkID)
	return err
}

func newTaskID(jobID int64) string {
	return "retz-task-" + strconv.FormatInt(jobID, 10)
}

// RequestKill applies a client-origin Killed transition to the Job and,
// if it had already been launched, asks the broker to kill its task.
// Unlike broker-origin transitions, an illegal request here is
// surfaced to the caller rather than dropped.
func (d *Dispatcher) RequestKill(ctx context.Context, jobID int64) error {
	var taskID *string
	var illegalFrom store.JobState
	legal := true
	err := d.store.UpdateJob(ctx, jobID, func(j store.Job) (*store.Job, bool) {
		if !job.IsLegal(j.State, store.JobKilled) {
			legal = false
			illegalFrom = j.State
			return nil, false
		}
		taskID = j.TaskID
		next, ok := job.Killed()(j)
		if !ok {
			return nil, false
		}
		return &next, true
	})
	if err != nil {
		return err
	}
	if !legal {
		return &store.IllegalTransition{From: illegalFrom, To: store.JobKilled}
	}

	if taskID != nil {
		if err := d.broker.Kill(ctx, *taskID); err != nil {
			d.log.Warn("broker.Kill failed after marking job killed", "job_id", jobID, "task_id", *taskID, "error", err)
		}
	}
	return nil
}
