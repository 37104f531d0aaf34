// Package job implements the lifecycle transition graph of a Job:
//
//	QUEUED --> STARTING --> STARTED --> FINISHED
//	   |           |            |
//	   |           +--> KILLED <+
//	   +----------------------> KILLED
//
// Each transition is a typed function over a store.Job value rather
// than a closure, so a caller can apply it through
// store.JobStore.UpdateJob's callback without smuggling a database
// connection across the transaction boundary.
package job

import (
	"time"

	"retz/internal/store"
)

// Transition mutates a copy of j and reports whether the move is
// legal. An illegal transition leaves the returned Job equal to the
// zero value and ok=false; the caller must not persist it.
type Transition func(j store.Job) (next store.Job, ok bool)

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Starting moves a QUEUED Job to STARTING, recording the taskId the
// broker assigned and, once known, the URL to reach the running task.
func Starting(taskID string, url *string) Transition {
	return func(j store.Job) (store.Job, bool) {
		if j.State != store.JobQueued {
			return store.Job{}, false
		}
		j.State = store.JobStarting
		j.TaskID = &taskID
		j.URL = url
		started := nowISO()
		j.StartedAt = &started
		return j, true
	}
}

// Started moves a STARTING Job to STARTED.
func Started() Transition {
	return func(j store.Job) (store.Job, bool) {
		if j.State != store.JobStarting {
			return store.Job{}, false
		}
		j.State = store.JobStarted
		return j, true
	}
}

// Finished moves a STARTING or STARTED Job to the terminal FINISHED
// state, stamping Finished with the completion time.
func Finished() Transition {
	return func(j store.Job) (store.Job, bool) {
		if j.State != store.JobStarting && j.State != store.JobStarted {
			return store.Job{}, false
		}
		j.State = store.JobFinished
		finished := nowISO()
		j.Finished = &finished
		return j, true
	}
}

// Killed moves any non-terminal Job (QUEUED, STARTING, STARTED) to
// the terminal KILLED state. Reachable from any state but FINISHED or
// an already-KILLED Job.
func Killed() Transition {
	return func(j store.Job) (store.Job, bool) {
		switch j.State {
		case store.JobQueued, store.JobStarting, store.JobStarted:
			j.State = store.JobKilled
			finished := nowISO()
			j.Finished = &finished
			return j, true
		default:
			return store.Job{}, false
		}
	}
}

// Retry moves a terminal Job (FINISHED or KILLED) back to QUEUED,
// clearing the fields a fresh run must reassign and incrementing the
// retry counter.
func Retry() Transition {
	return func(j store.Job) (store.Job, bool) {
		if j.State != store.JobFinished && j.State != store.JobKilled {
			return store.Job{}, false
		}
		j.State = store.JobQueued
		j.TaskID = nil
		j.URL = nil
		j.Finished = nil
		j.StartedAt = nil
		j.Retry++
		return j, true
	}
}

// Apply adapts a Transition into the mutator shape store.JobStore.UpdateJob
// expects.
func Apply(t Transition) func(store.Job) (*store.Job, bool) {
	return func(j store.Job) (*store.Job, bool) {
		next, ok := t(j)
		if !ok {
			return nil, false
		}
		return &next, true
	}
}

// IsLegal reports whether moving from `from` to `to` is a legal edge
// of the lifecycle graph, without needing a concrete Job value. Used
// by Dispatcher.RequestKill, inside its UpdateJob callback, to tell an
// illegal client-origin kill apart so it can return
// store.IllegalTransition.
func IsLegal(from, to store.JobState) bool {
	switch from {
	case store.JobQueued:
		return to == store.JobStarting || to == store.JobKilled
	case store.JobStarting:
		return to == store.JobStarted || to == store.JobKilled
	case store.JobStarted:
		return to == store.JobFinished || to == store.JobKilled
	case store.JobFinished, store.JobKilled:
		return to == store.JobQueued
	default:
		return false
	}
}
