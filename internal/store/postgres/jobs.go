package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"retz/internal/store"
)

// addJob inserts a Job row with its indexed columns kept in sync with
// the JSON blob (§6). Caller owns the transaction.
func addJob(ctx context.Context, q store.DBTransaction, j store.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO jobs(id, name, appid, cmd, priority, taskid, state, finished, json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		j.ID, j.Name, j.Appid, j.Cmd, j.Priority, j.TaskID, string(j.State), j.Finished, string(raw))
	return err
}

// SafeAddJob fails if the Job's Application does not exist.
func (s *Store) SafeAddJob(ctx context.Context, j store.Job) error {
	tx, err := s.db.BeginTx(ctx, serializableTxOpts)
	if err != nil {
		return store.WrapStoreError("SafeAddJob", err)
	}
	defer tx.Rollback()

	app, err := s.getApplication(ctx, tx, j.Appid)
	if err != nil {
		return err
	}
	if app == nil {
		return store.WrapStoreError("SafeAddJob", fmt.Errorf("no such application: %s", j.Appid))
	}
	if err := addJob(ctx, tx, j); err != nil {
		return store.WrapStoreError("SafeAddJob", err)
	}
	return store.WrapStoreError("SafeAddJob", tx.Commit())
}

func scanJobRow(raw string) (store.Job, error) {
	var j store.Job
	err := json.Unmarshal([]byte(raw), &j)
	return j, err
}

func (s *Store) GetJob(ctx context.Context, id int64) (*store.Job, error) {
	return s.getJob(ctx, s.db, id)
}

func (s *Store) getJob(ctx context.Context, q store.DBTransaction, id int64) (*store.Job, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT json FROM jobs WHERE id = $1", id).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, store.WrapStoreError("GetJob", err)
	}
	j, err := scanJobRow(raw)
	if err != nil {
		return nil, store.WrapStoreError("GetJob", err)
	}
	if j.ID != id {
		return nil, &store.InvariantViolation{Detail: "job id column/json mismatch"}
	}
	return &j, nil
}

func (s *Store) GetJobFromTaskID(ctx context.Context, taskID string) (*store.Job, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT json FROM jobs WHERE taskid = $1", taskID).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, store.WrapStoreError("GetJobFromTaskID", err)
	}
	j, err := scanJobRow(raw)
	if err != nil {
		return nil, store.WrapStoreError("GetJobFromTaskID", err)
	}
	if j.TaskID == nil || *j.TaskID != taskID {
		return nil, &store.InvariantViolation{Detail: "job taskId column/json mismatch"}
	}
	return &j, nil
}

func (s *Store) GetAppJob(ctx context.Context, id int64) (*store.Application, *store.Job, error) {
	var jraw, araw string
	err := s.db.QueryRowContext(ctx,
		"SELECT j.json, a.json FROM jobs j, applications a WHERE j.id = $1 AND j.appid = a.appid", id).
		Scan(&jraw, &araw)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil, nil
	case err != nil:
		return nil, nil, store.WrapStoreError("GetAppJob", err)
	}
	j, err := scanJobRow(jraw)
	if err != nil {
		return nil, nil, store.WrapStoreError("GetAppJob", err)
	}
	if j.ID != id {
		return nil, nil, &store.InvariantViolation{Detail: "job id mismatch in GetAppJob"}
	}
	var a store.Application
	if err := json.Unmarshal([]byte(araw), &a); err != nil {
		return nil, nil, store.WrapStoreError("GetAppJob", err)
	}
	return &a, &j, nil
}

// ListJobs returns Jobs owned (via Application) by owner, in the given
// state, newest first, optionally filtered by tag post-hydration (tags
// live inside the json blob, not as an indexed column).
func (s *Store) ListJobs(ctx context.Context, owner string, state store.JobState, tag *string, limit int) ([]store.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT j.json FROM jobs j, applications a
		 WHERE j.appid = a.appid AND a.owner = $1 AND j.state = $2
		 ORDER BY j.id DESC LIMIT $3`,
		owner, string(state), limit)
	if err != nil {
		return nil, store.WrapStoreError("ListJobs", err)
	}
	defer rows.Close()

	var ret []store.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, store.WrapStoreError("ListJobs", err)
		}
		j, err := scanJobRow(raw)
		if err != nil {
			return nil, store.WrapStoreError("ListJobs", err)
		}
		if tag != nil && !j.HasTag(*tag) {
			continue
		}
		ret = append(ret, j)
	}
	return ret, store.WrapStoreError("ListJobs", rows.Err())
}

func (s *Store) Queued(ctx context.Context, limit int) ([]store.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT json FROM jobs WHERE state = $1 ORDER BY id ASC LIMIT $2", string(store.JobQueued), limit)
	if err != nil {
		return nil, store.WrapStoreError("Queued", err)
	}
	defer rows.Close()

	var ret []store.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, store.WrapStoreError("Queued", err)
		}
		j, err := scanJobRow(raw)
		if err != nil {
			return nil, store.WrapStoreError("Queued", err)
		}
		if j.State != store.JobQueued {
			return nil, &store.InvariantViolation{Detail: "queued() returned a non-QUEUED job"}
		}
		ret = append(ret, j)
	}
	return ret, store.WrapStoreError("Queued", rows.Err())
}

// FindFit walks QUEUED jobs ordered by orderBy and greedily accepts a
// strict prefix: it stops at the first job that would push either
// accumulated cpu or memMB over the cap, never skipping ahead to a
// smaller job behind it. orderBy entries are trusted column names
// supplied by the Planner, never request input.
func (s *Store) FindFit(ctx context.Context, orderBy []string, cpu, memMB int) ([]store.Job, error) {
	cols := make([]string, len(orderBy))
	for i, c := range orderBy {
		cols[i] = c + " ASC"
	}
	query := "SELECT json FROM jobs WHERE state = $1 ORDER BY " + strings.Join(cols, ", ")

	rows, err := s.db.QueryContext(ctx, query, string(store.JobQueued))
	if err != nil {
		return nil, store.WrapStoreError("FindFit", err)
	}
	defer rows.Close()

	var ret []store.Job
	totalCpu, totalMem := 0, 0
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, store.WrapStoreError("FindFit", err)
		}
		j, err := scanJobRow(raw)
		if err != nil {
			return nil, store.WrapStoreError("FindFit", err)
		}
		if totalCpu+j.Resources.Cpu <= cpu && totalMem+j.Resources.MemMB <= memMB {
			ret = append(ret, j)
			totalCpu += j.Resources.Cpu
			totalMem += j.Resources.MemMB
		} else {
			break
		}
	}
	return ret, store.WrapStoreError("FindFit", rows.Err())
}

func (s *Store) getByState(ctx context.Context, state store.JobState) ([]store.Job, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT json FROM jobs WHERE state = $1", string(state))
	if err != nil {
		return nil, store.WrapStoreError("getByState", err)
	}
	defer rows.Close()

	var ret []store.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, store.WrapStoreError("getByState", err)
		}
		j, err := scanJobRow(raw)
		if err != nil {
			return nil, store.WrapStoreError("getByState", err)
		}
		ret = append(ret, j)
	}
	return ret, store.WrapStoreError("getByState", rows.Err())
}

func (s *Store) GetRunning(ctx context.Context) ([]store.Job, error) {
	starting, err := s.getByState(ctx, store.JobStarting)
	if err != nil {
		return nil, err
	}
	started, err := s.getByState(ctx, store.JobStarted)
	if err != nil {
		return nil, err
	}
	return append(starting, started...), nil
}

// FinishedJobs returns jobs finished within the half-open interval
// [start, end).
func (s *Store) FinishedJobs(ctx context.Context, start, end string) ([]store.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT json FROM jobs WHERE $1 <= finished AND finished < $2", start, end)
	if err != nil {
		return nil, store.WrapStoreError("FinishedJobs", err)
	}
	defer rows.Close()

	var ret []store.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, store.WrapStoreError("FinishedJobs", err)
		}
		j, err := scanJobRow(raw)
		if err != nil {
			return nil, store.WrapStoreError("FinishedJobs", err)
		}
		ret = append(ret, j)
	}
	return ret, store.WrapStoreError("FinishedJobs", rows.Err())
}

// updateJobRow rewrites both indexed columns and the json blob for an
// existing row. Caller owns the transaction.
func updateJobRow(ctx context.Context, q store.DBTransaction, j store.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`UPDATE jobs SET name=$1, cmd=$2, priority=$3, taskid=$4, state=$5, finished=$6, json=$7 WHERE id=$8`,
		j.Name, j.Cmd, j.Priority, j.TaskID, string(j.State), j.Finished, string(raw), j.ID)
	return err
}

// UpdateJob loads the Job by id, applies f, and persists the result if
// f reports it should be kept. f receives the current Job and returns
// the mutated Job plus whether to persist it; returning ok=false is a
// no-op commit, mirroring Database.java's Optional<Job>-returning
// callback without smuggling connection state through a closure.
func (s *Store) UpdateJob(ctx context.Context, id int64, f func(store.Job) (*store.Job, bool)) error {
	tx, err := s.db.BeginTx(ctx, serializableTxOpts)
	if err != nil {
		return store.WrapStoreError("UpdateJob", err)
	}
	defer tx.Rollback()

	current, err := s.getJob(ctx, tx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return &store.JobNotFound{ID: id}
	}

	next, ok := f(*current)
	if !ok {
		return store.WrapStoreError("UpdateJob", tx.Commit())
	}
	if next.ID != id {
		return &store.InvariantViolation{Detail: "UpdateJob callback changed job id"}
	}
	if err := updateJobRow(ctx, tx, *next); err != nil {
		return store.WrapStoreError("UpdateJob", err)
	}
	return store.WrapStoreError("UpdateJob", tx.Commit())
}

func (s *Store) UpdateJobs(ctx context.Context, jobs []store.Job) error {
	tx, err := s.db.BeginTx(ctx, serializableTxOpts)
	if err != nil {
		return store.WrapStoreError("UpdateJobs", err)
	}
	defer tx.Rollback()

	for _, j := range jobs {
		if err := updateJobRow(ctx, tx, j); err != nil {
			return store.WrapStoreError("UpdateJobs", err)
		}
	}
	return store.WrapStoreError("UpdateJobs", tx.Commit())
}

// RetryJobs resets each listed Job back to QUEUED with TaskID/URL
// cleared and Retry incremented, matching the FINISHED/KILLED -> QUEUED
// edge of the state machine (§4.B).
func (s *Store) RetryJobs(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, serializableTxOpts)
	if err != nil {
		return store.WrapStoreError("RetryJobs", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		j, err := s.getJob(ctx, tx, id)
		if err != nil {
			return err
		}
		if j == nil {
			return &store.JobNotFound{ID: id}
		}
		if j.State != store.JobFinished && j.State != store.JobKilled {
			return store.WrapStoreError("RetryJobs", &store.IllegalTransition{From: j.State, To: store.JobQueued})
		}
		j.State = store.JobQueued
		j.TaskID = nil
		j.URL = nil
		j.Finished = nil
		j.StartedAt = nil
		j.Retry++
		if err := updateJobRow(ctx, tx, *j); err != nil {
			return store.WrapStoreError("RetryJobs", err)
		}
	}
	return store.WrapStoreError("RetryJobs", tx.Commit())
}

func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(id) FROM jobs").Scan(&n)
	return n, store.WrapStoreError("CountJobs", err)
}

func (s *Store) countByState(ctx context.Context, state store.JobState) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count(id) FROM jobs WHERE state = $1", string(state)).Scan(&n)
	return n, store.WrapStoreError("countByState", err)
}

func (s *Store) CountQueued(ctx context.Context) (int, error) {
	return s.countByState(ctx, store.JobQueued)
}

func (s *Store) CountRunning(ctx context.Context) (int, error) {
	starting, err := s.countByState(ctx, store.JobStarting)
	if err != nil {
		return 0, err
	}
	started, err := s.countByState(ctx, store.JobStarted)
	if err != nil {
		return 0, err
	}
	return starting + started, nil
}

func (s *Store) GetLatestJobID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM jobs ORDER BY id DESC LIMIT 1").Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		return 0, nil
	case err != nil:
		return 0, store.WrapStoreError("GetLatestJobID", err)
	}
	return id, nil
}

// DeleteOldJobs purges terminal jobs (FINISHED, KILLED) whose Finished
// timestamp is older than leewaySeconds, returning the count removed.
func (s *Store) DeleteOldJobs(ctx context.Context, leewaySeconds int64) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE state IN ($1, $2) AND finished < now() - ($3 || ' seconds')::interval`,
		string(store.JobFinished), string(store.JobKilled), leewaySeconds)
	if err != nil {
		return 0, store.WrapStoreError("DeleteOldJobs", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.WrapStoreError("DeleteOldJobs", err)
	}
	return int(n), nil
}
