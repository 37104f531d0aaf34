package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"retz/internal/store"
)

func (s *Store) GetAllApplications(ctx context.Context, owner string) ([]store.Application, error) {
	var rows *sql.Rows
	var err error
	if owner == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT json FROM applications")
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT json FROM applications WHERE owner = $1", owner)
	}
	if err != nil {
		return nil, store.WrapStoreError("GetAllApplications", err)
	}
	defer rows.Close()

	var ret []store.Application
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, store.WrapStoreError("GetAllApplications", err)
		}
		var a store.Application
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, store.WrapStoreError("GetAllApplications", err)
		}
		ret = append(ret, a)
	}
	return ret, store.WrapStoreError("GetAllApplications", rows.Err())
}

// AddApplication requires Owner to reference an existing, enabled
// User. Re-adding an existing appid replaces it atomically (delete
// then insert inside one transaction), matching Database.java's
// "addApplication overwrites" semantics.
func (s *Store) AddApplication(ctx context.Context, a store.Application) (bool, error) {
	tx, err := s.db.BeginTx(ctx, serializableTxOpts)
	if err != nil {
		return false, store.WrapStoreError("AddApplication", err)
	}
	defer tx.Rollback()

	u, err := s.getUser(ctx, tx, a.Owner)
	if err != nil {
		return false, err
	}
	if u == nil || !u.Enabled {
		return false, nil
	}

	raw, err := json.Marshal(a)
	if err != nil {
		return false, store.WrapStoreError("AddApplication", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM applications WHERE appid = $1", a.Appid); err != nil {
		return false, store.WrapStoreError("AddApplication", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO applications(appid, owner, json) VALUES ($1, $2, $3)",
		a.Appid, a.Owner, string(raw)); err != nil {
		return false, store.WrapStoreError("AddApplication", err)
	}
	if err := tx.Commit(); err != nil {
		return false, store.WrapStoreError("AddApplication", err)
	}
	return true, nil
}

func (s *Store) GetApplication(ctx context.Context, appid string) (*store.Application, error) {
	return s.getApplication(ctx, s.db, appid)
}

func (s *Store) getApplication(ctx context.Context, q store.DBTransaction, appid string) (*store.Application, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT json FROM applications WHERE appid = $1", appid).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, store.WrapStoreError("GetApplication", err)
	}
	var a store.Application
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, store.WrapStoreError("GetApplication", err)
	}
	if a.Appid != appid {
		return nil, &store.InvariantViolation{Detail: "application appid column/json mismatch"}
	}
	return &a, nil
}

// DeleteApplication refuses to delete an Application referenced by any
// non-terminal Job (QUEUED, STARTING, STARTED), resolving the open
// question of §9 in favor of protecting in-flight work.
func (s *Store) DeleteApplication(ctx context.Context, appid string) error {
	tx, err := s.db.BeginTx(ctx, serializableTxOpts)
	if err != nil {
		return store.WrapStoreError("DeleteApplication", err)
	}
	defer tx.Rollback()

	var inUse int
	err = tx.QueryRowContext(ctx,
		`SELECT count(*) FROM jobs WHERE appid = $1 AND state IN ($2, $3, $4)`,
		appid, store.JobQueued, store.JobStarting, store.JobStarted).Scan(&inUse)
	if err != nil {
		return store.WrapStoreError("DeleteApplication", err)
	}
	if inUse > 0 {
		return store.WrapStoreError("DeleteApplication",
			&store.InvariantViolation{Detail: "application has non-terminal jobs referencing it"})
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM applications WHERE appid = $1", appid); err != nil {
		return store.WrapStoreError("DeleteApplication", err)
	}
	return store.WrapStoreError("DeleteApplication", tx.Commit())
}
