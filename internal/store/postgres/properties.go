package postgres

import (
	"context"
	"database/sql"

	"retz/internal/store"
)

// SetFrameworkID upserts the frameworkId property. It returns true if
// either the insert or the update touched a row, per the resolved open
// question of §9 (truthiness tracks "a write happened", not "the value
// changed").
func (s *Store) SetFrameworkID(ctx context.Context, value string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, serializableTxOpts)
	if err != nil {
		return false, store.WrapStoreError("SetFrameworkID", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE properties SET value = $1 WHERE key = $2", value, store.FrameworkIDKey)
	if err != nil {
		return false, store.WrapStoreError("SetFrameworkID", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return false, store.WrapStoreError("SetFrameworkID", err)
	}

	if updated == 0 {
		res, err = tx.ExecContext(ctx, "INSERT INTO properties(key, value) VALUES ($1, $2)", store.FrameworkIDKey, value)
		if err != nil {
			return false, store.WrapStoreError("SetFrameworkID", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return false, store.WrapStoreError("SetFrameworkID", err)
		}
		updated = inserted
	}

	if err := tx.Commit(); err != nil {
		return false, store.WrapStoreError("SetFrameworkID", err)
	}
	return updated > 0, nil
}

func (s *Store) GetFrameworkID(ctx context.Context) (*string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM properties WHERE key = $1", store.FrameworkIDKey).Scan(&value)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, store.WrapStoreError("GetFrameworkID", err)
	}
	return &value, nil
}

func (s *Store) DeleteAllProperties(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, serializableTxOpts)
	if err != nil {
		return store.WrapStoreError("DeleteAllProperties", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM properties"); err != nil {
		return store.WrapStoreError("DeleteAllProperties", err)
	}
	return store.WrapStoreError("DeleteAllProperties", tx.Commit())
}
