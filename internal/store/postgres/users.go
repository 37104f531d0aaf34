package postgres

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"

	"retz/internal/store"
)

func (s *Store) AllUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT json FROM users")
	if err != nil {
		return nil, store.WrapStoreError("AllUsers", err)
	}
	defer rows.Close()

	var ret []store.User
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, store.WrapStoreError("AllUsers", err)
		}
		var u store.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return nil, store.WrapStoreError("AllUsers", err)
		}
		ret = append(ret, u)
	}
	return ret, store.WrapStoreError("AllUsers", rows.Err())
}

func (s *Store) AddUser(ctx context.Context, u store.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return store.WrapStoreError("AddUser", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users(key_id, secret, enabled, json) VALUES ($1, $2, $3, $4)",
		u.KeyID, u.Secret, u.Enabled, string(raw))
	return store.WrapStoreError("AddUser", err)
}

// CreateUser generates a 32-hex keyId and secret and persists a new,
// enabled User.
func (s *Store) CreateUser(ctx context.Context, info string) (store.User, error) {
	keyID, err := randomHex(16)
	if err != nil {
		return store.User{}, store.WrapStoreError("CreateUser", err)
	}
	secret, err := randomHex(16)
	if err != nil {
		return store.User{}, store.WrapStoreError("CreateUser", err)
	}
	u := store.User{KeyID: keyID, Secret: secret, Enabled: true, Info: info}
	if err := s.AddUser(ctx, u); err != nil {
		return store.User{}, err
	}
	return u, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *Store) GetUser(ctx context.Context, keyID string) (*store.User, error) {
	return s.getUser(ctx, s.db, keyID)
}

func (s *Store) getUser(ctx context.Context, q store.DBTransaction, keyID string) (*store.User, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT json FROM users WHERE key_id = $1", keyID).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, store.WrapStoreError("GetUser", err)
	}
	var u store.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, store.WrapStoreError("GetUser", err)
	}
	if u.KeyID != keyID {
		return nil, &store.InvariantViolation{Detail: "user keyId column/json mismatch"}
	}
	return &u, nil
}

func (s *Store) EnableUser(ctx context.Context, keyID string, enabled bool) error {
	tx, err := s.db.BeginTx(ctx, serializableTxOpts)
	if err != nil {
		return store.WrapStoreError("EnableUser", err)
	}
	defer tx.Rollback()

	u, err := s.getUser(ctx, tx, keyID)
	if err != nil {
		return err
	}
	if u == nil {
		return tx.Commit()
	}
	u.Enabled = enabled
	raw, err := json.Marshal(*u)
	if err != nil {
		return store.WrapStoreError("EnableUser", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET secret=$1, enabled=$2, json=$3 WHERE key_id=$4",
		u.Secret, u.Enabled, string(raw), u.KeyID); err != nil {
		return store.WrapStoreError("EnableUser", err)
	}
	return store.WrapStoreError("EnableUser", tx.Commit())
}
