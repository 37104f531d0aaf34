package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"retz/internal/store"
)

func TestGetUser_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	u := store.User{KeyID: "abc123", Secret: "s3cr3t", Enabled: true, Info: "ci"}
	raw, _ := u.MarshalJSON()

	mock.ExpectQuery(`SELECT json FROM users WHERE key_id = \$1`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(string(raw)))

	got, err := s.GetUser(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil || got.KeyID != "abc123" || !got.Enabled {
		t.Errorf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT json FROM users WHERE key_id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"json"}))

	got, err := s.GetUser(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil user, got %+v", got)
	}
}

func TestAddUser(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("abc123", "s3cr3t", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.AddUser(context.Background(), store.User{KeyID: "abc123", Secret: "s3cr3t", Enabled: true})
	if err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestEnableUser(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	u := store.User{KeyID: "abc123", Secret: "s3cr3t", Enabled: false}
	raw, _ := u.MarshalJSON()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT json FROM users WHERE key_id = \$1`).
		WithArgs("abc123").
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(string(raw)))
	mock.ExpectExec(`UPDATE users SET secret=\$1, enabled=\$2, json=\$3 WHERE key_id=\$4`).
		WithArgs("s3cr3t", true, sqlmock.AnyArg(), "abc123").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.EnableUser(context.Background(), "abc123", true); err != nil {
		t.Fatalf("EnableUser failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
