package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"retz/internal/store"
)

func TestAddApplication_RefusesDisabledOwner(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	owner := store.User{KeyID: "owner1", Enabled: false}
	raw, _ := owner.MarshalJSON()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT json FROM users WHERE key_id = \$1`).
		WithArgs("owner1").
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(string(raw)))
	mock.ExpectRollback()

	ok, err := s.AddApplication(context.Background(), store.Application{Appid: "app1", Owner: "owner1"})
	if err != nil {
		t.Fatalf("AddApplication returned error: %v", err)
	}
	if ok {
		t.Error("expected AddApplication to refuse a disabled owner")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAddApplication_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	owner := store.User{KeyID: "owner1", Enabled: true}
	raw, _ := owner.MarshalJSON()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT json FROM users WHERE key_id = \$1`).
		WithArgs("owner1").
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(string(raw)))
	mock.ExpectExec(`DELETE FROM applications WHERE appid = \$1`).
		WithArgs("app1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO applications`).
		WithArgs("app1", "owner1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := s.AddApplication(context.Background(), store.Application{Appid: "app1", Owner: "owner1"})
	if err != nil {
		t.Fatalf("AddApplication failed: %v", err)
	}
	if !ok {
		t.Error("expected AddApplication to succeed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDeleteApplication_RefusesInUse(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT count\(\*\) FROM jobs WHERE appid = \$1 AND state IN \(\$2, \$3, \$4\)`).
		WithArgs("app1", string(store.JobQueued), string(store.JobStarting), string(store.JobStarted)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := s.DeleteApplication(context.Background(), "app1")
	if err == nil {
		t.Fatal("expected DeleteApplication to refuse an in-use application")
	}
}
