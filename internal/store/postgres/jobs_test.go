package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"retz/internal/store"
)

func jobJSON(t *testing.T, j store.Job) string {
	t.Helper()
	raw, err := j.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return string(raw)
}

func TestFindFit_StopsAtStrictPrefix(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	fits := store.Job{ID: 1, State: store.JobQueued, Resources: store.Resources{Cpu: 1, MemMB: 256}}
	tooBig := store.Job{ID: 2, State: store.JobQueued, Resources: store.Resources{Cpu: 4, MemMB: 4096}}
	wouldAlsoFit := store.Job{ID: 3, State: store.JobQueued, Resources: store.Resources{Cpu: 1, MemMB: 256}}

	mock.ExpectQuery(`SELECT json FROM jobs WHERE state = \$1 ORDER BY priority ASC, id ASC`).
		WithArgs(string(store.JobQueued)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).
			AddRow(jobJSON(t, fits)).
			AddRow(jobJSON(t, tooBig)).
			AddRow(jobJSON(t, wouldAlsoFit)))

	got, err := s.FindFit(context.Background(), []string{"priority", "id"}, 2, 512)
	if err != nil {
		t.Fatalf("FindFit failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("expected strict prefix of [1], got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateJob_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT json FROM jobs WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}))
	mock.ExpectRollback()

	err := s.UpdateJob(context.Background(), 7, func(j store.Job) (*store.Job, bool) { return &j, true })
	var notFound *store.JobNotFound
	if err == nil {
		t.Fatal("expected JobNotFound")
	}
	if e, ok := err.(*store.JobNotFound); !ok || e.ID != 7 {
		_ = notFound
		t.Errorf("expected JobNotFound{7}, got %v", err)
	}
}

func TestUpdateJob_AppliesMutation(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	existing := store.Job{ID: 7, Appid: "app", State: store.JobQueued}
	taskID := "task-1"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT json FROM jobs WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(jobJSON(t, existing)))
	mock.ExpectExec(`UPDATE jobs SET`).
		WithArgs("", "", 0, taskID, string(store.JobStarting), nil, sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.UpdateJob(context.Background(), 7, func(j store.Job) (*store.Job, bool) {
		j.State = store.JobStarting
		j.TaskID = &taskID
		return &j, true
	})
	if err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCountQueued(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT count\(id\) FROM jobs WHERE state = \$1`).
		WithArgs(string(store.JobQueued)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.CountQueued(context.Background())
	if err != nil {
		t.Fatalf("CountQueued failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3, got %d", n)
	}
}

func TestRetryJobs_RejectsNonTerminal(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	running := store.Job{ID: 9, State: store.JobStarted}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT json FROM jobs WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"json"}).AddRow(jobJSON(t, running)))
	mock.ExpectRollback()

	err := s.RetryJobs(context.Background(), []int64{9})
	if err == nil {
		t.Fatal("expected error retrying a non-terminal job")
	}
}
