package jobqueue

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func TestStore_Dequeue_Empty(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, queue_name, payload, priority, attempts, max_attempts`).
		WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectRollback()

	_, err := store.Dequeue(context.Background(), "risk_assessment", "worker-1")
	if err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestStore_Dequeue_ClaimsJob(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, queue_name, payload, priority, attempts, max_attempts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "queue_name", "payload", "priority", "attempts", "max_attempts"}).
			AddRow(int64(1), "risk_assessment", []byte(`{"loan_id":"abc"}`), 0, 0, 3))
	mock.ExpectExec(`UPDATE async_jobs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	job, err := store.Dequeue(context.Background(), "risk_assessment", "worker-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != 1 || job.Payload["loan_id"] != "abc" {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestRetryDelay_ScalesWithAttempts(t *testing.T) {
	if retryDelay(1).Seconds() != 60 {
		t.Fatalf("expected 60s for first retry, got %v", retryDelay(1))
	}
	if retryDelay(3).Seconds() != 180 {
		t.Fatalf("expected 180s for third retry, got %v", retryDelay(3))
	}
}
