package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/jobqueue"
)

func TestBaseWorker_ProcessesOneJobThenStops(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	jobs := jobqueue.New(sqlx.NewDb(db, "sqlmock"))

	mock.ExpectExec(`UPDATE async_jobs\s+SET status = 'PENDING', locked_by = NULL, locked_at = NULL, started_at = NULL\s+WHERE status = 'RUNNING' AND locked_at < \$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, queue_name, payload, priority, attempts, max_attempts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "queue_name", "payload", "priority", "attempts", "max_attempts"}).
			AddRow(int64(1), "audit", []byte(`{}`), 0, 0, 3))
	mock.ExpectExec(`UPDATE async_jobs\s+SET status = 'RUNNING'`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT payload FROM async_jobs WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(`{}`)))
	mock.ExpectExec(`UPDATE async_jobs SET status = 'COMPLETED'`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var processed int
	w := &BaseWorker{
		QueueName:    "audit",
		WorkerID:     "test-worker",
		PollInterval: 10 * time.Millisecond,
		Jobs:         jobs,
		Processor: ProcessorFunc(func(ctx context.Context, job *jobqueue.Job) (map[string]interface{}, error) {
			processed++
			return map[string]interface{}{"ok": true}, nil
		}),
		Log: logrus.NewEntry(logrus.New()),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for processed == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to be processed")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done

	if processed != 1 {
		t.Fatalf("expected exactly one processed job, got %d", processed)
	}
}

func TestBaseWorker_FailsJobOnProcessorError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	jobs := jobqueue.New(sqlx.NewDb(db, "sqlmock"))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, queue_name, payload, priority, attempts, max_attempts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "queue_name", "payload", "priority", "attempts", "max_attempts"}).
			AddRow(int64(2), "audit", []byte(`{}`), 0, 0, 3))
	mock.ExpectExec(`UPDATE async_jobs\s+SET status = 'RUNNING'`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(`SELECT attempts, max_attempts FROM async_jobs WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(1, 3))
	mock.ExpectExec(`UPDATE async_jobs SET status = 'PENDING', error = \$1, scheduled_at = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &BaseWorker{
		QueueName:    "audit",
		WorkerID:     "test-worker",
		PollInterval: time.Hour,
		Jobs:         jobs,
		Processor: ProcessorFunc(func(ctx context.Context, job *jobqueue.Job) (map[string]interface{}, error) {
			return nil, errors.New("boom")
		}),
		Log: logrus.NewEntry(logrus.New()),
	}

	processed, err := w.runOnce(ctx)
	if err != nil {
		t.Fatalf("runOnce returned unexpected error: %v", err)
	}
	if !processed {
		t.Fatalf("expected processed=true for a failed job")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
