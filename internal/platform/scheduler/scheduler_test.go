package scheduler

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/jobqueue"
)

func TestMaintenance_RunOnceSweepsAndPrunes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE async_jobs\s+SET status = 'PENDING', locked_by = NULL`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM async_jobs`).
		WillReturnResult(sqlmock.NewResult(0, 5))

	jobs := jobqueue.New(sqlx.NewDb(db, "sqlmock"))
	log := logrus.New()
	log.SetOutput(nopWriter{})

	m := New(jobs, time.Minute, time.Hour, log)
	m.runOnce()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	m := New(nil, 0, 0, logrus.New())
	if m.lockTimeout != 5*time.Minute {
		t.Fatalf("expected default lock timeout, got %v", m.lockTimeout)
	}
	if m.retention != 30*24*time.Hour {
		t.Fatalf("expected default retention, got %v", m.retention)
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
