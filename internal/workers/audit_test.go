package workers

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/jobqueue"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
)

func TestAuditWorker_InfersSystemActorWhenAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	loans := loanstore.New(sqlxDB)
	jobs := jobqueue.New(sqlxDB)
	w := NewAuditWorker("audit-1", loans, jobs, logrus.New())

	entityID := uuid.New()
	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	result, err := w.process(context.Background(), &jobqueue.Job{
		Payload: map[string]interface{}{
			"entity_type": "loan_application",
			"entity_id":   entityID.String(),
			"action":      "CREATE",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["audit_log_id"] != int64(42) {
		t.Fatalf("expected audit log id 42, got %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditWorker_RejectsMissingFields(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	loans := loanstore.New(sqlxDB)
	jobs := jobqueue.New(sqlxDB)
	w := NewAuditWorker("audit-1", loans, jobs, logrus.New())

	_, err = w.process(context.Background(), &jobqueue.Job{
		Payload: map[string]interface{}{"entity_type": "loan_application"},
	})
	if err == nil {
		t.Fatalf("expected error for missing entity_id/action")
	}
}
