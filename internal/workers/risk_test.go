package workers

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/domain"
	"github.com/coderTtxi12/loan-system/internal/jobqueue"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
)

type fakeHub struct{ calls int }

func (f *fakeHub) EmitStatusChanged(loanID, countryCode, oldStatus, newStatus string) { f.calls++ }

var loanColumns = []string{
	"id", "country_code", "document_type", "document_number", "document_hash", "full_name",
	"amount_requested", "monthly_income", "currency", "status", "risk_score", "requires_review",
	"banking_info", "extra_data", "created_at", "updated_at", "processed_at",
}

func TestRiskWorker_SkipsNonPendingLoan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	loans := loanstore.New(sqlxDB)
	jobs := jobqueue.New(sqlxDB)
	hub := &fakeHub{}
	w := NewRiskWorker("risk-1", loans, jobs, hub, logrus.New())

	loanID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM loan_applications WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(loanColumns).AddRow(
			loanID, "ES", "DNI", "enc", "hash", "enc-name",
			1000.0, 2000.0, "EUR", domain.StatusApproved, nil, false,
			[]byte(`{}`), []byte(`{}`), now, now, nil,
		))

	result, err := w.process(context.Background(), &jobqueue.Job{
		Payload: map[string]interface{}{"loan_id": loanID.String(), "risk_score": 100.0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skipped, _ := result["skipped"].(bool); !skipped {
		t.Fatalf("expected skipped result for non-pending loan, got %+v", result)
	}
	if hub.calls != 0 {
		t.Fatalf("expected no broadcast for skipped loan")
	}
}

func TestRiskWorker_AutoApprovesLowRisk(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	loans := loanstore.New(sqlxDB)
	jobs := jobqueue.New(sqlxDB)
	hub := &fakeHub{}
	w := NewRiskWorker("risk-1", loans, jobs, hub, logrus.New())

	loanID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .* FROM loan_applications WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(loanColumns).AddRow(
			loanID, "ES", "DNI", "enc", "hash", "enc-name",
			1000.0, 2000.0, "EUR", domain.StatusPending, nil, false,
			[]byte(`{}`), []byte(`{}`), now, now, nil,
		))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM loan_applications WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(domain.StatusPending))
	mock.ExpectExec(`UPDATE loan_applications SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO loan_status_history`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM loan_applications WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow(domain.StatusValidating))
	mock.ExpectExec(`UPDATE loan_applications SET status`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO loan_status_history`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`INSERT INTO async_jobs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	result, err := w.process(context.Background(), &jobqueue.Job{
		Payload: map[string]interface{}{"loan_id": loanID.String(), "risk_score": 100.0, "country_code": "ES"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["new_status"] != string(domain.StatusApproved) {
		t.Fatalf("expected APPROVED, got %+v", result)
	}
	if hub.calls != 1 {
		t.Fatalf("expected one status-changed broadcast, got %d", hub.calls)
	}
}
