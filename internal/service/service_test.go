package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/apperr"
	"github.com/coderTtxi12/loan-system/internal/domain"
	"github.com/coderTtxi12/loan-system/internal/jobqueue"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
	"github.com/coderTtxi12/loan-system/internal/pii"
	"github.com/coderTtxi12/loan-system/internal/strategy"
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	registry := strategy.NewRegistry(strategy.Spain{})
	return New(registry, loanstore.New(sqlxDB), jobqueue.New(sqlxDB), pii.NewCodec("test-secret"), nil, logrus.New()), mock
}

func TestCreateLoan_CountryNotSupported(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		CountryCode:     "ZZ",
		DocumentType:    "DNI",
		DocumentNumber:  "12345678Z",
		FullName:        "A B",
		AmountRequested: 1000,
		MonthlyIncome:   2000,
	})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindCountryNotSupported {
		t.Fatalf("expected CountryNotSupported, got %v", err)
	}
}

func TestCreateLoan_InvalidDocumentNeverTouchesStore(t *testing.T) {
	svc, mock := newTestService(t)

	_, err := svc.CreateLoan(context.Background(), CreateLoanInput{
		CountryCode:     "ES",
		DocumentType:    "DNI",
		DocumentNumber:  "12345678A",
		FullName:        "A B",
		AmountRequested: 1000,
		MonthlyIncome:   2000,
	})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindValidation {
		t.Fatalf("expected Validation, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected store interaction: %v", err)
	}
}

var loanColumns = []string{
	"id", "country_code", "document_type", "document_number", "document_hash", "full_name",
	"amount_requested", "monthly_income", "currency", "status", "risk_score", "requires_review",
	"banking_info", "extra_data", "created_at", "updated_at", "processed_at",
}

func TestTransitionStatus_RejectsInvalidGraphEdge(t *testing.T) {
	svc, mock := newTestService(t)
	loanID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM loan_applications WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(loanColumns).AddRow(
			loanID, "ES", "DNI", "enc", "hash", "enc-name",
			1000.0, 2000.0, "EUR", domain.StatusRejected, nil, false,
			[]byte(`{}`), []byte(`{}`), now, now, nil,
		))

	_, err := svc.TransitionStatus(context.Background(), loanID, domain.StatusApproved, nil, "")
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindValidation {
		t.Fatalf("expected Validation for REJECTED->APPROVED, got %v", err)
	}
}
