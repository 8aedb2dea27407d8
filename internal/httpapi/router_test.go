package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/hub"
	"github.com/coderTtxi12/loan-system/internal/jobqueue"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
	"github.com/coderTtxi12/loan-system/internal/pii"
	"github.com/coderTtxi12/loan-system/internal/service"
	"github.com/coderTtxi12/loan-system/internal/strategy"
)

func newTestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	log := logrus.New()
	loans := loanstore.New(sqlxDB)
	registry := strategy.NewRegistry(strategy.Spain{})
	svc := service.New(registry, loans, jobqueue.New(sqlxDB), pii.NewCodec("test-secret"), nil, log)

	router := NewRouter(Config{
		Service:       svc,
		Loans:         loans,
		Hub:           hub.New(log),
		WebhookSecret: "whsec",
		JWTSecret:     "jwtsecret",
		Log:           log,
	})
	return router, mock
}

func TestHealth_IsUnauthenticated(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateLoan_RequiresBearerToken(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]interface{}{
		"country_code":     "ES",
		"document_type":    "DNI",
		"document_number":  "12345678Z",
		"full_name":        "Ana Garcia",
		"amount_requested": 1000.0,
		"monthly_income":   2000.0,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

func TestWebhookEvents_IsPublicAndUnauthenticated(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery(`SELECT id, source, event_type, payload, signature, processed, processed_at, processing_error, loan_id, created_at FROM webhook_events`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "source", "event_type", "payload", "signature", "processed", "processed_at", "processing_error", "loan_id", "created_at",
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBankingWebhook_RejectsBadSignature(t *testing.T) {
	router, _ := newTestRouter(t)

	body := []byte(`{"event_type":"status_update","loan_reference":"11111111-1111-1111-1111-111111111111","status":"approved"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/banking/ES", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad signature, got %d: %s", rec.Code, rec.Body.String())
	}
}
