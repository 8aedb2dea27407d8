package workers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/jobqueue"
)

func TestWebhookWorker_SignsAndPostsPayload(t *testing.T) {
	const secret = "whsec"
	var gotBody []byte
	var gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	jobs := jobqueue.New(sqlx.NewDb(db, "sqlmock"))

	w := NewWebhookWorker("webhook-1", secret, map[string]string{"ES": srv.URL}, jobs, logrus.New())

	result, err := w.process(context.Background(), &jobqueue.Job{
		Payload: map[string]interface{}{
			"loan_id":           "loan-123",
			"notification_type": "loan_approved",
			"country_code":      "ES",
			"risk_score":        150.0,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["success"] != true {
		t.Fatalf("expected success result, got %+v", result)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	if gotSignature != expected {
		t.Fatalf("signature mismatch: got %s want %s", gotSignature, expected)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if decoded["event_type"] != "loan_approved" || decoded["loan_reference"] != "loan-123" {
		t.Fatalf("unexpected payload shape: %+v", decoded)
	}
	data, _ := decoded["data"].(map[string]interface{})
	if _, present := data["country_code"]; present {
		t.Fatalf("country_code must be excluded from data, got %+v", data)
	}
}

func TestWebhookWorker_FallsBackToEchoEndpointWhenUnconfigured(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	jobs := jobqueue.New(sqlx.NewDb(db, "sqlmock"))
	w := NewWebhookWorker("webhook-1", "secret", map[string]string{}, jobs, logrus.New())

	if got := w.endpoint("MX"); got != httpbinEcho {
		t.Fatalf("expected fallback to echo endpoint, got %s", got)
	}
}

func TestWebhookWorker_NonSuccessStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	jobs := jobqueue.New(sqlx.NewDb(db, "sqlmock"))
	w := NewWebhookWorker("webhook-1", "secret", map[string]string{"ES": srv.URL}, jobs, logrus.New())

	_, err = w.process(context.Background(), &jobqueue.Job{
		Payload: map[string]interface{}{
			"loan_id":           "loan-123",
			"notification_type": "loan_rejected",
			"country_code":      "ES",
		},
	})
	if err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}
