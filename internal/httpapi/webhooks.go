package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coderTtxi12/loan-system/internal/apperr"
	"github.com/coderTtxi12/loan-system/internal/domain"
)

// bankingWebhook is the inbound shape a country provider POSTs back,
// per spec §6's webhook contract: either a status_update or a
// risk_assessment event, keyed by loan reference (a loan uuid, or else
// the document number, which is hashed with the country for lookup).
type bankingWebhook struct {
	EventType      string `json:"event_type"`
	LoanReference  string `json:"loan_reference"`
	Status         string `json:"status"`
	RiskScore      *int   `json:"risk_score"`
	RequiresReview *bool  `json:"requires_review"`
}

var statusMap = map[string]domain.LoanStatus{
	"approved":  domain.StatusApproved,
	"rejected":  domain.StatusRejected,
	"verified":  domain.StatusValidating,
	"disbursed": domain.StatusDisbursed,
}

func (h *Handlers) bankingWebhook(w http.ResponseWriter, r *http.Request) {
	country := strings.ToUpper(chi.URLParam(r, "country"))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAppError(w, apperr.Validation("could not read request body", err.Error()))
		return
	}
	defer r.Body.Close()

	if !h.verifySignature(r, body) {
		writeAppError(w, apperr.SignatureMismatch())
		return
	}

	var payload bankingWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		writeAppError(w, apperr.Validation("invalid webhook payload", err.Error()))
		return
	}

	var rawPayload map[string]interface{}
	_ = json.Unmarshal(body, &rawPayload)

	evt := &domain.WebhookEvent{
		Source:    country,
		EventType: payload.EventType,
		Payload:   rawPayload,
		Signature: r.Header.Get("X-Webhook-Signature"),
	}
	eventID, insertErr := h.loans.InsertWebhookEvent(r.Context(), evt)
	if insertErr != nil {
		h.log.WithError(insertErr).Error("httpapi: failed to archive webhook event")
	}

	loan, resolveErr := h.resolveLoanReference(r.Context(), country, payload.LoanReference)

	if insertErr == nil {
		var loanID *uuid.UUID
		if resolveErr == nil {
			loanID = &loan.ID
		}
		h.service.EnqueueWebhookReceivedAudit(r.Context(), eventID, loanID, country, payload.EventType)
	}

	var procErr error
	if resolveErr != nil {
		procErr = resolveErr
	} else {
		procErr = h.processBankingWebhook(r.Context(), loan, payload)
	}
	if insertErr == nil {
		if markErr := h.loans.MarkWebhookEventProcessed(r.Context(), eventID, procErr); markErr != nil {
			h.log.WithError(markErr).Warn("httpapi: failed to mark webhook event processed")
		}
	}
	if procErr != nil {
		writeAppError(w, procErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// processBankingWebhook applies the event to an already-resolved loan: a
// status_update drives the transition graph via the service's guarded
// TransitionStatus (a no-op if the reported status already matches, per
// spec §4.H "apply the transition if different"), a risk_assessment
// stamps the risk fields directly, matching the original webhook
// handler's two event kinds.
func (h *Handlers) processBankingWebhook(ctx context.Context, loan *domain.LoanApplication, payload bankingWebhook) error {
	switch payload.EventType {
	case "status_update":
		newStatus, ok := statusMap[strings.ToLower(payload.Status)]
		if !ok {
			return apperr.Validation("unsupported status_update value", payload.Status)
		}
		if newStatus == loan.Status {
			return nil
		}
		_, err := h.service.TransitionStatus(ctx, loan.ID, newStatus, nil, "banking webhook: "+payload.Status)
		return err
	case "risk_assessment":
		if payload.RiskScore == nil {
			return apperr.Validation("risk_assessment requires risk_score", "risk_score")
		}
		requiresReview := false
		if payload.RequiresReview != nil {
			requiresReview = *payload.RequiresReview
		}
		return h.service.SetRiskAssessment(ctx, loan.ID, *payload.RiskScore, requiresReview, loan.BankingInfo)
	default:
		return apperr.Validation("unsupported event_type", payload.EventType)
	}
}

func (h *Handlers) resolveLoanReference(ctx context.Context, country, reference string) (*domain.LoanApplication, error) {
	if id, err := uuid.Parse(reference); err == nil {
		return h.service.GetLoan(ctx, id)
	}
	return h.service.GetLoanByDocument(ctx, country, reference)
}

func (h *Handlers) verifySignature(r *http.Request, body []byte) bool {
	if h.webhookSecret == "" {
		return true
	}
	signature := r.Header.Get("X-Webhook-Signature")
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (h *Handlers) listWebhookEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := strings.ToUpper(strings.TrimSpace(q.Get("source")))
	var processed *bool
	if raw := strings.TrimSpace(q.Get("processed")); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			processed = &v
		}
	}
	limit := queryInt(q, "limit", 100)

	events, err := h.loans.ListWebhookEvents(r.Context(), source, processed, limit)
	if err != nil {
		h.log.WithError(err).Error("httpapi: list webhook events")
		writeAppError(w, apperr.Internal("failed to list webhook events", err))
		return
	}
	writeJSON(w, http.StatusOK, events)
}
