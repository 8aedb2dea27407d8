// Package service orchestrates the two non-trivial multi-step operations
// named in spec §4.G: creating a loan application (strategy validation,
// risk scoring, PII encryption, persistence, job enqueue) and transitioning
// a loan's status (graph-guarded update, audit/notification enqueue, cache
// invalidation). It is grounded on the original LoanService's
// create_loan_application/update_status methods, adapted from an ORM
// session-scoped service to the store/queue/cache handles this module
// already built.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/apperr"
	"github.com/coderTtxi12/loan-system/internal/cache"
	"github.com/coderTtxi12/loan-system/internal/domain"
	"github.com/coderTtxi12/loan-system/internal/jobqueue"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
	"github.com/coderTtxi12/loan-system/internal/pii"
	"github.com/coderTtxi12/loan-system/internal/strategy"
)

const (
	queueRiskEvaluation = "risk_evaluation"
	queueAudit          = "audit"
	queueNotifications  = "notifications"
)

// Service wires the strategy registry, the loan/job stores, the PII codec
// and the best-effort cache into the two application-level operations.
type Service struct {
	registry *strategy.Registry
	loans    *loanstore.Store
	jobs     *jobqueue.Store
	codec    *pii.Codec
	cache    *cache.Cache
	log      *logrus.Logger
}

// New assembles a Service from its dependencies. cache may be nil.
func New(registry *strategy.Registry, loans *loanstore.Store, jobs *jobqueue.Store, codec *pii.Codec, c *cache.Cache, log *logrus.Logger) *Service {
	return &Service{registry: registry, loans: loans, jobs: jobs, codec: codec, cache: c, log: log}
}

// CreateLoanInput carries the fields needed to open a new application
// (spec §4.G "Create application").
type CreateLoanInput struct {
	CountryCode     string
	DocumentType    string
	DocumentNumber  string
	FullName        string
	AmountRequested float64
	MonthlyIncome   float64
	ActorID         *uuid.UUID
}

// CreateLoan runs the full 8-step creation flow and returns the persisted
// loan with its document number and name still encrypted — callers that
// need plaintext call Decrypt explicitly on the read path.
func (s *Service) CreateLoan(ctx context.Context, in CreateLoanInput) (*domain.LoanApplication, error) {
	strat, err := s.registry.GetOrError(in.CountryCode)
	if err != nil {
		return nil, apperr.CountryNotSupported(in.CountryCode)
	}

	input := strategy.LoanInput{
		DocumentType:    in.DocumentType,
		DocumentNumber:  in.DocumentNumber,
		FullName:        in.FullName,
		AmountRequested: in.AmountRequested,
		MonthlyIncome:   in.MonthlyIncome,
	}

	docResult := strat.ValidateDocument(input)
	if !docResult.IsValid {
		return nil, apperr.Validation("document validation failed", docResult.Errors...)
	}

	banking, err := strat.FetchBankingInfo(ctx, input)
	if err != nil {
		s.log.WithError(err).WithField("country_code", in.CountryCode).Warn("service: banking provider unavailable, continuing with synthetic snapshot")
		banking = strategy.BankingInfo{
			ProviderName: in.CountryCode + "_UNAVAILABLE",
			RawData:      map[string]interface{}{"error": err.Error()},
		}
	}

	rulesResult := strat.ValidateBusinessRules(input, banking)
	combined := strategy.NewValidationResult()
	combined.Merge(docResult)
	combined.Merge(rulesResult)
	if !combined.IsValid {
		return nil, apperr.Validation("business rules validation failed", combined.Errors...)
	}

	riskScore, requiresReview := strat.CalculateRiskScore(input, banking)
	if combined.RequiresReview {
		requiresReview = true
	}

	documentHash := pii.HashDocument(in.CountryCode, in.DocumentNumber)
	existing, err := s.loans.GetActiveByDocumentHash(ctx, documentHash)
	if err != nil && err != loanstore.ErrNotFound {
		return nil, apperr.Internal("lookup existing application", err)
	}
	if existing != nil {
		return nil, apperr.DuplicateActive()
	}

	encryptedDoc, err := s.codec.Encrypt(in.DocumentNumber)
	if err != nil {
		return nil, apperr.Crypto(err)
	}
	encryptedName, err := s.codec.Encrypt(in.FullName)
	if err != nil {
		return nil, apperr.Crypto(err)
	}

	loan := &domain.LoanApplication{
		CountryCode:     in.CountryCode,
		DocumentType:    in.DocumentType,
		DocumentNumber:  encryptedDoc,
		DocumentHash:    documentHash,
		FullName:        encryptedName,
		AmountRequested: in.AmountRequested,
		MonthlyIncome:   in.MonthlyIncome,
		Currency:        strat.Currency(),
		Status:          domain.StatusPending,
		RiskScore:       &riskScore,
		RequiresReview:  requiresReview,
		BankingInfo:     banking.ToMap(),
		ExtraData: map[string]interface{}{
			"validation_warnings": combined.Warnings,
			"risk_factors":        combined.RiskFactors,
		},
	}
	if err := s.loans.Create(ctx, loan); err != nil {
		return nil, apperr.Internal("persist loan application", err)
	}

	priority := 0
	if requiresReview {
		priority = 1
	}
	if _, err := s.jobs.Enqueue(ctx, queueRiskEvaluation, map[string]interface{}{
		"loan_id":          loan.ID.String(),
		"country_code":     loan.CountryCode,
		"amount_requested": loan.AmountRequested,
		"risk_score":       riskScore,
	}, priority, 3, loan.CreatedAt); err != nil {
		s.log.WithError(err).Warn("service: failed to enqueue risk_evaluation job")
	}

	// §9 open question: the notify_loan_change trigger enqueues its own
	// CREATE audit job on this insert; this one is not deduplicated
	// against it, matching the original's two-source duplication.
	var actor interface{}
	if in.ActorID != nil {
		actor = in.ActorID.String()
	}
	if _, err := s.jobs.Enqueue(ctx, queueAudit, map[string]interface{}{
		"entity_type": "loan_application",
		"entity_id":   loan.ID.String(),
		"action":      string(domain.AuditCreate),
		"actor_id":    actor,
		"changes": map[string]interface{}{
			"status": map[string]interface{}{"old": nil, "new": string(domain.StatusPending)},
		},
	}, 0, 3, loan.CreatedAt); err != nil {
		s.log.WithError(err).Warn("service: failed to enqueue audit job")
	}

	s.cache.InvalidateStatistics(ctx)

	s.log.WithFields(logrus.Fields{
		"loan_id":         loan.ID,
		"risk_score":      riskScore,
		"requires_review": requiresReview,
	}).Info("service: loan application created")

	return loan, nil
}

// TransitionStatus moves a loan to newStatus if the status graph allows it
// (spec §4.G "Transition status"), appending history, enqueueing the
// downstream audit/notification jobs and invalidating derived caches.
func (s *Service) TransitionStatus(ctx context.Context, loanID uuid.UUID, newStatus domain.LoanStatus, actorID *uuid.UUID, reason string) (*domain.LoanApplication, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		if err == loanstore.ErrNotFound {
			return nil, apperr.NotFound("loan", loanID.String())
		}
		return nil, apperr.Internal("load loan", err)
	}

	if !domain.CanTransition(loan.Status, newStatus) {
		return nil, apperr.InvalidTransition(
			fmt.Sprintf("cannot transition from %s to %s", loan.Status, newStatus),
			fmt.Sprintf("invalid_transition:%s->%s", loan.Status, newStatus),
		)
	}

	if err := s.loans.UpdateStatus(ctx, loanID, newStatus, actorID, reason, nil); err != nil {
		if err == loanstore.ErrNotFound {
			return nil, apperr.NotFound("loan", loanID.String())
		}
		return nil, apperr.Internal("update loan status", err)
	}

	var actor interface{}
	if actorID != nil {
		actor = actorID.String()
	}
	if _, err := s.jobs.Enqueue(ctx, queueAudit, map[string]interface{}{
		"entity_type": "loan_application",
		"entity_id":   loanID.String(),
		"action":      string(domain.AuditStatusChange),
		"actor_id":    actor,
		"changes": map[string]interface{}{
			"status": map[string]interface{}{"old": string(loan.Status), "new": string(newStatus)},
		},
	}, 0, 3, loan.UpdatedAt); err != nil {
		s.log.WithError(err).Warn("service: failed to enqueue audit job")
	}

	if newStatus == domain.StatusApproved || newStatus == domain.StatusRejected {
		if _, err := s.jobs.Enqueue(ctx, queueNotifications, map[string]interface{}{
			"loan_id":           loanID.String(),
			"notification_type": "loan_" + toLower(string(newStatus)),
			"country_code":      loan.CountryCode,
		}, 2, 3, loan.UpdatedAt); err != nil {
			s.log.WithError(err).Warn("service: failed to enqueue notification job")
		}
	}

	s.cache.InvalidateLoan(ctx, loanID.String())
	s.cache.InvalidateStatistics(ctx)

	loan.Status = newStatus
	return loan, nil
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// GetLoan fetches a single loan by id.
func (s *Service) GetLoan(ctx context.Context, id uuid.UUID) (*domain.LoanApplication, error) {
	loan, err := s.loans.GetByID(ctx, id)
	if err != nil {
		if err == loanstore.ErrNotFound {
			return nil, apperr.NotFound("loan", id.String())
		}
		return nil, apperr.Internal("load loan", err)
	}
	return loan, nil
}

// GetLoanByDocument resolves a loan by (country, document) without
// decrypting any stored row, for the inbound-webhook reference lookup.
func (s *Service) GetLoanByDocument(ctx context.Context, countryCode, document string) (*domain.LoanApplication, error) {
	loan, err := s.loans.GetActiveByDocumentHash(ctx, pii.HashDocument(countryCode, document))
	if err != nil {
		if err == loanstore.ErrNotFound {
			return nil, apperr.NotFound("loan", document)
		}
		return nil, apperr.Internal("load loan", err)
	}
	return loan, nil
}

// ListLoans returns a filtered page of loans.
func (s *Service) ListLoans(ctx context.Context, filter loanstore.Filter) ([]*domain.LoanApplication, error) {
	loans, err := s.loans.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("list loans", err)
	}
	return loans, nil
}

// GetHistory returns a loan's ordered status ledger.
func (s *Service) GetHistory(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanStatusHistory, error) {
	if _, err := s.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	history, err := s.loans.GetStatusHistory(ctx, loanID)
	if err != nil {
		return nil, apperr.Internal("load status history", err)
	}
	return history, nil
}

// GetStatistics returns the dashboard aggregate, optionally scoped to a
// single country.
func (s *Service) GetStatistics(ctx context.Context, countryCode string) (*loanstore.Statistics, error) {
	stats, err := s.loans.GetStatistics(ctx, countryCode)
	if err != nil {
		return nil, apperr.Internal("compute statistics", err)
	}
	return stats, nil
}

// DecryptField decrypts a PII field for an authorised read path, falling
// back to the raw value for legacy unencrypted rows and logging (never
// failing the request) on a genuine decrypt error.
func (s *Service) DecryptField(value string) string {
	if value == "" {
		return ""
	}
	if pii.IsLegacyPlaintext(value) {
		return value
	}
	plain, err := s.codec.Decrypt(value)
	if err != nil {
		s.log.WithError(err).Warn("service: pii decrypt failed, returning sentinel")
		return "[unreadable]"
	}
	return plain
}

// SetRiskAssessment is used by the risk worker to persist a freshly
// computed score without otherwise touching the loan's status.
func (s *Service) SetRiskAssessment(ctx context.Context, loanID uuid.UUID, riskScore int, requiresReview bool, banking map[string]interface{}) error {
	return s.loans.SetRiskAssessment(ctx, loanID, riskScore, requiresReview, banking)
}

// EnqueueWebhookReceivedAudit records a WEBHOOK_RECEIVED audit job for an
// archived inbound provider callback, unconditionally — unlike the
// status-change/create audit jobs, this one fires regardless of whether
// the callback ended up changing anything, matching the mandatory
// audit trail for every inbound webhook.
func (s *Service) EnqueueWebhookReceivedAudit(ctx context.Context, eventID uuid.UUID, loanID *uuid.UUID, country, eventType string) {
	var entityID string
	if loanID != nil {
		entityID = loanID.String()
	}
	if _, err := s.jobs.Enqueue(ctx, queueAudit, map[string]interface{}{
		"entity_type": "loan_application",
		"entity_id":   entityID,
		"action":      string(domain.AuditWebhook),
		"actor_id":    nil,
		"changes": map[string]interface{}{
			"webhook_event_id": eventID.String(),
			"source":           country,
			"event_type":       eventType,
		},
	}, 0, 3, time.Now()); err != nil {
		s.log.WithError(err).Warn("service: failed to enqueue webhook-received audit job")
	}
}

// Jobs exposes the underlying job store for callers (workers) that need
// direct queue access beyond the two orchestrated operations above.
func (s *Service) Jobs() *jobqueue.Store { return s.jobs }

// Loans exposes the underlying loan store for read paths the HTTP layer
// drives directly (list/history/statistics already wrapped above).
func (s *Service) Loans() *loanstore.Store { return s.loans }
