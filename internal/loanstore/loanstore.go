// Package loanstore is the Postgres-backed repository for
// LoanApplication and LoanStatusHistory rows (spec §3, §4.C). It
// follows the teacher's jam PGStore idiom: plain database/sql via
// sqlx.DB, hand-built dynamic WHERE clauses, explicit row scanning
// rather than struct-tag reflection for the hot paths, and
// FOR UPDATE-guarded transactions where a read-then-write must be
// atomic.
package loanstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/coderTtxi12/loan-system/internal/domain"
)

// ErrNotFound is returned when a loan or history row doesn't exist.
var ErrNotFound = errors.New("loanstore: not found")

// Store is the Postgres-backed LoanApplication repository.
type Store struct {
	db *sqlx.DB
}

// New wraps an open sqlx connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Filter narrows List's result set (spec §6 GET /loans).
type Filter struct {
	CountryCode    string
	Status         domain.LoanStatus
	RequiresReview *bool
	Limit          int
	Offset         int
}

func jsonOf(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		v = map[string]interface{}{}
	}
	return json.Marshal(v)
}

func scanJSON(raw []byte, out *map[string]interface{}) error {
	if len(raw) == 0 {
		*out = map[string]interface{}{}
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Create inserts a new loan application. The caller is responsible for
// setting ID/CreatedAt/UpdatedAt to zero-value-safe defaults beforehand;
// Create fills them in if unset.
func (s *Store) Create(ctx context.Context, loan *domain.LoanApplication) error {
	if loan.ID == uuid.Nil {
		loan.ID = uuid.New()
	}
	now := time.Now().UTC()
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = now
	}
	loan.UpdatedAt = now

	banking, err := jsonOf(loan.BankingInfo)
	if err != nil {
		return fmt.Errorf("loanstore: marshal banking_info: %w", err)
	}
	extra, err := jsonOf(loan.ExtraData)
	if err != nil {
		return fmt.Errorf("loanstore: marshal extra_data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO loan_applications
			(id, country_code, document_type, document_number, document_hash, full_name,
			 amount_requested, monthly_income, currency, status, risk_score, requires_review,
			 banking_info, extra_data, created_at, updated_at, processed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		loan.ID, loan.CountryCode, loan.DocumentType, loan.DocumentNumber, loan.DocumentHash, loan.FullName,
		loan.AmountRequested, loan.MonthlyIncome, loan.Currency, loan.Status, loan.RiskScore, loan.RequiresReview,
		banking, extra, loan.CreatedAt, loan.UpdatedAt, loan.ProcessedAt,
	)
	return err
}

func scanLoan(row interface {
	Scan(dest ...interface{}) error
}) (*domain.LoanApplication, error) {
	var l domain.LoanApplication
	var banking, extra []byte
	err := row.Scan(
		&l.ID, &l.CountryCode, &l.DocumentType, &l.DocumentNumber, &l.DocumentHash, &l.FullName,
		&l.AmountRequested, &l.MonthlyIncome, &l.Currency, &l.Status, &l.RiskScore, &l.RequiresReview,
		&banking, &extra, &l.CreatedAt, &l.UpdatedAt, &l.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := scanJSON(banking, &l.BankingInfo); err != nil {
		return nil, fmt.Errorf("loanstore: unmarshal banking_info: %w", err)
	}
	if err := scanJSON(extra, &l.ExtraData); err != nil {
		return nil, fmt.Errorf("loanstore: unmarshal extra_data: %w", err)
	}
	return &l, nil
}

const loanColumns = `
	id, country_code, document_type, document_number, document_hash, full_name,
	amount_requested, monthly_income, currency, status, risk_score, requires_review,
	banking_info, extra_data, created_at, updated_at, processed_at
`

// GetByID fetches a loan by primary key.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*domain.LoanApplication, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loan_applications WHERE id = $1`, id)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return loan, nil
}

// GetActiveByDocumentHash returns a non-terminal loan for the same
// document, used by the duplicate-active-application guard in
// spec §4.G step 6. Terminal statuses (REJECTED, CANCELLED, COMPLETED)
// don't block a new application.
func (s *Store) GetActiveByDocumentHash(ctx context.Context, documentHash string) (*domain.LoanApplication, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+loanColumns+` FROM loan_applications
		WHERE document_hash = $1
		  AND status NOT IN ($2, $3, $4)
		ORDER BY created_at DESC
		LIMIT 1
	`, documentHash, domain.StatusRejected, domain.StatusCancelled, domain.StatusCompleted)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return loan, nil
}

// List returns loans matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*domain.LoanApplication, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var args []interface{}
	clauses := []string{"1=1"}
	if filter.CountryCode != "" {
		args = append(args, filter.CountryCode)
		clauses = append(clauses, fmt.Sprintf("country_code = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.RequiresReview != nil {
		args = append(args, *filter.RequiresReview)
		clauses = append(clauses, fmt.Sprintf("requires_review = $%d", len(args)))
	}
	args = append(args, limit, filter.Offset)
	limitIdx, offsetIdx := len(args)-1, len(args)

	query := fmt.Sprintf(`
		SELECT %s FROM loan_applications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, loanColumns, strings.Join(clauses, " AND "), limitIdx, offsetIdx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*domain.LoanApplication
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

// UpdateStatus transitions a loan's status inside a transaction,
// appending a LoanStatusHistory row and stamping processed_at when the
// new status is one that marks the application as decided
// (spec §4.C, domain.ProcessedOnEntry).
func (s *Store) UpdateStatus(ctx context.Context, loanID uuid.UUID, newStatus domain.LoanStatus, changedBy *uuid.UUID, reason string, extra map[string]interface{}) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var previousStatus domain.LoanStatus
	row := tx.QueryRowContext(ctx, `SELECT status FROM loan_applications WHERE id = $1 FOR UPDATE`, loanID)
	if err := row.Scan(&previousStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	now := time.Now().UTC()
	var processedAt interface{}
	if domain.ProcessedOnEntry(newStatus) {
		processedAt = now
	}

	if processedAt != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE loan_applications SET status = $1, updated_at = $2, processed_at = $3 WHERE id = $4
		`, newStatus, now, processedAt, loanID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE loan_applications SET status = $1, updated_at = $2 WHERE id = $3
		`, newStatus, now, loanID)
	}
	if err != nil {
		return err
	}

	extraJSON, err := jsonOf(extra)
	if err != nil {
		return fmt.Errorf("loanstore: marshal history extra_data: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loan_status_history
			(id, loan_id, previous_status, new_status, changed_by, reason, extra_data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, uuid.New(), loanID, previousStatus, newStatus, changedBy, reason, extraJSON, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// SetRiskAssessment stores a risk score and review flag computed by the
// risk worker (spec §4.H), without touching status.
func (s *Store) SetRiskAssessment(ctx context.Context, loanID uuid.UUID, riskScore int, requiresReview bool, bankingInfo map[string]interface{}) error {
	banking, err := jsonOf(bankingInfo)
	if err != nil {
		return fmt.Errorf("loanstore: marshal banking_info: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE loan_applications
		SET risk_score = $1, requires_review = $2, banking_info = $3, updated_at = $4
		WHERE id = $5
	`, riskScore, requiresReview, banking, time.Now().UTC(), loanID)
	return err
}

// GetStatusHistory returns the ordered ledger of status transitions for
// a loan.
func (s *Store) GetStatusHistory(ctx context.Context, loanID uuid.UUID) ([]*domain.LoanStatusHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, loan_id, previous_status, new_status, changed_by, reason, extra_data, created_at
		FROM loan_status_history
		WHERE loan_id = $1
		ORDER BY created_at ASC
	`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.LoanStatusHistory
	for rows.Next() {
		var h domain.LoanStatusHistory
		var prev sql.NullString
		var extra []byte
		if err := rows.Scan(&h.ID, &h.LoanID, &prev, &h.NewStatus, &h.ChangedBy, &h.Reason, &extra, &h.CreatedAt); err != nil {
			return nil, err
		}
		if prev.Valid {
			ps := domain.LoanStatus(prev.String)
			h.PreviousStatus = &ps
		}
		if err := scanJSON(extra, &h.ExtraData); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// InsertAuditLog appends one AuditLog row, returning its generated id.
// Audit rows are children of their entity and never orphaned (spec §3
// ownership note), but the entity_id is stored loosely since an audit
// row can reference any entity type, not just loans.
func (s *Store) InsertAuditLog(ctx context.Context, log *domain.AuditLog) (int64, error) {
	changes, err := jsonOf(log.Changes)
	if err != nil {
		return 0, fmt.Errorf("loanstore: marshal audit changes: %w", err)
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs
			(entity_type, entity_id, action, actor_id, actor_type, changes, ip_address, user_agent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, log.EntityType, log.EntityID, log.Action, log.ActorID, log.ActorType, changes, log.IPAddress, log.UserAgent, log.CreatedAt).Scan(&id)
	return id, err
}

// InsertWebhookEvent archives an inbound provider callback before it is
// processed, so a processing failure or handler crash still leaves a
// durable record of what arrived (spec §3 WebhookEvent, §6 inbound
// webhook contract). The HTTP handler calls it only after the signature
// check passes, so a rejected signature leaves no record.
func (s *Store) InsertWebhookEvent(ctx context.Context, evt *domain.WebhookEvent) (uuid.UUID, error) {
	payload, err := jsonOf(evt.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("loanstore: marshal webhook payload: %w", err)
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	var id uuid.UUID
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO webhook_events
			(source, event_type, payload, signature, processed, processed_at, processing_error, loan_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, evt.Source, evt.EventType, payload, evt.Signature, evt.Processed, evt.ProcessedAt, evt.ProcessingError, evt.LoanID, evt.CreatedAt).Scan(&id)
	return id, err
}

// MarkWebhookEventProcessed records the outcome of handling a webhook
// event, storing procErr's message (if any) rather than failing the
// whole request on a bookkeeping error.
func (s *Store) MarkWebhookEventProcessed(ctx context.Context, id uuid.UUID, procErr error) error {
	var errMsg *string
	if procErr != nil {
		msg := procErr.Error()
		errMsg = &msg
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhook_events SET processed = true, processed_at = $1, processing_error = $2
		WHERE id = $3
	`, time.Now().UTC(), errMsg, id)
	return err
}

// ListWebhookEvents returns archived webhook events newest-first,
// optionally filtered by source and processed state (spec §6
// GET /webhooks/events).
func (s *Store) ListWebhookEvents(ctx context.Context, source string, processed *bool, limit int) ([]*domain.WebhookEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, source, event_type, payload, signature, processed, processed_at, processing_error, loan_id, created_at FROM webhook_events WHERE 1=1`
	args := []interface{}{}
	if source != "" {
		args = append(args, source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if processed != nil {
		args = append(args, *processed)
		query += fmt.Sprintf(" AND processed = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.WebhookEvent
	for rows.Next() {
		var evt domain.WebhookEvent
		var payload []byte
		if err := rows.Scan(&evt.ID, &evt.Source, &evt.EventType, &payload, &evt.Signature, &evt.Processed, &evt.ProcessedAt, &evt.ProcessingError, &evt.LoanID, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if err := scanJSON(payload, &evt.Payload); err != nil {
			return nil, err
		}
		out = append(out, &evt)
	}
	return out, rows.Err()
}

// Statistics is the aggregate returned by GetStatistics (spec §6
// GET /loans/statistics). TotalLoans duplicates TotalCount under a
// second key for clients written against either name.
type Statistics struct {
	TotalCount       int                      `json:"total_count"`
	TotalLoans       int                      `json:"total_loans"`
	ByStatus         map[domain.LoanStatus]int `json:"by_status"`
	ByCountry        map[string]int           `json:"by_country"`
	RequiresReview   int                      `json:"pending_review_count"`
	SumAmount        float64                  `json:"sum_amount"`
	AverageAmount    float64                  `json:"avg_amount"`
	AverageRiskScore float64                  `json:"avg_risk_score"`
}

// GetStatistics computes the dashboard aggregate in a small number of
// queries rather than one query per count, matching the shape the
// original repository's get_statistics built up incrementally. An empty
// countryCode computes the global aggregate; otherwise every query is
// scoped to that country, matching the original's optional country_code
// filter.
func (s *Store) GetStatistics(ctx context.Context, countryCode string) (*Statistics, error) {
	stats := &Statistics{ByStatus: map[domain.LoanStatus]int{}, ByCountry: map[string]int{}}

	where := ""
	args := []interface{}{}
	if countryCode != "" {
		where = " WHERE country_code = $1"
		args = append(args, countryCode)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loan_applications`+where, args...).Scan(&stats.TotalCount); err != nil {
		return nil, err
	}
	stats.TotalLoans = stats.TotalCount

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM loan_applications`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var status domain.LoanStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT country_code, COUNT(*) FROM loan_applications`+where+` GROUP BY country_code`, args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByCountry[code] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reviewWhere := where
	reviewArgs := append([]interface{}{}, args...)
	reviewStatusClause := fmt.Sprintf("status IN ($%d, $%d)", len(reviewArgs)+1, len(reviewArgs)+2)
	reviewArgs = append(reviewArgs, domain.StatusPending, domain.StatusInReview)
	if reviewWhere == "" {
		reviewWhere = " WHERE requires_review AND " + reviewStatusClause
	} else {
		reviewWhere += " AND requires_review AND " + reviewStatusClause
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loan_applications`+reviewWhere, reviewArgs...).Scan(&stats.RequiresReview); err != nil {
		return nil, err
	}

	var sum, avgAmount sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(amount_requested), AVG(amount_requested) FROM loan_applications`+where, args...).Scan(&sum, &avgAmount); err != nil {
		return nil, err
	}
	if sum.Valid {
		stats.SumAmount = sum.Float64
	}
	if avgAmount.Valid {
		stats.AverageAmount = avgAmount.Float64
	}

	riskWhere := where
	riskArgs := append([]interface{}{}, args...)
	if riskWhere == "" {
		riskWhere = " WHERE risk_score IS NOT NULL"
	} else {
		riskWhere += " AND risk_score IS NOT NULL"
	}
	var avgRisk sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `SELECT AVG(risk_score) FROM loan_applications`+riskWhere, riskArgs...).Scan(&avgRisk); err != nil {
		return nil, err
	}
	if avgRisk.Valid {
		stats.AverageRiskScore = avgRisk.Float64
	}

	return stats, nil
}
