// Package domain holds the entities from spec §3: LoanApplication,
// LoanStatusHistory, AsyncJob, AuditLog, WebhookEvent and User, plus the
// status transition graph from §4.G.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// LoanStatus enumerates the loan lifecycle states.
type LoanStatus string

const (
	StatusPending    LoanStatus = "PENDING"
	StatusValidating LoanStatus = "VALIDATING"
	StatusInReview   LoanStatus = "IN_REVIEW"
	StatusApproved   LoanStatus = "APPROVED"
	StatusRejected   LoanStatus = "REJECTED"
	StatusCancelled  LoanStatus = "CANCELLED"
	StatusDisbursed  LoanStatus = "DISBURSED"
	StatusCompleted  LoanStatus = "COMPLETED"
)

// transitions is the directed status graph from spec §4.G. It is built
// once and never mutated — a one-time-initialised immutable lookup per
// the "global-state avoidance" design note.
var transitions = map[LoanStatus][]LoanStatus{
	StatusPending:    {StatusValidating, StatusCancelled},
	StatusValidating: {StatusInReview, StatusApproved, StatusRejected},
	StatusInReview:   {StatusApproved, StatusRejected},
	StatusApproved:   {StatusDisbursed, StatusCancelled},
	StatusDisbursed:  {StatusCompleted},
	StatusRejected:   {},
	StatusCancelled:  {},
	StatusCompleted:  {},
}

// CanTransition reports whether from -> to is an edge in the status
// graph.
func CanTransition(from, to LoanStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status has no outgoing edges.
func IsTerminal(status LoanStatus) bool {
	return len(transitions[status]) == 0
}

// ProcessedOnEntry reports whether entering this status stamps
// processed_at, per §4.C update_status.
func ProcessedOnEntry(status LoanStatus) bool {
	return status == StatusApproved || status == StatusRejected || status == StatusDisbursed
}

// LoanApplication is the primary aggregate root (spec §3).
type LoanApplication struct {
	ID                uuid.UUID
	CountryCode       string
	DocumentType      string
	DocumentNumber    string // encrypted at rest; see internal/pii
	DocumentHash      string
	FullName          string // encrypted at rest
	AmountRequested   float64
	MonthlyIncome     float64
	Currency          string
	Status            LoanStatus
	RiskScore         *int
	RequiresReview    bool
	BankingInfo       map[string]interface{}
	ExtraData         map[string]interface{}
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ProcessedAt       *time.Time
}

// LoanStatusHistory is an append-only ledger row (spec §3).
type LoanStatusHistory struct {
	ID              uuid.UUID
	LoanID          uuid.UUID
	PreviousStatus  *LoanStatus
	NewStatus       LoanStatus
	ChangedBy       *uuid.UUID
	Reason          string
	ExtraData       map[string]interface{}
	CreatedAt       time.Time
}

// JobStatus enumerates AsyncJob lifecycle states.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// AsyncJob is a durable queue element (spec §3, §4.D).
type AsyncJob struct {
	ID          int64
	QueueName   string
	Payload     map[string]interface{}
	Status      JobStatus
	Priority    int
	Attempts    int
	MaxAttempts int
	Error       *string
	ScheduledAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LockedBy    *string
	LockedAt    *time.Time
	CreatedAt   time.Time
}

// ActorType enumerates who performed an audited action.
type ActorType string

const (
	ActorUser    ActorType = "USER"
	ActorSystem  ActorType = "SYSTEM"
	ActorWorker  ActorType = "WORKER"
	ActorWebhook ActorType = "WEBHOOK"
)

// AuditAction enumerates the audit log's action column.
type AuditAction string

const (
	AuditCreate       AuditAction = "CREATE"
	AuditUpdate       AuditAction = "UPDATE"
	AuditDelete       AuditAction = "DELETE"
	AuditStatusChange AuditAction = "STATUS_CHANGE"
	AuditWebhook      AuditAction = "WEBHOOK_RECEIVED"
)

// AuditLog is an append-only entity-change journal row (spec §3).
type AuditLog struct {
	ID        int64
	EntityType string
	EntityID   uuid.UUID
	Action     AuditAction
	ActorID    *uuid.UUID
	ActorType  *ActorType
	Changes    map[string]interface{}
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// WebhookEvent archives an inbound provider event (spec §3).
type WebhookEvent struct {
	ID               uuid.UUID
	Source           string
	EventType        string
	Payload          map[string]interface{}
	Signature        string
	Processed        bool
	ProcessedAt      *time.Time
	ProcessingError  *string
	LoanID           *uuid.UUID
	CreatedAt        time.Time
}

// UserRole gates who may approve/reject loans.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleAnalyst UserRole = "ANALYST"
	RoleViewer  UserRole = "VIEWER"
)

// User is the authentication/authorization principal (spec §3).
type User struct {
	ID             uuid.UUID
	Email          string
	HashedPassword string
	FullName       string
	Role           UserRole
	IsActive       bool
	IsVerified     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLogin      *time.Time
}

// CanApproveLoans reports whether the user's role permits transitioning a
// loan to APPROVED/REJECTED.
func (u User) CanApproveLoans() bool {
	return u.Role == RoleAdmin || u.Role == RoleAnalyst
}

// IsAdmin reports whether the user has the ADMIN role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
