package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/domain"
	"github.com/coderTtxi12/loan-system/internal/jobqueue"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
)

// AuditWorker consumes the audit queue, writing one AuditLog row per job.
// actor_type is inferred USER when actor_id is present, SYSTEM otherwise,
// per the original AuditWorker.process.
type AuditWorker struct {
	base  *BaseWorker
	loans *loanstore.Store
}

// NewAuditWorker builds an AuditWorker polling every 500ms, per spec §4.H.
func NewAuditWorker(workerID string, loans *loanstore.Store, jobs *jobqueue.Store, log *logrus.Logger) *AuditWorker {
	w := &AuditWorker{loans: loans}
	w.base = &BaseWorker{
		QueueName:    "audit",
		WorkerID:     workerID,
		PollInterval: 500 * time.Millisecond,
		Jobs:         jobs,
		Processor:    ProcessorFunc(w.process),
		Log:          log.WithFields(logrus.Fields{"queue": "audit", "worker_id": workerID}),
	}
	return w
}

// Run blocks until ctx is cancelled.
func (w *AuditWorker) Run(ctx context.Context) { w.base.Run(ctx) }

func (w *AuditWorker) process(ctx context.Context, job *jobqueue.Job) (map[string]interface{}, error) {
	entityType, _ := job.Payload["entity_type"].(string)
	entityIDStr, _ := job.Payload["entity_id"].(string)
	action, _ := job.Payload["action"].(string)
	if entityType == "" || entityIDStr == "" || action == "" {
		return nil, fmt.Errorf("audit worker: entity_type, entity_id and action are required")
	}
	entityID, err := uuid.Parse(entityIDStr)
	if err != nil {
		return nil, fmt.Errorf("audit worker: invalid entity_id: %w", err)
	}

	var actorID *uuid.UUID
	actorType := domain.ActorSystem
	if actorIDStr, ok := job.Payload["actor_id"].(string); ok && actorIDStr != "" {
		id, err := uuid.Parse(actorIDStr)
		if err != nil {
			return nil, fmt.Errorf("audit worker: invalid actor_id: %w", err)
		}
		actorID = &id
		actorType = domain.ActorUser
	}

	changes, _ := job.Payload["changes"].(map[string]interface{})
	ipAddress, _ := job.Payload["ip_address"].(string)
	userAgent, _ := job.Payload["user_agent"].(string)

	log := &domain.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     domain.AuditAction(action),
		ActorID:    actorID,
		ActorType:  &actorType,
		Changes:    changes,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
	}
	id, err := w.loans.InsertAuditLog(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("audit worker: insert audit log: %w", err)
	}

	return map[string]interface{}{
		"audit_log_id": id,
		"entity_type":  entityType,
		"entity_id":    entityID.String(),
		"action":       action,
	}, nil
}
