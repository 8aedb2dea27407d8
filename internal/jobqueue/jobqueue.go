// Package jobqueue is the durable async job queue backing the risk,
// audit and webhook workers (spec §3, §4.D, §4.H). Dequeue claims a
// row with SELECT ... FOR UPDATE SKIP LOCKED so multiple worker
// processes can poll the same queue without double-processing a job,
// following the same idiom as the teacher's jam PGStore NextPending.
package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a job id doesn't exist.
var ErrNotFound = errors.New("jobqueue: not found")

// ErrEmpty is returned by Dequeue when no job is ready to claim.
var ErrEmpty = errors.New("jobqueue: no job available")

// Store is the Postgres-backed AsyncJob repository.
type Store struct {
	db *sqlx.DB
}

// New wraps an open sqlx connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func jsonOf(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		v = map[string]interface{}{}
	}
	return json.Marshal(v)
}

// Enqueue inserts a pending job, scheduled to run immediately unless
// scheduledAt is set.
func (s *Store) Enqueue(ctx context.Context, queueName string, payload map[string]interface{}, priority int, maxAttempts int, scheduledAt time.Time) (int64, error) {
	if scheduledAt.IsZero() {
		scheduledAt = time.Now().UTC()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	body, err := jsonOf(payload)
	if err != nil {
		return 0, fmt.Errorf("jobqueue: marshal payload: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO async_jobs
			(queue_name, payload, status, priority, attempts, max_attempts, scheduled_at, created_at)
		VALUES ($1,$2,$3,$4,0,$5,$6,$7)
		RETURNING id
	`, queueName, body, "PENDING", priority, maxAttempts, scheduledAt, time.Now().UTC()).Scan(&id)
	return id, err
}

// claimedJob is the shape Dequeue scans before handing the job to the
// caller with its locked_by stamp already applied.
type claimedJob struct {
	ID          int64
	QueueName   string
	Payload     []byte
	Priority    int
	Attempts    int
	MaxAttempts int
}

// Job mirrors domain.AsyncJob's queue-relevant fields for callers that
// don't want to import the domain package just to read a payload.
type Job struct {
	ID          int64
	QueueName   string
	Payload     map[string]interface{}
	Priority    int
	Attempts    int
	MaxAttempts int
}

// Dequeue claims the next pending (or due-for-retry) job on queueName
// for workerID, ordered by priority desc then scheduled_at asc, and
// marks it RUNNING. Returns ErrEmpty if nothing is ready.
func (s *Store) Dequeue(ctx context.Context, queueName, workerID string) (*Job, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var claimed claimedJob
	row := tx.QueryRowContext(ctx, `
		SELECT id, queue_name, payload, priority, attempts, max_attempts
		FROM async_jobs
		WHERE queue_name = $1
		  AND status = 'PENDING'
		  AND scheduled_at <= $2
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, queueName, now).Scan(&claimed.ID, &claimed.QueueName, &claimed.Payload, &claimed.Priority, &claimed.Attempts, &claimed.MaxAttempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmpty
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE async_jobs
		SET status = 'RUNNING', started_at = $1, locked_by = $2, locked_at = $1, attempts = attempts + 1
		WHERE id = $3
	`, now, workerID, claimed.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(claimed.Payload, &payload); err != nil {
		payload = map[string]interface{}{}
	}

	return &Job{
		ID:          claimed.ID,
		QueueName:   claimed.QueueName,
		Payload:     payload,
		Priority:    claimed.Priority,
		Attempts:    claimed.Attempts + 1,
		MaxAttempts: claimed.MaxAttempts,
	}, nil
}

// Complete marks a job COMPLETED and merges resultData under the
// payload's "result" key, mirroring the original repository's
// completion semantics.
func (s *Store) Complete(ctx context.Context, jobID int64, resultData map[string]interface{}) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	if err := tx.QueryRowContext(ctx, `SELECT payload FROM async_jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		payload = map[string]interface{}{}
	}
	payload["result"] = resultData

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		UPDATE async_jobs SET status = 'COMPLETED', payload = $1, completed_at = $2, locked_by = NULL, locked_at = NULL
		WHERE id = $3
	`, body, now, jobID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// retryDelay is the backoff applied between attempts: 60 seconds times
// the attempt number just made, per spec §4.H / §7.
func retryDelay(attempts int) time.Duration {
	return time.Duration(60*attempts) * time.Second
}

// Fail records a job failure. If attempts have been exhausted the job
// moves to FAILED; otherwise it's rescheduled with backoff and left
// PENDING for the next Dequeue.
func (s *Store) Fail(ctx context.Context, jobID int64, errMsg string) error {
	var attempts, maxAttempts int
	if err := s.db.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM async_jobs WHERE id = $1`, jobID).Scan(&attempts, &maxAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	now := time.Now().UTC()
	if attempts >= maxAttempts {
		_, err := s.db.ExecContext(ctx, `
			UPDATE async_jobs SET status = 'FAILED', error = $1, completed_at = $2, locked_by = NULL, locked_at = NULL
			WHERE id = $3
		`, errMsg, now, jobID)
		return err
	}

	nextRun := now.Add(retryDelay(attempts))
	_, err := s.db.ExecContext(ctx, `
		UPDATE async_jobs SET status = 'PENDING', error = $1, scheduled_at = $2, locked_by = NULL, locked_at = NULL
		WHERE id = $3
	`, errMsg, nextRun, jobID)
	return err
}

// Cancel marks a PENDING job CANCELLED. Jobs already RUNNING or
// terminal are left untouched.
func (s *Store) Cancel(ctx context.Context, jobID int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE async_jobs SET status = 'CANCELLED', completed_at = $1
		WHERE id = $2 AND status = 'PENDING'
	`, time.Now().UTC(), jobID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseStaleLocks resets RUNNING jobs whose lock is older than
// staleAfter back to PENDING, recovering work abandoned by a crashed
// worker (spec §4.H startup sweep).
func (s *Store) ReleaseStaleLocks(ctx context.Context, staleAfter time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	res, err := s.db.ExecContext(ctx, `
		UPDATE async_jobs
		SET status = 'PENDING', locked_by = NULL, locked_at = NULL, started_at = NULL
		WHERE status = 'RUNNING' AND locked_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupOldJobs deletes terminal jobs older than olderThan, returning
// the number of rows removed (spec §4.H periodic maintenance).
func (s *Store) CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM async_jobs
		WHERE status IN ('COMPLETED', 'FAILED', 'CANCELLED') AND created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// QueueStats is the per-queue snapshot returned by GetQueueStats.
type QueueStats struct {
	QueueName     string
	Pending       int
	Running       int
	Completed     int
	Failed        int
	Cancelled     int
	OldestPending *time.Time
}

// GetQueueStats returns a status breakdown per queue, plus the oldest
// still-pending job's scheduled_at (spec §4.D "counts per status plus
// oldest pending timestamp"), matching the original's get_queue_stats.
func (s *Store) GetQueueStats(ctx context.Context) ([]QueueStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT queue_name, status, COUNT(*)
		FROM async_jobs
		GROUP BY queue_name, status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byQueue := map[string]*QueueStats{}
	var order []string
	for rows.Next() {
		var queueName, status string
		var count int
		if err := rows.Scan(&queueName, &status, &count); err != nil {
			return nil, err
		}
		qs, ok := byQueue[queueName]
		if !ok {
			qs = &QueueStats{QueueName: queueName}
			byQueue[queueName] = qs
			order = append(order, queueName)
		}
		switch status {
		case "PENDING":
			qs.Pending = count
		case "RUNNING":
			qs.Running = count
		case "COMPLETED":
			qs.Completed = count
		case "FAILED":
			qs.Failed = count
		case "CANCELLED":
			qs.Cancelled = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	oldestRows, err := s.db.QueryContext(ctx, `
		SELECT queue_name, MIN(scheduled_at)
		FROM async_jobs
		WHERE status = 'PENDING'
		GROUP BY queue_name
	`)
	if err != nil {
		return nil, err
	}
	defer oldestRows.Close()
	for oldestRows.Next() {
		var queueName string
		var oldest time.Time
		if err := oldestRows.Scan(&queueName, &oldest); err != nil {
			return nil, err
		}
		if qs, ok := byQueue[queueName]; ok {
			t := oldest
			qs.OldestPending = &t
		}
	}
	if err := oldestRows.Err(); err != nil {
		return nil, err
	}

	out := make([]QueueStats, 0, len(order))
	for _, name := range order {
		out = append(out, *byQueue[name])
	}
	return out, nil
}
