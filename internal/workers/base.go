// Package workers holds the long-running queue consumers named in spec
// §4.H: risk evaluation, audit logging and outgoing webhooks. All three
// share the BaseWorker poll/claim/process/complete-or-fail loop, grounded
// on the original BaseWorker's run_forever/run_once/_process_job shape —
// adapted from asyncio tasks and signal handlers to a context-cancellation
// loop, the idiom the teacher's long-running services use throughout.
package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/jobqueue"
	"github.com/coderTtxi12/loan-system/internal/platform/metrics"
)

// Processor handles one claimed job's payload and returns the result data
// to merge under the job's "result" key, or an error to trigger a retry.
type Processor interface {
	Process(ctx context.Context, job *jobqueue.Job) (map[string]interface{}, error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, job *jobqueue.Job) (map[string]interface{}, error)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, job *jobqueue.Job) (map[string]interface{}, error) {
	return f(ctx, job)
}

// BaseWorker implements the shared poll/claim/process loop for a single
// named queue. QueueName and WorkerID identify each claim, PollInterval is
// the sleep after an empty poll, and LockTimeout defaults to five minutes.
type BaseWorker struct {
	QueueName   string
	WorkerID    string
	PollInterval time.Duration
	LockTimeout  time.Duration

	Jobs      *jobqueue.Store
	Processor Processor
	Log       *logrus.Entry
}

// Run sweeps stale locks once, then loops claiming and processing jobs
// from QueueName until ctx is cancelled.
func (w *BaseWorker) Run(ctx context.Context) {
	if w.LockTimeout <= 0 {
		w.LockTimeout = 5 * time.Minute
	}
	if released, err := w.Jobs.ReleaseStaleLocks(ctx, w.LockTimeout); err != nil {
		w.Log.WithError(err).Warn("worker: stale-lock sweep failed")
	} else if released > 0 {
		w.Log.WithField("released", released).Info("worker: released stale job locks")
	}

	w.Log.Info("worker: starting")
	defer w.Log.Info("worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := w.runOnce(ctx)
		if err != nil {
			w.Log.WithError(err).Error("worker: iteration error")
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.PollInterval):
			}
		}
	}
}

func (w *BaseWorker) runOnce(ctx context.Context) (bool, error) {
	job, err := w.Jobs.Dequeue(ctx, w.QueueName, w.WorkerID)
	if err != nil {
		if err == jobqueue.ErrEmpty {
			return false, nil
		}
		return false, err
	}

	entry := w.Log.WithField("job_id", job.ID)
	entry.Info("worker: processing job")

	start := time.Now()
	result, procErr := w.Processor.Process(ctx, job)
	if procErr != nil {
		entry.WithError(procErr).Warn("worker: job failed, scheduling retry")
		metrics.RecordJobOutcome(w.QueueName, "failed", time.Since(start))
		if err := w.Jobs.Fail(ctx, job.ID, procErr.Error()); err != nil {
			entry.WithError(err).Error("worker: failed to record job failure")
		}
		return true, nil
	}

	if err := w.Jobs.Complete(ctx, job.ID, result); err != nil {
		entry.WithError(err).Error("worker: failed to mark job complete")
		return true, err
	}
	metrics.RecordJobOutcome(w.QueueName, "completed", time.Since(start))
	entry.Info("worker: job completed")
	return true, nil
}
