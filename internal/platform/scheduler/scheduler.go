// Package scheduler runs periodic maintenance against the job queue:
// releasing stale locks left by a crashed worker and pruning terminal
// jobs past their retention window. The original only swept stale locks
// once at worker startup (app/workers/run.py); nothing ever called
// jobqueue.Store.CleanupOldJobs, so this package gives that maintenance
// a recurring home using the cron expression parser already in the
// dependency set.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/coderTtxi12/loan-system/internal/jobqueue"
)

// Maintenance periodically sweeps stale locks and deletes old terminal
// jobs from the queue store.
type Maintenance struct {
	jobs        *jobqueue.Store
	log         *logrus.Logger
	lockTimeout time.Duration
	retention   time.Duration
	cron        *cron.Cron
}

// New builds a Maintenance scheduler. lockTimeout matches the workers'
// own stale-lock threshold; retention is how long a COMPLETED, FAILED or
// CANCELLED job is kept before CleanupOldJobs removes it.
func New(jobs *jobqueue.Store, lockTimeout, retention time.Duration, log *logrus.Logger) *Maintenance {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Minute
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Maintenance{
		jobs:        jobs,
		log:         log,
		lockTimeout: lockTimeout,
		retention:   retention,
		cron:        cron.New(),
	}
}

// Start schedules the recurring sweeps and begins running them. spec is a
// standard 5-field cron expression; pass "" to use the default of once an
// hour.
func (m *Maintenance) Start(spec string) error {
	if spec == "" {
		spec = "0 * * * *"
	}
	_, err := m.cron.AddFunc(spec, m.runOnce)
	if err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop halts future runs and waits for any in-flight run to finish.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
}

func (m *Maintenance) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if released, err := m.jobs.ReleaseStaleLocks(ctx, m.lockTimeout); err != nil {
		m.log.WithError(err).Warn("scheduler: stale-lock sweep failed")
	} else if released > 0 {
		m.log.WithField("released", released).Info("scheduler: released stale job locks")
	}

	if removed, err := m.jobs.CleanupOldJobs(ctx, m.retention); err != nil {
		m.log.WithError(err).Warn("scheduler: old-job cleanup failed")
	} else if removed > 0 {
		m.log.WithField("removed", removed).Info("scheduler: pruned old terminal jobs")
	}
}
