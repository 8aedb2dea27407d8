package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/coderTtxi12/loan-system/internal/config"
	"github.com/coderTtxi12/loan-system/internal/hub"
	"github.com/coderTtxi12/loan-system/internal/jobqueue"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
	"github.com/coderTtxi12/loan-system/internal/logging"
	"github.com/coderTtxi12/loan-system/internal/platform/database"
	"github.com/coderTtxi12/loan-system/internal/platform/scheduler"
	"github.com/coderTtxi12/loan-system/internal/workers"
)

// runner is implemented by every worker type; Run blocks until ctx is
// cancelled, mirroring the original run.py's run_forever contract.
type runner interface {
	Run(ctx context.Context)
}

func main() {
	queue := flag.String("queue", "", "queue name to process: risk_evaluation, audit, webhook (or notifications, an alias)")
	workerID := flag.String("worker-id", "", "unique worker identifier (defaults to hostname-pid)")
	all := flag.Bool("all", false, "run every worker concurrently")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	if !*all && strings.TrimSpace(*queue) == "" {
		fmt.Fprintln(os.Stderr, "usage: worker -queue <risk_evaluation|audit|webhook> | -all")
		os.Exit(1)
	}

	dsnVal := strings.TrimSpace(*dsn)
	if dsnVal == "" {
		dsnVal = strings.TrimSpace(os.Getenv("DATABASE_DSN"))
	}
	if dsnVal == "" {
		dsnVal = cfg.Database.DSN
	}
	if dsnVal == "" {
		logger.Fatal("a PostgreSQL DSN is required (set -dsn, DATABASE_DSN or database.dsn)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, dsnVal)
	if err != nil {
		logger.WithError(err).Fatal("connect to postgres")
	}
	defer db.Close()

	sqlxDB := sqlx.NewDb(db, "postgres")
	loans := loanstore.New(sqlxDB)
	jobs := jobqueue.New(sqlxDB)
	loanHub := hub.New(logger.Logger)

	id := resolveWorkerID(*workerID)

	endpoints := map[string]string{}

	build := map[string]func() runner{
		"risk_evaluation": func() runner { return workers.NewRiskWorker(id, loans, jobs, loanHub, logger.Logger) },
		"audit":           func() runner { return workers.NewAuditWorker(id, loans, jobs, logger.Logger) },
		"webhook":         func() runner { return workers.NewWebhookWorker(id, cfg.Security.WebhookSecret, endpoints, jobs, logger.Logger) },
		"notifications":   func() runner { return workers.NewWebhookWorker(id, cfg.Security.WebhookSecret, endpoints, jobs, logger.Logger) },
	}

	var selected []runner
	if *all {
		for _, name := range []string{"risk_evaluation", "audit", "webhook"} {
			selected = append(selected, build[name]())
		}

		maintenance := scheduler.New(jobs, 5*time.Minute, 30*24*time.Hour, logger.Logger)
		if err := maintenance.Start("0 * * * *"); err != nil {
			logger.WithError(err).Warn("worker: maintenance scheduler failed to start")
		} else {
			defer maintenance.Stop()
		}
	} else {
		factory, ok := build[strings.TrimSpace(*queue)]
		if !ok {
			logger.Fatalf("unknown queue %q: available risk_evaluation, audit, webhook, notifications", *queue)
		}
		selected = append(selected, factory())
	}

	var wg sync.WaitGroup
	for _, w := range selected {
		wg.Add(1)
		go func(w runner) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	logger.WithField("worker_id", id).Info("worker: started")
	wg.Wait()
	logger.Info("worker: all workers stopped")
}

func resolveWorkerID(flagValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
