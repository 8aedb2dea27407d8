package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"

	"github.com/coderTtxi12/loan-system/internal/cache"
	"github.com/coderTtxi12/loan-system/internal/config"
	"github.com/coderTtxi12/loan-system/internal/httpapi"
	"github.com/coderTtxi12/loan-system/internal/hub"
	"github.com/coderTtxi12/loan-system/internal/jobqueue"
	"github.com/coderTtxi12/loan-system/internal/loanstore"
	"github.com/coderTtxi12/loan-system/internal/logging"
	"github.com/coderTtxi12/loan-system/internal/notify"
	"github.com/coderTtxi12/loan-system/internal/pii"
	"github.com/coderTtxi12/loan-system/internal/platform/database"
	"github.com/coderTtxi12/loan-system/internal/platform/migrations"
	"github.com/coderTtxi12/loan-system/internal/service"
	"github.com/coderTtxi12/loan-system/internal/strategy"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env)")
	runMigrations := flag.Bool("migrate", true, "apply embedded database migrations on startup")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Logging)

	dsnVal := resolveDSN(*dsn, cfg)
	if dsnVal == "" {
		logger.Fatal("a PostgreSQL DSN is required (set -dsn, DATABASE_DSN or database.dsn)")
	}

	rootCtx := context.Background()

	db, err := database.Open(rootCtx, dsnVal)
	if err != nil {
		logger.WithError(err).Fatal("connect to postgres")
	}
	database.ConfigurePool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifeSecs)*time.Second)

	if *runMigrations {
		if err := migrations.Apply(db); err != nil {
			logger.WithError(err).Fatal("apply migrations")
		}
	}

	sqlxDB := sqlx.NewDb(db, "postgres")
	loans := loanstore.New(sqlxDB)
	jobs := jobqueue.New(sqlxDB)

	registry := strategy.NewRegistry(strategy.Spain{}, strategy.Mexico{}, strategy.Colombia{}, strategy.Brazil{})
	codec := pii.NewCodec(cfg.Security.PIIMasterSecret)

	var loanCache *cache.Cache
	if strings.TrimSpace(cfg.Cache.URL) != "" {
		c, err := cache.New(rootCtx, cfg.Cache.URL,
			time.Duration(cfg.Cache.DialMSecs)*time.Millisecond,
			time.Duration(cfg.Cache.LoanTTL)*time.Second,
			time.Duration(cfg.Cache.StatsTTL)*time.Second)
		if err != nil {
			logger.WithError(err).Warn("cache unavailable, continuing without it")
		} else {
			loanCache = c
		}
	}

	svc := service.New(registry, loans, jobs, codec, loanCache, logger.Logger)
	loanHub := hub.New(logger.Logger)

	listener := notify.NewListener(dsnVal, loanHub, logger.Logger)
	if err := listener.Start(rootCtx); err != nil {
		logger.WithError(err).Warn("change-notification listener unavailable")
	}

	router := httpapi.NewRouter(httpapi.Config{
		Service:       svc,
		Loans:         loans,
		Hub:           loanHub,
		DB:            db,
		WebhookSecret: cfg.Security.WebhookSecret,
		JWTSecret:     cfg.JWT.Secret,
		Log:           logger.Logger,
	})

	listenAddr := determineAddr(*addr, cfg)
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", listenAddr).Info("apiserver: listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("apiserver: listen failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("apiserver: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var shutdownErr *multierror.Error
	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = multierror.Append(shutdownErr, err)
	}
	if err := listener.Close(); err != nil {
		shutdownErr = multierror.Append(shutdownErr, err)
	}
	if loanCache != nil {
		if err := loanCache.Close(); err != nil {
			shutdownErr = multierror.Append(shutdownErr, err)
		}
	}
	if err := db.Close(); err != nil {
		shutdownErr = multierror.Append(shutdownErr, err)
	}
	if shutdownErr != nil {
		logger.WithError(shutdownErr).Error("apiserver: shutdown encountered errors")
	}
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagAddr); trimmed != "" {
		return trimmed
	}
	host := strings.TrimSpace(cfg.Server.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	return host + ":" + strconv.Itoa(port)
}

func resolveDSN(flagDSN string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	if envDSN := strings.TrimSpace(os.Getenv("DATABASE_DSN")); envDSN != "" {
		return envDSN
	}
	return strings.TrimSpace(cfg.Database.DSN)
}

