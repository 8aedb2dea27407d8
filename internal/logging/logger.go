// Package logging wraps logrus with the level/format selection the
// rest of the service expects, plus field helpers for the identifiers that
// show up on almost every log line here: loan id, queue name, worker id,
// trace id.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Config controls level and format; output always goes to stdout.
type Config struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
}

// Logger wraps *logrus.Logger.
type Logger struct {
	*logrus.Logger
}

// New builds a Logger from Config, defaulting to info/text.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l}
}

// NewDefault returns an info-level text logger, useful in tests and CLI
// entry points that haven't loaded Config yet.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "text"})
}

// WithField returns a log entry with one field attached.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a log entry with several fields attached.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// ForWorker returns a log entry pre-tagged with queue and worker id, the
// shape every worker log line in §4.H carries.
func (l *Logger) ForWorker(queue, workerID string) *logrus.Entry {
	return l.WithFields(logrus.Fields{"queue": queue, "worker_id": workerID})
}

// ForLoan returns a log entry pre-tagged with a loan id.
func (l *Logger) ForLoan(loanID string) *logrus.Entry {
	return l.WithField("loan_id", loanID)
}
