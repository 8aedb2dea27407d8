// Package notify listens on Postgres's loan_changes NOTIFY channel
// (populated by the notify_loan_change trigger, spec §4.E) and turns
// each payload into a hub broadcast. It is adapted from the teacher's
// pkg/pgnotify generic event bus, narrowed to this system's single
// channel and payload shape; the status-changed-vs-loan-updated
// distinction follows the original PostgresListener's
// _handle_loan_change rule exactly.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const channelLoanChanges = "loan_changes"

// Broadcaster is the subset of hub.Hub that notify depends on, kept
// narrow so tests can supply a fake.
type Broadcaster interface {
	EmitLoanUpdated(loanID, countryCode string, changes map[string]interface{})
	EmitStatusChanged(loanID, countryCode, oldStatus, newStatus string)
}

// changePayload mirrors the JSON object the notify_loan_change()
// trigger function builds for each row event.
type changePayload struct {
	Operation   string `json:"operation"`
	LoanID      string `json:"loan_id"`
	CountryCode string `json:"country_code"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
}

// Listener wraps a pq.Listener bound to the loan_changes channel.
type Listener struct {
	listener *pq.Listener
	hub      Broadcaster
	log      *logrus.Logger

	stop chan struct{}
	done chan struct{}
}

// NewListener opens a pq.Listener against dsn and prepares it to
// forward loan_changes notifications to hub. Call Start to begin
// listening.
func NewListener(dsn string, hub Broadcaster, log *logrus.Logger) *Listener {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).Warn("notify: listener connection event")
		}
	}
	pqListener := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)

	return &Listener{
		listener: pqListener,
		hub:      hub,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start subscribes to loan_changes and begins the consume loop in the
// background.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.listener.Listen(channelLoanChanges); err != nil {
		return err
	}
	go l.run(ctx)
	return nil
}

// Close stops listening and releases the underlying connection.
func (l *Listener) Close() error {
	close(l.stop)
	<-l.done
	return l.listener.Close()
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case n := <-l.listener.Notify:
			if n == nil {
				continue
			}
			l.handle(n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.log.WithError(err).Debug("notify: ping failed")
				}
			}()
		}
	}
}

func (l *Listener) handle(raw string) {
	var change changePayload
	if err := json.Unmarshal([]byte(raw), &change); err != nil {
		l.log.WithError(err).Warn("notify: invalid loan_changes payload")
		return
	}
	if change.LoanID == "" {
		return
	}

	if change.OldStatus != "" && change.OldStatus != change.NewStatus {
		l.hub.EmitStatusChanged(change.LoanID, change.CountryCode, change.OldStatus, change.NewStatus)
		return
	}
	if change.Operation == "INSERT" || change.Operation == "UPDATE" {
		changes := map[string]interface{}{}
		if change.NewStatus != "" {
			changes["status"] = change.NewStatus
		}
		l.hub.EmitLoanUpdated(change.LoanID, change.CountryCode, changes)
	}
}
