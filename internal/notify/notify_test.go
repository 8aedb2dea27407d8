package notify

import (
	"testing"

	"github.com/sirupsen/logrus"
)

type fakeBroadcaster struct {
	updated  []string
	changed  []string
}

func (f *fakeBroadcaster) EmitLoanUpdated(loanID, countryCode string, changes map[string]interface{}) {
	f.updated = append(f.updated, loanID)
}

func (f *fakeBroadcaster) EmitStatusChanged(loanID, countryCode, oldStatus, newStatus string) {
	f.changed = append(f.changed, loanID)
}

func TestListener_Handle_StatusChangeTakesPriority(t *testing.T) {
	fake := &fakeBroadcaster{}
	l := &Listener{hub: fake, log: logrus.New()}

	l.handle(`{"operation":"UPDATE","loan_id":"l1","country_code":"ES","old_status":"PENDING","new_status":"VALIDATING"}`)

	if len(fake.changed) != 1 || len(fake.updated) != 0 {
		t.Fatalf("expected a single status-changed emit, got changed=%v updated=%v", fake.changed, fake.updated)
	}
}

func TestListener_Handle_PlainUpdateWithoutStatusChange(t *testing.T) {
	fake := &fakeBroadcaster{}
	l := &Listener{hub: fake, log: logrus.New()}

	l.handle(`{"operation":"UPDATE","loan_id":"l1","country_code":"ES","old_status":"PENDING","new_status":"PENDING"}`)

	if len(fake.updated) != 1 || len(fake.changed) != 0 {
		t.Fatalf("expected a single loan-updated emit, got changed=%v updated=%v", fake.changed, fake.updated)
	}
}

func TestListener_Handle_MissingLoanIDIgnored(t *testing.T) {
	fake := &fakeBroadcaster{}
	l := &Listener{hub: fake, log: logrus.New()}

	l.handle(`{"operation":"UPDATE"}`)

	if len(fake.updated) != 0 || len(fake.changed) != 0 {
		t.Fatalf("expected no emits for missing loan id")
	}
}
