package retention

import (
	"context"
	"log"
	"time"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

// Auditor writes audit entries stamped with their retention date. A nil
// *Auditor or one without a store drops entries.
type Auditor struct {
	store  ledger.AuditStore
	policy Policy
	now    func() time.Time
	logger *log.Logger
}

func NewAuditor(store ledger.AuditStore, policy Policy, logger *log.Logger) *Auditor {
	if logger == nil {
		logger = log.New(log.Writer(), "[AUDIT] ", log.LstdFlags)
	}
	return &Auditor{store: store, policy: policy, now: time.Now, logger: logger}
}

// WithClock overrides the time source.
func (a *Auditor) WithClock(now func() time.Time) *Auditor {
	a.now = now
	return a
}

// Record persists entry. Failures are logged, never returned, so auditing
// cannot fail the operation being audited.
func (a *Auditor) Record(ctx context.Context, entry ledger.AuditEntry) {
	if a == nil || a.store == nil {
		return
	}
	now := a.now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.RetentionDate.IsZero() {
		entry.RetentionDate = a.policy.RetentionDate(CategoryAudit, entry.CreatedAt)
	}
	if err := a.store.RecordAudit(ctx, entry); err != nil {
		a.logger.Printf("record %s %s/%s: %v", entry.Action, entry.ResourceType, entry.ResourceID, err)
	}
}
