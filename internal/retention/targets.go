package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
)

// archiveBatch bounds how many runs are archived per upload.
const archiveBatch = 500

// Archiver copies records to long-term storage before they are purged.
type Archiver interface {
	Archive(ctx context.Context, category string, records []any) (string, error)
}

// expiredRunSource is implemented by ledgers that can list and delete runs
// individually, which archive-before-purge needs.
type expiredRunSource interface {
	ExpiredRuns(ctx context.Context, cutoff time.Time, limit int) ([]ledger.AutomationRun, error)
	DeleteRunsByID(ctx context.Context, ids []string) (int64, error)
}

// SessionPurger removes expired admin sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// RunsTarget purges automation runs older than the medical-records horizon.
// With an archiver, each batch is uploaded before it is deleted and a failed
// upload leaves the batch in place.
func RunsTarget(l ledger.Ledger, archiver Archiver) Target {
	return Target{
		Category: CategoryMedicalRecords,
		Name:     "automation_runs",
		Purge: func(ctx context.Context, _, cutoff time.Time) (int64, error) {
			src, ok := l.(expiredRunSource)
			if archiver == nil || !ok {
				return l.PruneRunsBefore(ctx, cutoff)
			}
			var total int64
			for {
				runs, err := src.ExpiredRuns(ctx, cutoff, archiveBatch)
				if err != nil {
					return total, err
				}
				if len(runs) == 0 {
					return total, nil
				}
				records := make([]any, len(runs))
				ids := make([]string, len(runs))
				for i, r := range runs {
					records[i] = r
					ids[i] = r.ID
				}
				if _, err := archiver.Archive(ctx, "automation_runs", records); err != nil {
					return total, fmt.Errorf("archive runs: %w", err)
				}
				n, err := src.DeleteRunsByID(ctx, ids)
				total += n
				if err != nil {
					return total, err
				}
				if len(runs) < archiveBatch {
					return total, nil
				}
			}
		},
	}
}

// OrphansTarget purges orphan events past the orphan horizon.
func OrphansTarget(s ledger.OrphanStore) Target {
	return Target{
		Category: CategoryOrphans,
		Name:     "orphan_events",
		Purge: func(ctx context.Context, _, cutoff time.Time) (int64, error) {
			return s.PruneOrphansBefore(ctx, cutoff)
		},
	}
}

// AuditTarget purges audit entries whose stored retention date has passed.
func AuditTarget(s ledger.AuditStore) Target {
	return Target{
		Category: CategoryAudit,
		Name:     "audit_logs",
		Purge: func(ctx context.Context, now, _ time.Time) (int64, error) {
			return s.PruneAuditBefore(ctx, now)
		},
	}
}

// SessionsTarget purges expired admin sessions.
func SessionsTarget(s SessionPurger) Target {
	return Target{
		Category: CategorySessions,
		Name:     "sessions",
		Purge: func(ctx context.Context, now, _ time.Time) (int64, error) {
			return s.PurgeExpired(ctx, now)
		},
	}
}
