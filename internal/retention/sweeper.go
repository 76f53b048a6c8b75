package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
	"github.com/mohammad-safakhou/enroller/internal/queue"
	"github.com/mohammad-safakhou/enroller/internal/telemetry"
)

// PurgeFunc deletes expired records. cutoff is now minus the category
// horizon; now is passed for markers that store an expiry date instead.
type PurgeFunc func(ctx context.Context, now, cutoff time.Time) (int64, error)

// Target is one purgeable record class.
type Target struct {
	Category Category
	Name     string
	Purge    PurgeFunc
}

// Report summarises one sweep cycle.
type Report struct {
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Deleted    map[string]int64     `json:"deleted"`
	Cutoffs    map[string]time.Time `json:"cutoffs"`
	Failures   map[string]string    `json:"failures,omitempty"`
	Total      int64                `json:"total"`
}

// OK reports whether every target succeeded.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Sweeper runs retention cycles over a fixed list of targets.
type Sweeper struct {
	policy     Policy
	targets    []Target
	ledger     ledger.Ledger
	staleAfter time.Duration
	auditor    *Auditor
	events     queue.Publisher
	metrics    *telemetry.Metrics
	logger     *log.Logger
	now        func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

func WithSweepAuditor(a *Auditor) SweeperOption { return func(s *Sweeper) { s.auditor = a } }
func WithSweepEvents(p queue.Publisher) SweeperOption {
	return func(s *Sweeper) { s.events = p }
}
func WithSweepMetrics(m *telemetry.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}
func WithSweepLogger(l *log.Logger) SweeperOption { return func(s *Sweeper) { s.logger = l } }
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithStaleAfter sets the age after which a pending run is reported as stale
// by HealthCheck.
func WithStaleAfter(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.staleAfter = d }
}

// WithLedger enables HealthCheck run statistics.
func WithLedger(l ledger.Ledger) SweeperOption { return func(s *Sweeper) { s.ledger = l } }

func NewSweeper(policy Policy, targets []Target, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		policy:     policy,
		targets:    targets,
		staleAfter: 7 * 24 * time.Hour,
		events:     queue.Nop{},
		logger:     log.New(log.Writer(), "[RETENTION] ", log.LstdFlags),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCycle purges every target once. A failing target is logged and recorded
// in the report; the remaining targets still run.
func (s *Sweeper) RunCycle(ctx context.Context) Report {
	now := s.now().UTC()
	rep := Report{
		StartedAt: now,
		Deleted:   map[string]int64{},
		Cutoffs:   map[string]time.Time{},
		Failures:  map[string]string{},
	}
	for _, t := range s.targets {
		name := t.label()
		cutoff := s.policy.Cutoff(t.Category, now)
		rep.Cutoffs[name] = cutoff
		n, err := s.purge(ctx, t, now, cutoff)
		if err != nil {
			rep.Failures[name] = err.Error()
			s.metrics.SweepFailed(ctx, name)
			s.logger.Printf("purge %s (cutoff %s) failed: %v", name, cutoff.Format(time.RFC3339), err)
			continue
		}
		rep.Deleted[name] = n
		rep.Total += n
		s.metrics.RetentionPurged(ctx, name, n)
	}
	rep.FinishedAt = s.now().UTC()
	s.metrics.SweepCompleted(ctx)

	details := map[string]any{"total_deleted": rep.Total}
	for name, n := range rep.Deleted {
		details["deleted_"+name] = n
	}
	for name, msg := range rep.Failures {
		details["failed_"+name] = msg
	}
	s.auditor.Record(ctx, ledger.AuditEntry{
		Action:       "retention.sweep",
		ResourceType: "retention",
		Context:      map[string]string{"actor": "scheduler"},
		Details:      details,
	})
	if err := s.events.Publish(ctx, queue.EventRetentionSwept, rep); err != nil {
		s.logger.Printf("publish %s: %v", queue.EventRetentionSwept, err)
	}
	s.logger.Printf("sweep finished: %d records deleted, %d targets failed", rep.Total, len(rep.Failures))
	return rep
}

func (s *Sweeper) purge(ctx context.Context, t Target, now, cutoff time.Time) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if t.Purge == nil {
		return 0, fmt.Errorf("no purge function")
	}
	return t.Purge(ctx, now, cutoff)
}

func (t Target) label() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.Category)
}

// HealthReport is the outcome of the weekly health check.
type HealthReport struct {
	CheckedAt    time.Time        `json:"checked_at"`
	RunsByStatus map[string]int64 `json:"runs_by_status"`
	StalePending int64            `json:"stale_pending"`
	StaleBefore  time.Time        `json:"stale_before"`
}

// HealthCheck reports run counts by status and pending runs that have waited
// longer than the stale threshold for a callback.
func (s *Sweeper) HealthCheck(ctx context.Context) (HealthReport, error) {
	now := s.now().UTC()
	rep := HealthReport{CheckedAt: now, RunsByStatus: map[string]int64{}, StaleBefore: now.Add(-s.staleAfter)}
	if s.ledger == nil {
		return rep, fmt.Errorf("health check requires a ledger")
	}
	counts, err := s.ledger.CountRunsByStatus(ctx)
	if err != nil {
		return rep, fmt.Errorf("count runs: %w", err)
	}
	for st, n := range counts {
		rep.RunsByStatus[string(st)] = n
	}
	rep.StalePending, err = s.ledger.CountStalePending(ctx, rep.StaleBefore)
	if err != nil {
		return rep, fmt.Errorf("count stale runs: %w", err)
	}

	s.auditor.Record(ctx, ledger.AuditEntry{
		Action:       "retention.health",
		ResourceType: "retention",
		Context:      map[string]string{"actor": "scheduler"},
		Details: map[string]any{
			"pending":       rep.RunsByStatus[string(ledger.StatusPending)],
			"completed":     rep.RunsByStatus[string(ledger.StatusCompleted)],
			"error":         rep.RunsByStatus[string(ledger.StatusError)],
			"stale_pending": rep.StalePending,
		},
	})
	if err := s.events.Publish(ctx, queue.EventHealthChecked, rep); err != nil {
		s.logger.Printf("publish %s: %v", queue.EventHealthChecked, err)
	}
	if rep.StalePending > 0 {
		s.logger.Printf("health: %d pending runs older than %s have no callback", rep.StalePending, s.staleAfter)
	}
	return rep, nil
}
