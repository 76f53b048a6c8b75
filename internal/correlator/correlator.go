// Package correlator matches asynchronous callbacks to triggered runs.
package correlator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mohammad-safakhou/enroller/internal/decision"
	"github.com/mohammad-safakhou/enroller/internal/ledger"
	"github.com/mohammad-safakhou/enroller/internal/queue"
	"github.com/mohammad-safakhou/enroller/internal/retention"
	"github.com/mohammad-safakhou/enroller/internal/telemetry"
)

// Orphan reasons.
const (
	ReasonNoIdentifier      = "no_identifier"
	ReasonUnknownIdentifier = "unknown_identifier"
)

// Event is a decoded callback from either channel.
type Event struct {
	Channel    ledger.Source
	Identifier string
	Content    string
	AgentName  string
	// Raw is the original ingress body, kept for orphans.
	Raw string
}

// Outcome reports what a callback resolved to.
type Outcome struct {
	Matched  bool                  `json:"matched"`
	Run      *ledger.AutomationRun `json:"run,omitempty"`
	Orphan   *ledger.OrphanEvent   `json:"orphan,omitempty"`
	Decision *decision.Record      `json:"decision,omitempty"`
}

// Correlator merges callback content into the ledger. It never creates runs.
type Correlator struct {
	ledger  ledger.Ledger
	orphans ledger.OrphanStore
	auditor *retention.Auditor
	events  queue.Publisher
	metrics *telemetry.Metrics
	logger  *log.Logger
	now     func() time.Time
}

// Option configures a Correlator.
type Option func(*Correlator)

func WithAuditor(a *retention.Auditor) Option { return func(c *Correlator) { c.auditor = a } }
func WithEvents(p queue.Publisher) Option     { return func(c *Correlator) { c.events = p } }
func WithMetrics(m *telemetry.Metrics) Option { return func(c *Correlator) { c.metrics = m } }
func WithLogger(l *log.Logger) Option         { return func(c *Correlator) { c.logger = l } }
func WithClock(now func() time.Time) Option   { return func(c *Correlator) { c.now = now } }

func New(l ledger.Ledger, orphans ledger.OrphanStore, opts ...Option) *Correlator {
	c := &Correlator{
		ledger:  l,
		orphans: orphans,
		events:  queue.Nop{},
		logger:  log.New(log.Writer(), "[CORRELATE] ", log.LstdFlags),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Correlate applies ev. The lookup and the update happen in one ledger call so
// concurrent callbacks for the same identifier cannot lose a write; the last
// one wins. Callbacks that match nothing are kept as orphans. An error is
// returned only when the ledger itself fails.
func (c *Correlator) Correlate(ctx context.Context, ev Event) (Outcome, error) {
	ctx, span := telemetry.Tracer("enroller/correlator").Start(ctx, "correlator.correlate")
	defer span.End()
	span.SetAttributes(attribute.String("channel", string(ev.Channel)))

	ev.Identifier = strings.TrimSpace(ev.Identifier)
	content := strings.TrimSpace(ev.Content)
	if content == "" {
		content = decision.NoContent
	}
	if ev.Identifier == "" {
		return c.orphan(ctx, ev, ReasonNoIdentifier)
	}
	span.SetAttributes(attribute.String("run.identifier", ev.Identifier))

	run, ok, err := c.ledger.MergeCorrelation(ctx, ledger.Correlation{
		Identifier: ev.Identifier,
		Content:    content,
		Source:     ev.Channel,
		AgentName:  strings.TrimSpace(ev.AgentName),
		At:         c.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		c.metrics.Correlated(ctx, string(ev.Channel), "error")
		return Outcome{}, fmt.Errorf("merge correlation for %s: %w", ev.Identifier, err)
	}
	if !ok {
		return c.orphan(ctx, ev, ReasonUnknownIdentifier)
	}

	rec := decision.Parse(content)
	c.metrics.Correlated(ctx, string(ev.Channel), "matched")
	c.auditor.Record(ctx, ledger.AuditEntry{
		Action:       "run.correlated",
		ResourceType: "automation_run",
		ResourceID:   run.ID,
		Context:      map[string]string{"channel": string(ev.Channel)},
		Details: map[string]any{
			"run_identifier":      ev.Identifier,
			"agent_name":          ev.AgentName,
			"approval_likelihood": rec.ApprovalLikelihood,
			"content_bytes":       len(content),
		},
	})
	c.publish(ctx, queue.EventRunCorrelated, queue.RunEvent{
		RunID:      run.ID,
		Identifier: ev.Identifier,
		ChainName:  run.ChainName,
		Status:     string(run.Status),
		Channel:    string(ev.Channel),
		AgentName:  ev.AgentName,
		At:         c.now().UTC(),
	})
	c.logger.Printf("%s callback merged into run %s (%s)", ev.Channel, run.ID, ev.Identifier)
	return Outcome{Matched: true, Run: &run, Decision: &rec}, nil
}

func (c *Correlator) orphan(ctx context.Context, ev Event, reason string) (Outcome, error) {
	body := ev.Content
	if strings.TrimSpace(ev.Raw) != "" {
		body = ev.Raw
	}
	orphan, err := c.orphans.RecordOrphan(ctx, ledger.OrphanEvent{
		Channel:    ev.Channel,
		Identifier: ev.Identifier,
		Reason:     reason,
		Content:    body,
		ReceivedAt: c.now().UTC(),
	})
	if err != nil {
		c.metrics.Correlated(ctx, string(ev.Channel), "error")
		return Outcome{}, fmt.Errorf("record orphan: %w", err)
	}
	c.metrics.Correlated(ctx, string(ev.Channel), "orphaned")
	c.auditor.Record(ctx, ledger.AuditEntry{
		Action:       "callback.orphaned",
		ResourceType: "orphan_event",
		ResourceID:   orphan.ID,
		Context:      map[string]string{"channel": string(ev.Channel)},
		Details:      map[string]any{"reason": reason, "run_identifier": ev.Identifier},
	})
	c.publish(ctx, queue.EventRunOrphaned, queue.RunEvent{
		Identifier: ev.Identifier,
		Channel:    string(ev.Channel),
		Reason:     reason,
		At:         orphan.ReceivedAt,
	})
	c.logger.Printf("%s callback orphaned (%s) identifier=%q", ev.Channel, reason, ev.Identifier)
	return Outcome{Orphan: &orphan}, nil
}

func (c *Correlator) publish(ctx context.Context, eventType string, payload queue.RunEvent) {
	if err := c.events.Publish(ctx, eventType, payload); err != nil {
		c.logger.Printf("publish %s: %v", eventType, err)
	}
}
