package automation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/enroller/internal/ledger"
	"github.com/mohammad-safakhou/enroller/internal/queue"
	"github.com/mohammad-safakhou/enroller/internal/retention"
	"github.com/mohammad-safakhou/enroller/internal/telemetry"
)

// ErrTriggerFailed marks a trigger whose outbound call failed. The run is
// still recorded with status error.
var ErrTriggerFailed = errors.New("automation: trigger failed")

// Poster sends a trigger request. *Client implements it.
type Poster interface {
	Post(ctx context.Context, req TriggerRequest) (Response, error)
}

// Result describes a recorded trigger.
type Result struct {
	Run        ledger.AutomationRun `json:"run"`
	Identifier string               `json:"run_identifier,omitempty"`
	Strategy   string               `json:"strategy,omitempty"`
}

// Service triggers chains and records each attempt in the ledger.
type Service struct {
	client    Poster
	extractor *Extractor
	ledger    ledger.Ledger
	auditor   *retention.Auditor
	events    queue.Publisher
	metrics   *telemetry.Metrics
	logger    *log.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithExtractor(e *Extractor) Option       { return func(s *Service) { s.extractor = e } }
func WithAuditor(a *retention.Auditor) Option { return func(s *Service) { s.auditor = a } }
func WithEvents(p queue.Publisher) Option     { return func(s *Service) { s.events = p } }
func WithMetrics(m *telemetry.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l *log.Logger) Option         { return func(s *Service) { s.logger = l } }

func NewService(client Poster, l ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		client:    client,
		extractor: NewExtractor(),
		ledger:    l,
		events:    queue.Nop{},
		logger:    log.New(log.Writer(), "[TRIGGER] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger starts a chain run and records it. A failed outbound call still
// yields a recorded run together with an error wrapping ErrTriggerFailed.
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (Result, error) {
	req.ChainName = strings.TrimSpace(req.ChainName)
	req.TriggerEmail = strings.TrimSpace(req.TriggerEmail)
	if req.ChainName == "" {
		return Result{}, fmt.Errorf("chain name is required")
	}
	if req.StartingVariables == nil {
		req.StartingVariables = map[string]string{}
	}

	ctx, span := telemetry.Tracer("enroller/automation").Start(ctx, "automation.trigger")
	defer span.End()
	span.SetAttributes(attribute.String("chain.name", req.ChainName))

	started := time.Now()
	resp, callErr := s.client.Post(ctx, req)
	elapsed := time.Since(started)

	run := ledger.AutomationRun{
		ChainName:      req.ChainName,
		TriggerEmail:   req.TriggerEmail,
		RequestPayload: req.StartingVariables,
		Status:         ledger.StatusPending,
	}
	var (
		res        Result
		triggerErr error
	)
	switch {
	case callErr != nil:
		run.Status = ledger.StatusError
		run.RawResponse = callErr.Error()
		if resp.Body != "" {
			run.RawResponse = fmt.Sprintf("%s\n%s", callErr.Error(), resp.Body)
		}
		triggerErr = fmt.Errorf("%w: %v", ErrTriggerFailed, callErr)
	case !resp.OK():
		run.Status = ledger.StatusError
		run.RawResponse = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Body)
		triggerErr = fmt.Errorf("%w: endpoint returned HTTP %d", ErrTriggerFailed, resp.StatusCode)
	default:
		run.RawResponse = resp.Body
		res.Identifier, res.Strategy = s.extractor.Extract(resp.Body)
		run.RunIdentifier = ledger.StringPtr(res.Identifier)
		if res.Identifier == "" {
			s.logger.Printf("chain %q: no run identifier found in %d byte reply", req.ChainName, len(resp.Body))
		}
	}

	stored, err := s.ledger.InsertRun(ctx, run)
	if errors.Is(err, ledger.ErrIdentifierTaken) {
		s.logger.Printf("chain %q: identifier %s already recorded, storing run without it", req.ChainName, res.Identifier)
		run.RunIdentifier = nil
		res.Identifier, res.Strategy = "", ""
		stored, err = s.ledger.InsertRun(ctx, run)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert run")
		s.metrics.TriggerCompleted(ctx, "store_error", elapsed)
		return Result{}, fmt.Errorf("record run: %w", err)
	}
	res.Run = stored

	s.metrics.TriggerCompleted(ctx, string(stored.Status), elapsed)
	s.auditor.Record(ctx, ledger.AuditEntry{
		Action:       "run.triggered",
		ResourceType: "automation_run",
		ResourceID:   stored.ID,
		Context:      map[string]string{"trigger_email": stored.TriggerEmail},
		Details: map[string]any{
			"chain_name":     stored.ChainName,
			"status":         string(stored.Status),
			"run_identifier": stored.Identifier(),
			"strategy":       res.Strategy,
		},
	})
	if err := s.events.Publish(ctx, queue.EventRunTriggered, queue.RunEvent{
		RunID:      stored.ID,
		Identifier: stored.Identifier(),
		ChainName:  stored.ChainName,
		Status:     string(stored.Status),
		At:         stored.CreatedAt,
	}); err != nil {
		s.logger.Printf("publish %s for run %s: %v", queue.EventRunTriggered, stored.ID, err)
	}

	if triggerErr != nil {
		span.RecordError(triggerErr)
		span.SetStatus(codes.Error, "trigger failed")
		s.logger.Printf("chain %q: run %s recorded as error: %v", req.ChainName, stored.ID, triggerErr)
		return res, triggerErr
	}
	span.SetAttributes(attribute.String("run.identifier", res.Identifier))
	return res, nil
}
