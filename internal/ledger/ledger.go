package ledger

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of an automation run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Source identifies the ingress channel that delivered correlated content.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceEmail   Source = "email"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("ledger: record not found")
	// ErrIdentifierTaken is returned when a run identifier is already recorded on another run.
	ErrIdentifierTaken = errors.New("ledger: run identifier already recorded")
)

// AutomationRun is one triggered execution of an external chain.
type AutomationRun struct {
	ID                       string            `json:"id"`
	ChainName                string            `json:"chain_name"`
	TriggerEmail             string            `json:"trigger_email"`
	RequestPayload           map[string]string `json:"request_payload"`
	RunIdentifier            *string           `json:"run_identifier,omitempty"`
	Status                   Status            `json:"status"`
	RawResponse              string            `json:"raw_response"`
	CorrelatedResponse       *string           `json:"correlated_response,omitempty"`
	CorrelatedResponseSource *Source           `json:"correlated_response_source,omitempty"`
	AgentName                *string           `json:"agent_name,omitempty"`
	CorrelatedAt             *time.Time        `json:"correlated_at,omitempty"`
	CreatedAt                time.Time         `json:"created_at"`
}

// Identifier returns the run identifier or an empty string.
func (r AutomationRun) Identifier() string {
	if r.RunIdentifier == nil {
		return ""
	}
	return *r.RunIdentifier
}

// Correlation is the content delivered by a callback for a run identifier.
type Correlation struct {
	Identifier string
	Content    string
	Source     Source
	AgentName  string
	At         time.Time
}

// OrphanEvent is callback content that could not be attributed to any known run.
type OrphanEvent struct {
	ID         string    `json:"id"`
	Channel    Source    `json:"channel"`
	Identifier string    `json:"identifier,omitempty"`
	Reason     string    `json:"reason"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
}

// AuditEntry is an audit trail row; RetentionDate is computed when written.
type AuditEntry struct {
	ID            string            `json:"id"`
	Action        string            `json:"action"`
	ResourceType  string            `json:"resource_type"`
	ResourceID    string            `json:"resource_id"`
	Context       map[string]string `json:"context,omitempty"`
	Details       map[string]any    `json:"details,omitempty"`
	RetentionDate time.Time         `json:"retention_date"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ChainPreset is a named shortcut for a frequently triggered chain.
type ChainPreset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ChainName string    `json:"chain_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Ledger is the durable store of automation runs.
type Ledger interface {
	InsertRun(ctx context.Context, run AutomationRun) (AutomationRun, error)
	GetRun(ctx context.Context, id string) (AutomationRun, error)
	FindRunByIdentifier(ctx context.Context, identifier string) (AutomationRun, bool, error)
	ListRecentRuns(ctx context.Context, limit int) ([]AutomationRun, error)
	ClearRuns(ctx context.Context) (int64, error)
	// MergeCorrelation locates the run by identifier and applies the correlation in a single
	// atomic step. The bool is false when no run carries the identifier.
	MergeCorrelation(ctx context.Context, c Correlation) (AutomationRun, bool, error)
	PruneRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountRunsByStatus(ctx context.Context) (map[Status]int64, error)
	CountStalePending(ctx context.Context, before time.Time) (int64, error)
}

// OrphanStore keeps callbacks that matched no run for manual inspection.
type OrphanStore interface {
	RecordOrphan(ctx context.Context, ev OrphanEvent) (OrphanEvent, error)
	ListOrphans(ctx context.Context, limit int) ([]OrphanEvent, error)
	PruneOrphansBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditStore persists audit entries. PruneAuditBefore removes entries whose retention
// date precedes now.
type AuditStore interface {
	RecordAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)
	PruneAuditBefore(ctx context.Context, now time.Time) (int64, error)
}

// PresetStore manages named chain presets.
type PresetStore interface {
	AddPreset(ctx context.Context, p ChainPreset) (ChainPreset, error)
	ListPresets(ctx context.Context) ([]ChainPreset, error)
	RemovePreset(ctx context.Context, name string) error
}

// ClampLimit bounds list sizes to [1, MaxListLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
