// Package queue publishes run lifecycle events to an external bus.
package queue

import (
	"context"
	"sync"
	"time"
)

// Event types emitted by the engine.
const (
	EventRunTriggered   = "run.triggered"
	EventRunCorrelated  = "run.correlated"
	EventRunOrphaned    = "run.orphaned"
	EventRetentionSwept = "retention.swept"
	EventHealthChecked  = "retention.health"
)

// PayloadVersion is stamped on every published envelope.
const PayloadVersion = "v1"

// Publisher delivers an event payload. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// RunEvent is the payload of run.* events.
type RunEvent struct {
	RunID      string    `json:"run_id,omitempty"`
	Identifier string    `json:"run_identifier,omitempty"`
	ChainName  string    `json:"chain_name,omitempty"`
	Status     string    `json:"status,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	AgentName  string    `json:"agent_name,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Published
}

// Published is one recorded event.
type Published struct {
	Type    string
	Payload any
}

func (r *Recorder) Publish(_ context.Context, eventType string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Published{Type: eventType, Payload: payload})
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
