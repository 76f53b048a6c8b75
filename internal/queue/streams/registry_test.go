package streams

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/enroller/internal/queue"
)

func envelopeOf(eventType, version, data string) Envelope {
	return Envelope{EventID: "e-1", EventType: eventType, PayloadVersion: version, Data: json.RawMessage(data)}
}

func TestDefaultRegistryCoversEveryEventType(t *testing.T) {
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	at := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	valid := map[string]any{
		queue.EventRunTriggered:   queue.RunEvent{RunID: "r-1", ChainName: "Eligibility Review", Status: "pending", At: at},
		queue.EventRunCorrelated:  queue.RunEvent{RunID: "r-1", Identifier: "abcdefghijklmnop123", Channel: "email", At: at},
		queue.EventRunOrphaned:    queue.RunEvent{Channel: "webhook", Reason: "missing_identifier", At: at},
		queue.EventRetentionSwept: map[string]any{"started_at": at, "finished_at": at, "deleted": map[string]int64{"orphan_events": 2}, "total": 2},
		queue.EventHealthChecked:  map[string]any{"checked_at": at, "runs_by_status": map[string]int64{"pending": 1}, "stale_pending": 0},
	}
	if len(valid) != len(eventSchemas) {
		t.Fatalf("expected a sample for each of the %d schemas", len(eventSchemas))
	}
	for eventType, payload := range valid {
		raw, _ := json.Marshal(payload)
		if err := reg.ValidateEnvelope(envelopeOf(eventType, queue.PayloadVersion, string(raw))); err != nil {
			t.Fatalf("%s: unexpected validation error: %v", eventType, err)
		}
	}
}

func TestRegistryRejectsBadPayloads(t *testing.T) {
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	bad := []struct {
		eventType string
		payload   string
	}{
		{queue.EventRunTriggered, `{"run_id":"r-1","chain_name":"x","status":"running","at":"2026-03-10T02:00:00Z"}`},
		{queue.EventRunCorrelated, `{"run_id":"r-1","channel":"email","at":"2026-03-10T02:00:00Z"}`},
		{queue.EventRunOrphaned, `{"channel":"sms","reason":"x","at":"2026-03-10T02:00:00Z"}`},
		{queue.EventRetentionSwept, `{"started_at":"a","finished_at":"b","deleted":{"runs":-1},"total":0}`},
	}
	for _, tc := range bad {
		if err := reg.ValidateEnvelope(envelopeOf(tc.eventType, queue.PayloadVersion, tc.payload)); err == nil {
			t.Fatalf("%s: expected validation error for %s", tc.eventType, tc.payload)
		}
	}
	if err := reg.ValidateEnvelope(envelopeOf("unknown.event", queue.PayloadVersion, `{}`)); err == nil || !strings.Contains(err.Error(), "no schema") {
		t.Fatalf("expected unknown event error, got %v", err)
	}
	if err := reg.ValidateEnvelope(envelopeOf(queue.EventRunTriggered, "v9", `{}`)); err == nil || !strings.Contains(err.Error(), "payload version") {
		t.Fatalf("expected unsupported version error, got %v", err)
	}
	if err := reg.ValidateEnvelope(envelopeOf(queue.EventRunTriggered, queue.PayloadVersion, `{not json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestPublisherWithRegistryRejectsInvalidEvent(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	pub := NewPublisher(client, "enroller:runs", 0).WithRegistry(reg)

	if err := pub.Publish(ctx, queue.EventRunOrphaned, queue.RunEvent{Channel: "webhook", At: time.Now()}); err == nil {
		t.Fatal("expected orphan event without reason to be rejected")
	}
	if n := client.XLen(ctx, "enroller:runs").Val(); n != 0 {
		t.Fatalf("rejected event must not reach the stream, len=%d", n)
	}
	if err := pub.Publish(ctx, queue.EventRunOrphaned, queue.RunEvent{Channel: "webhook", Reason: "unknown_identifier", At: time.Now()}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n := client.XLen(ctx, "enroller:runs").Val(); n != 1 {
		t.Fatalf("expected one entry, got %d", n)
	}
}
