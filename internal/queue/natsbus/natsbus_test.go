package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/mohammad-safakhou/enroller/internal/queue"
)

type fakeJetStream struct {
	mu        sync.Mutex
	published map[string][][]byte
	subject   string
	handler   nats.MsgHandler
	subOpts   int
	err       error
}

func (f *fakeJetStream) Publish(subj string, data []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[subj] = append(f.published[subj], data)
	return &nats.PubAck{Stream: "ENROLLER", Sequence: uint64(len(f.published[subj]))}, nil
}

func (f *fakeJetStream) Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subject, f.handler, f.subOpts = subj, cb, len(opts)
	return &nats.Subscription{Subject: subj}, nil
}

type recordingAcker struct{ acks, naks, terms int }

func (a *recordingAcker) Ack(...nats.AckOpt) error  { a.acks++; return nil }
func (a *recordingAcker) Nak(...nats.AckOpt) error  { a.naks++; return nil }
func (a *recordingAcker) Term(...nats.AckOpt) error { a.terms++; return nil }

func TestSubject(t *testing.T) {
	cases := map[[2]string]string{
		{"enroller.runs", "run.correlated"}: "enroller.runs.run.correlated",
		{"", "run.orphaned"}:                "run.orphaned",
		{"enroller", ">"}:                   "enroller.>",
	}
	for in, want := range cases {
		if got := Subject(in[0], in[1]); got != want {
			t.Fatalf("Subject(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestEncode(t *testing.T) {
	b, err := Encode(queue.EventRunOrphaned, queue.RunEvent{Identifier: "late-identifier-01", Reason: "unknown_identifier"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != queue.EventRunOrphaned || msg.EventID == "" || msg.PayloadVersion != queue.PayloadVersion {
		t.Fatalf("unexpected message: %+v", msg)
	}
	var ev queue.RunEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.Reason != "unknown_identifier" {
		t.Fatalf("unexpected payload: %+v", ev)
	}
}

func TestNilBus(t *testing.T) {
	var b *Bus
	if err := b.Publish(context.Background(), queue.EventRunTriggered, nil); err == nil {
		t.Fatal("expected error from nil bus")
	}
	b.Close()
}

func TestPublishUsesEventSubject(t *testing.T) {
	js := &fakeJetStream{}
	bus := &Bus{js: js, prefix: "enroller.runs"}

	ev := queue.RunEvent{RunID: "r-1", Identifier: "abc123def456ghi789", Channel: "webhook"}
	if err := bus.Publish(context.Background(), queue.EventRunCorrelated, ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	sent := js.published["enroller.runs.run.correlated"]
	if len(sent) != 1 {
		t.Fatalf("expected one message on the correlated subject, got %v", js.published)
	}
	var msg Message
	if err := json.Unmarshal(sent[0], &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var got queue.RunEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.EventType != queue.EventRunCorrelated || got.Identifier != ev.Identifier {
		t.Fatalf("unexpected message: %+v payload %+v", msg, got)
	}

	js.err = errors.New("no responders")
	if err := bus.Publish(context.Background(), queue.EventRunCorrelated, ev); err == nil {
		t.Fatal("expected publish error to surface")
	}
}

func TestSubscribeDeliversEvents(t *testing.T) {
	js := &fakeJetStream{}
	bus := &Bus{js: js, prefix: "enroller.runs"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Message
	closer, err := bus.Subscribe(ctx, "audit", func(_ context.Context, msg Message) error {
		got = append(got, msg)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if js.subject != "enroller.runs.>" || js.subOpts != 3 {
		t.Fatalf("unexpected subscription: subject=%q opts=%d", js.subject, js.subOpts)
	}

	data, err := Encode(queue.EventRunTriggered, queue.RunEvent{RunID: "r-9"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	js.handler(&nats.Msg{Subject: "enroller.runs.run.triggered", Data: data})
	js.handler(&nats.Msg{Subject: "enroller.runs.run.triggered", Data: []byte("{broken")})
	if len(got) != 1 || got[0].EventType != queue.EventRunTriggered {
		t.Fatalf("expected one decoded event, got %+v", got)
	}
	_ = closer.Close()
	if err := closer.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
}

func TestSubscribeRequiresHandler(t *testing.T) {
	bus := &Bus{js: &fakeJetStream{}}
	if _, err := bus.Subscribe(context.Background(), "audit", nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}

func TestDeliverAckDecisions(t *testing.T) {
	data, err := Encode(queue.EventRunOrphaned, queue.RunEvent{Reason: "unknown_identifier"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	ok := func(context.Context, Message) error { return nil }
	fail := func(context.Context, Message) error { return errors.New("downstream unavailable") }

	cases := []struct {
		name              string
		data              []byte
		fn                func(context.Context, Message) error
		acks, naks, terms int
	}{
		{name: "handled", data: data, fn: ok, acks: 1},
		{name: "handler error", data: data, fn: fail, naks: 1},
		{name: "undecodable", data: []byte("not json"), fn: ok, terms: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &recordingAcker{}
			deliver(context.Background(), tc.data, tc.fn, a)
			if a.acks != tc.acks || a.naks != tc.naks || a.terms != tc.terms {
				t.Fatalf("got ack=%d nak=%d term=%d", a.acks, a.naks, a.terms)
			}
		})
	}
}
