// Package natsbus publishes run events to NATS JetStream.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/mohammad-safakhou/enroller/internal/queue"
)

// Message is the JSON body published for every event.
type Message struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
	PayloadVersion string          `json:"payload_version"`
	Data           json.RawMessage `json:"data"`
}

// jetStream is the part of nats.JetStreamContext the bus uses.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Bus wraps a NATS JetStream connection. Events go to "<prefix>.<event type>".
type Bus struct {
	conn   *nats.Conn
	js     jetStream
	prefix string
}

// New creates a Bus connected to the provided NATS endpoint.
func New(url, subjectPrefix string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &Bus{conn: nc, js: js, prefix: strings.TrimSuffix(subjectPrefix, ".")}, nil
}

// Close drains the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Subject returns the subject an event type is published on.
func (b *Bus) Subject(eventType string) string {
	return Subject(b.prefix, eventType)
}

// Subject joins prefix and event type.
func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// Publish encodes payload into a Message and publishes it.
func (b *Bus) Publish(ctx context.Context, eventType string, payload any) error {
	if b == nil {
		return errors.New("nil bus")
	}
	data, err := Encode(eventType, payload)
	if err != nil {
		return err
	}
	_, err = b.js.Publish(b.Subject(eventType), data, nats.Context(ctx))
	return err
}

// Encode builds the wire form of an event.
func Encode(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		OccurredAt:     time.Now().UTC(),
		PayloadVersion: queue.PayloadVersion,
		Data:           raw,
	})
}

type subscription struct {
	sub    *nats.Subscription
	mu     sync.Mutex
	closed bool
}

func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Drain()
}

// Subscribe creates a durable consumer on all events under the prefix and
// invokes fn for each message.
func (b *Bus) Subscribe(ctx context.Context, durable string, fn func(ctx context.Context, msg Message) error) (io.Closer, error) {
	if b == nil {
		return nil, errors.New("nil bus")
	}
	if fn == nil {
		return nil, errors.New("nil handler")
	}
	handler := func(m *nats.Msg) { deliver(ctx, m.Data, fn, m) }

	sub, err := b.js.Subscribe(Subject(b.prefix, ">"), handler, nats.Durable(durable), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, err
	}
	s := &subscription{sub: sub}
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

// acker is implemented by *nats.Msg.
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// deliver hands one message to fn. Undecodable messages are terminated and
// handler failures are redelivered.
func deliver(ctx context.Context, data []byte, fn func(ctx context.Context, msg Message) error, a acker) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		_ = a.Term()
		return
	}
	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := fn(handlerCtx, msg); err != nil {
		_ = a.Nak()
		return
	}
	_ = a.Ack()
}

var _ queue.Publisher = (*Bus)(nil)
