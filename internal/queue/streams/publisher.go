package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/enroller/internal/queue"
)

// Publisher appends run events to a single Redis stream.
type Publisher struct {
	client   *redis.Client
	stream   string
	maxLen   int64
	registry *SchemaRegistry
}

// NewPublisher creates a Publisher writing to stream. maxLen > 0 trims the
// stream approximately on every XADD.
func NewPublisher(client *redis.Client, stream string, maxLen int64) *Publisher {
	return &Publisher{client: client, stream: stream, maxLen: maxLen}
}

// WithRegistry rejects payloads that do not match their event schema.
func (p *Publisher) WithRegistry(r *SchemaRegistry) *Publisher {
	p.registry = r
	return p
}

// Publish wraps payload in an envelope and XADDs it.
func (p *Publisher) Publish(ctx context.Context, eventType string, payload any) error {
	_, err := p.PublishEnvelope(ctx, eventType, payload)
	return err
}

// PublishEnvelope is Publish returning the stream entry id.
func (p *Publisher) PublishEnvelope(ctx context.Context, eventType string, payload any) (string, error) {
	if p.stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		EventID:        uuid.NewString(),
		EventType:      eventType,
		OccurredAt:     time.Now().UTC(),
		PayloadVersion: queue.PayloadVersion,
		Data:           data,
	}
	if err := env.check(); err != nil {
		return "", err
	}
	if p.registry != nil {
		if err := p.registry.ValidateEnvelope(env); err != nil {
			return "", err
		}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{"envelope": raw},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

var _ queue.Publisher = (*Publisher)(nil)
