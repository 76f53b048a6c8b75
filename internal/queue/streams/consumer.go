package streams

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Consumer reads envelopes from a stream through a consumer group.
type Consumer struct {
	client *redis.Client
	stream string
	group  string
	name   string
}

// NewConsumer builds a consumer for stream using group/name.
func NewConsumer(client *redis.Client, stream, group, name string) *Consumer {
	return &Consumer{client: client, stream: stream, group: group, name: name}
}

// EnsureGroup creates the consumer group if it does not exist. start is "$"
// for new entries only or "0" to replay the whole stream.
func (c *Consumer) EnsureGroup(ctx context.Context, start string) error {
	if c.stream == "" || c.group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	if start == "" {
		start = "$"
	}
	if err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, start).Err(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create: %w", err)
	}
	return nil
}

// Message represents a consumed stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

// Read pulls up to count new messages, blocking for at most block. Malformed
// entries are acknowledged and skipped.
func (c *Consumer) Read(ctx context.Context, count int64, block time.Duration) ([]Message, error) {
	if c.group == "" || c.name == "" {
		return nil, fmt.Errorf("consumer group and name must be configured")
	}
	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    count,
		Block:    block,
	}
	if block <= 0 {
		args.Block = -1
	}
	res, err := c.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var out []Message
	for _, st := range res {
		for _, msg := range st.Messages {
			env, ok := decodeEntry(msg)
			if !ok {
				_ = c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
				continue
			}
			out = append(out, Message{ID: msg.ID, Envelope: env})
		}
	}
	return out, nil
}

// Ack acknowledges processing of the provided message IDs.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func decodeEntry(msg redis.XMessage) (Envelope, bool) {
	raw, ok := msg.Values["envelope"]
	if !ok {
		return Envelope{}, false
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return Envelope{}, false
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		return Envelope{}, false
	}
	return env, true
}
