package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/0xBased-lang/zmart-engine/internal/domain"
)

// eventStream is the durable, ordered log of every committed engine event.
const eventStream = "events:log"

// defaultStreamMaxLen bounds the stream when the host does not configure one.
const defaultStreamMaxLen int64 = 10_000

// EventBus implements domain.EventBus using Redis Pub/Sub for ephemeral
// fan-out and a Redis Stream for durable, ordered delivery. Each event goes to
// the channel "events:<kind>" and is appended to the events:log stream.
type EventBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewEventBus creates an EventBus backed by the given Client. streamMaxLen
// bounds the durable stream via XADD MAXLEN ~; zero or negative selects the
// default of 10,000 entries.
func NewEventBus(c *Client, streamMaxLen int64) *EventBus {
	if streamMaxLen <= 0 {
		streamMaxLen = defaultStreamMaxLen
	}
	return &EventBus{rdb: c.Underlying(), maxLen: streamMaxLen}
}

// EventChannel names the Pub/Sub channel for one event kind.
func EventChannel(kind domain.EventKind) string {
	return "events:" + string(kind)
}

// Publish fans the event out over Pub/Sub and appends it to the durable
// stream. The stream write is the durable leg; a Pub/Sub delivery miss only
// costs ephemeral listeners.
func (eb *EventBus) Publish(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", evt.ID, err)
	}

	if err := eb.rdb.Publish(ctx, EventChannel(evt.Kind), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", evt.Kind, err)
	}

	args := &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: eb.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := eb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", evt.Kind, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel that emits raw event payloads. Glob-style channels ("events:*")
// subscribe by pattern. The subscription is closed when the context is
// cancelled; the returned channel is closed at that point as well.
func (eb *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = eb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = eb.rdb.Subscribe(ctx, channel)
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamMessage is one entry read back from the durable event stream.
type StreamMessage struct {
	ID    string
	Event domain.Event
}

// StreamRead reads up to count events from the durable stream starting after
// lastID. Use "0" or "0-0" as lastID to read from the beginning, or "$" to
// read only new entries. It returns an empty slice (not an error) when no
// entries are available.
func (eb *EventBus) StreamRead(ctx context.Context, lastID string, count int) ([]StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{eventStream, lastID},
		Count:   int64(count),
	}

	results, err := eb.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", eventStream, err)
	}

	var messages []StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}

			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}

			var evt domain.Event
			if err := json.Unmarshal(data, &evt); err != nil {
				continue
			}

			messages = append(messages, StreamMessage{ID: msg.ID, Event: evt})
		}
	}

	return messages, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
