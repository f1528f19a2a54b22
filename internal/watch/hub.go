// Package watch fans article change notifications out to live listeners
// over a Redis pub/sub channel.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const channel = "pubdesk:articles:changes"

// Event kinds.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Event describes one article mutation.
type Event struct {
	Kind  string    `json:"kind"`
	ID    int64     `json:"id"`
	Owner string    `json:"owner"`
	At    time.Time `json:"at"`
}

// Hub publishes and subscribes to article change events.
type Hub struct {
	client *redis.Client
	logger *slog.Logger
}

// NewHub builds a Hub on the given Redis client.
func NewHub(client *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{client: client, logger: logger}
}

// Publish broadcasts an event. Failures are logged, never surfaced: a lost
// notification must not fail the write that caused it.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log("encode change event", err)
		return
	}
	if err := h.client.Publish(ctx, channel, payload).Err(); err != nil {
		h.log("publish change event", err)
	}
}

// Subscribe starts a listener whose lifetime is bound to ctx. The returned
// channel closes when ctx is cancelled or the subscription drops.
func (h *Hub) Subscribe(ctx context.Context) (<-chan Event, error) {
	sub := h.client.Subscribe(ctx, channel)
	// Receive forces the SUBSCRIBE round trip so callers cannot miss events
	// published right after Subscribe returns.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("watch: subscribe: %w", err)
	}

	out := make(chan Event, 8)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					h.log("decode change event", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (h *Hub) log(msg string, err error) {
	if h.logger != nil {
		h.logger.Warn(msg, slog.String("error", err.Error()))
	}
}
