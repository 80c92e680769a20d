package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-live/internal/config"
	"github.com/stemsi/exstem-live/internal/model"
)

// RedisMirror publishes frames on Redis Pub/Sub and lets other processes,
// such as the SSE monitor, subscribe to them.
type RedisMirror struct {
	rdb *redis.Client
}

// NewRedisMirror creates a RedisMirror.
func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

// Publish sends payload on channel.
func (m *RedisMirror) Publish(ctx context.Context, channel string, payload []byte) error {
	return m.rdb.Publish(ctx, channel, payload).Err()
}

// Record queues a for the activity worker.
func (m *RedisMirror) Record(ctx context.Context, a model.Activity) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}
	return m.rdb.RPush(ctx, config.WorkerKey.PersistActivitiesQueue, data).Err()
}

// Subscribe returns the payloads published on channel. The subscription is
// confirmed before returning; the channel closes when ctx ends.
func (m *RedisMirror) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ps := m.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
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
