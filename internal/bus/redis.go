package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "groovesync:room:"

func channel(roomID string) string {
	return channelPrefix + roomID
}

// RedisBus mirrors room broadcasts over Redis pub/sub so several relay
// instances behind sticky routing can fan events out to their own
// connections. Nothing is stored: dropped messages are never resent.
type RedisBus struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisBus(rdb *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, logger: logger}
}

func (b *RedisBus) Publish(ctx context.Context, m Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal bus message: %w", err)
	}

	if err := b.rdb.Publish(ctx, channel(m.RoomID), raw).Err(); err != nil {
		return fmt.Errorf("failed to publish bus message: %w", err)
	}

	return nil
}

// Subscribe listens on every room channel and invokes fn per message
// until the context is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(Message)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.WarnContext(ctx, "failed to unmarshal bus message", "error", err)
				continue
			}
			fn(m)
		}
	}
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
