package relay

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"log/slog"

	"docsync-relay/internal/app"
)

type BusMessage struct {
	Room    string `json:"room"`
	Origin  string `json:"origin"`
	Binary  bool   `json:"binary"`
	Payload []byte `json:"payload"`
}

// RedisBus fans room messages out across relay instances. Each instance
// tags its publishes with an origin ID and drops its own messages on the
// subscribe side, so local members never see a frame twice.
type RedisBus struct {
	rdb    *redis.Client
	log    *slog.Logger
	origin string
}

// NewRedisBus connects to redis and verifies connectivity
func NewRedisBus(ctx context.Context, cfg app.Config, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{rdb: rdb, log: log, origin: uuid.NewString()}, nil
}

// Publish sends a message to the redis channel for a room
func (b *RedisBus) Publish(ctx context.Context, m BusMessage) error {
	m.Origin = b.origin
	raw, _ := json.Marshal(m)
	return b.rdb.Publish(ctx, channel(m.Room), raw).Err()
}

// Subscribe listens to all room channels and invokes fn for each message
// published by another instance
func (b *RedisBus) Subscribe(ctx context.Context, fn func(BusMessage)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg := <-ch:
			var bm BusMessage
			_ = json.Unmarshal([]byte(msg.Payload), &bm)
			if bm.Room != "" && bm.Origin != b.origin {
				fn(bm)
			}
		}
	}
}

// Close shuts down the redis connection
func (b *RedisBus) Close() { _ = b.rdb.Close() }

// channel namespacing for room pub/sub
func channel(room string) string { return "room:" + room }
