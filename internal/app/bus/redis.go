package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dkeye/LocShare/internal/core"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis fans out through Redis pub/sub, one channel per room.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) channel(room string) string {
	return r.prefix + room
}

func (r *Redis) Publish(ctx context.Context, env core.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel(env.Room), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so frames
// published afterwards are not lost.
func (r *Redis) Subscribe(ctx context.Context, room string, deliver func(core.Envelope)) (func(), error) {
	ps := r.client.Subscribe(ctx, r.channel(room))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			var env core.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Error().Err(err).Str("module", "bus.redis").Str("room", room).Msg("bad envelope")
				continue
			}
			deliver(env)
		}
	}()

	return func() {
		if err := ps.Close(); err != nil {
			log.Warn().Err(err).Str("module", "bus.redis").Str("room", room).Msg("unsubscribe")
		}
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
