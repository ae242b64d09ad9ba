package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/LocShare/internal/domain"
	"github.com/redis/go-redis/v9"
)

// memberSetTTL bounds how long members of a crashed process linger.
// Every Add pushes the expiry out again.
const memberSetTTL = 24 * time.Hour

// Redis keeps one set of member ids per room, shared by every process.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) key(room string) string {
	return r.keyPrefix + room
}

func (r *Redis) Add(ctx context.Context, room string, id domain.MemberID) error {
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.key(room), string(id))
	pipe.Expire(ctx, r.key(room), memberSetTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis presence add: %w", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, room string, id domain.MemberID) error {
	if err := r.client.SRem(ctx, r.key(room), string(id)).Err(); err != nil {
		return fmt.Errorf("redis presence remove: %w", err)
	}
	return nil
}

func (r *Redis) Count(ctx context.Context, room string) (int, error) {
	n, err := r.client.SCard(ctx, r.key(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis presence count: %w", err)
	}
	return int(n), nil
}
