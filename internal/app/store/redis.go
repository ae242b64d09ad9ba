package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/LocShare/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Redis shares rooms between processes. Keys carry the room's remaining
// lifetime as their TTL, so Redis reclaims them on its own.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) key(token string) string {
	return r.keyPrefix + token
}

func (r *Redis) Insert(ctx context.Context, room domain.Room) (bool, error) {
	ttl := time.Until(room.ExpiresAt)
	if ttl <= 0 {
		return true, nil
	}
	data, err := json.Marshal(room)
	if err != nil {
		return false, fmt.Errorf("marshal room: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(room.Token), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) Get(ctx context.Context, token string) (domain.Room, bool, error) {
	data, err := r.client.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Room{}, false, nil
		}
		return domain.Room{}, false, fmt.Errorf("redis get: %w", err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return domain.Room{}, false, fmt.Errorf("unmarshal room: %w", err)
	}
	return room, true, nil
}
