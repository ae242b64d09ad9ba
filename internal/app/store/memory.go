// Package store holds the backing stores of the room registry.
package store

import (
	"context"
	"time"

	"github.com/dkeye/LocShare/internal/domain"
	"github.com/patrickmn/go-cache"
)

// Memory keeps rooms in process. Each item expires with its room and the
// janitor evicts it every sweep interval.
type Memory struct {
	localCache *cache.Cache
}

// NewMemory starts a janitor sweeping every sweep; zero disables it and
// expired rooms are only hidden, not freed.
func NewMemory(sweep time.Duration) *Memory {
	return &Memory{
		localCache: cache.New(cache.NoExpiration, sweep),
	}
}

func (m *Memory) Insert(_ context.Context, room domain.Room) (bool, error) {
	ttl := time.Until(room.ExpiresAt)
	if ttl <= 0 {
		// already dead; only the token uniqueness matters
		ttl = time.Nanosecond
	}
	if err := m.localCache.Add(room.Token, room, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *Memory) Get(_ context.Context, token string) (domain.Room, bool, error) {
	v, found := m.localCache.Get(token)
	if !found {
		return domain.Room{}, false, nil
	}
	return v.(domain.Room), true, nil
}

// Len counts stored rooms, expired ones included until swept.
func (m *Memory) Len() int {
	return m.localCache.ItemCount()
}

// Sweep evicts expired rooms now.
func (m *Memory) Sweep() {
	m.localCache.DeleteExpired()
}
