package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/LocShare/internal/core"
	"github.com/dkeye/LocShare/internal/domain"
	"github.com/dkeye/LocShare/internal/metrics"
	"github.com/rs/zerolog/log"
)

// maxTokenAttempts bounds regeneration on token collision, which for 122
// random bits only happens with a broken entropy source.
const maxTokenAttempts = 8

// Registry issues rooms and answers liveness checks. Rooms are immutable,
// so lookups need no coordination beyond the store's own.
type Registry struct {
	store   core.RoomStore
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

type RegistryOption func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

func NewRegistry(store core.RoomStore, ttl time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{store: store, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) TTL() time.Duration { return r.ttl }

func (r *Registry) CreateRoom(ctx context.Context) (domain.Room, error) {
	for range maxTokenAttempts {
		room := domain.NewRoom(r.now(), r.ttl)
		ok, err := r.store.Insert(ctx, room)
		if err != nil {
			return domain.Room{}, fmt.Errorf("create room: %w", err)
		}
		if !ok {
			log.Warn().Str("module", "app.registry").Msg("token collision, regenerating")
			continue
		}
		if r.metrics != nil {
			r.metrics.RoomsCreated.Inc()
		}
		log.Info().Str("module", "app.registry").Str("room", room.Token).Time("expires_at", room.ExpiresAt).Msg("room created")
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("create room: no free token after %d attempts", maxTokenAttempts)
}

// IsActive reports whether token names a room that has not expired yet.
// Store failures count as inactive.
func (r *Registry) IsActive(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	room, found, err := r.store.Get(ctx, token)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("room", token).Msg("room lookup")
		return false
	}
	return found && room.ActiveAt(r.now())
}
