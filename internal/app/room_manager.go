package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/LocShare/internal/core"
	"github.com/rs/zerolog/log"
)

// roomEntry is one room with local members. mu serialises membership
// events so the count broadcast after a join or leave is never stale.
type roomEntry struct {
	mu      sync.Mutex
	room    core.RoomService
	unsub   func()
	stopped bool
}

// DeliverFunc hands a bus envelope to a room's local members.
type DeliverFunc func(room core.RoomService, env core.Envelope)

// RoomManager owns the rooms that currently have members on this process
// and their bus subscriptions.
type RoomManager struct {
	mu      sync.RWMutex
	rooms   map[string]*roomEntry
	bus     core.Bus
	deliver DeliverFunc
}

func NewRoomManager(bus core.Bus, deliver DeliverFunc) *RoomManager {
	return &RoomManager{
		rooms:   make(map[string]*roomEntry),
		bus:     bus,
		deliver: deliver,
	}
}

func (m *RoomManager) Get(token string) (*roomEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.rooms[token]
	return e, ok
}

// GetOrCreate subscribes the room to the bus the first time it is seen.
func (m *RoomManager) GetOrCreate(ctx context.Context, token string) (*roomEntry, error) {
	if e, ok := m.Get(token); ok {
		return e, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rooms[token]; ok {
		return e, nil
	}
	room := core.NewRoomService(token)
	unsub, err := m.bus.Subscribe(ctx, token, func(env core.Envelope) {
		m.deliver(room, env)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe room %s: %w", token, err)
	}
	e := &roomEntry{room: room, unsub: unsub}
	m.rooms[token] = e
	log.Info().Str("module", "app.rooms").Str("room", token).Msg("room opened")
	return e, nil
}

// Stop drops e if it is still the live entry for token. The caller holds e.mu.
func (m *RoomManager) Stop(token string, e *roomEntry) {
	e.stopped = true
	m.mu.Lock()
	if cur, ok := m.rooms[token]; ok && cur == e {
		delete(m.rooms, token)
	}
	m.mu.Unlock()
	e.unsub()
	log.Info().Str("module", "app.rooms").Str("room", token).Msg("room closed")
}

func (m *RoomManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
