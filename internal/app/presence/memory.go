// Package presence counts room members across every process serving a room.
package presence

import (
	"context"
	"sync"

	"github.com/dkeye/LocShare/internal/domain"
)

// Memory is the single-process presence set.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]map[domain.MemberID]struct{}
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]map[domain.MemberID]struct{})}
}

func (m *Memory) Add(_ context.Context, room string, id domain.MemberID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[domain.MemberID]struct{})
		m.rooms[room] = members
	}
	members[id] = struct{}{}
	return nil
}

func (m *Memory) Remove(_ context.Context, room string, id domain.MemberID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[room]
	if !ok {
		return nil
	}
	delete(members, id)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
	return nil
}

func (m *Memory) Count(_ context.Context, room string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms[room]), nil
}
