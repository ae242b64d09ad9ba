// Package bus implements room fan-out transports.
package bus

import (
	"context"
	"sync"

	"github.com/dkeye/LocShare/internal/core"
)

type subscriber struct {
	id      uint64
	deliver func(core.Envelope)
}

// Local delivers in the publishing goroutine. Publish returns after every
// local subscriber has been handed the envelope, which keeps per-room
// ordering identical to call ordering.
type Local struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscriber
}

func NewLocal() *Local {
	return &Local{subs: make(map[string][]subscriber)}
}

func (l *Local) Publish(_ context.Context, env core.Envelope) error {
	l.mu.RLock()
	subs := append([]subscriber(nil), l.subs[env.Room]...)
	l.mu.RUnlock()

	for _, s := range subs {
		s.deliver(env)
	}
	return nil
}

func (l *Local) Subscribe(_ context.Context, room string, deliver func(core.Envelope)) (func(), error) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	l.subs[room] = append(l.subs[room], subscriber{id: id, deliver: deliver})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(room, id) })
	}, nil
}

func (l *Local) remove(room string, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := l.subs[room]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(l.subs, room)
		return
	}
	l.subs[room] = subs
}

func (l *Local) Close() error { return nil }
