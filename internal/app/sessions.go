package app

import (
	"sync"

	"github.com/dkeye/LocShare/internal/core"
	"github.com/dkeye/LocShare/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Room     string
	Nickname string
	Session  core.MemberSession
}

// Binding is a snapshot of a connection's room association.
type Binding struct {
	Room    string
	Member  domain.Member
	Session core.MemberSession
}

// Sessions maps live connections to the room they joined, if any.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[domain.MemberID]*sessionEntry
}

func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[domain.MemberID]*sessionEntry),
	}
}

func (s *Sessions) Attach(sess core.MemberSession) {
	id := sess.Meta().ID
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &sessionEntry{Session: sess}
	log.Debug().Str("module", "app.sessions").Str("member", string(id)).Msg("attached")
}

func (s *Sessions) Get(id domain.MemberID) (core.MemberSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.sessions[id]; ok {
		return e.Session, true
	}
	return nil, false
}

// Bind associates an attached connection with room.
func (s *Sessions) Bind(id domain.MemberID, room, nickname string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	e.Room = room
	e.Nickname = nickname
	log.Debug().Str("module", "app.sessions").Str("member", string(id)).Str("room", room).Msg("bound")
	return true
}

// RoomOf returns the binding of id if it has joined a room.
func (s *Sessions) RoomOf(id domain.MemberID) (Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok || e.Room == "" {
		return Binding{}, false
	}
	return e.binding(id), true
}

// Detach forgets id and returns what it was bound to.
func (s *Sessions) Detach(id domain.MemberID) (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return Binding{}, false
	}
	delete(s.sessions, id)
	log.Debug().Str("module", "app.sessions").Str("member", string(id)).Msg("detached")
	if e.Room == "" {
		return Binding{}, false
	}
	return e.binding(id), true
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (e *sessionEntry) binding(id domain.MemberID) Binding {
	return Binding{
		Room:    e.Room,
		Member:  domain.Member{ID: id, Nickname: e.Nickname},
		Session: e.Session,
	}
}
