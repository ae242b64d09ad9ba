package core

import (
	"sync"

	"github.com/dkeye/LocShare/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory membership set.
// It never closes adapter-owned resources.
type roomImpl struct {
	token   string
	mu      sync.RWMutex
	members map[domain.MemberID]MemberSession
}

func NewRoomService(token string) RoomService {
	return &roomImpl{
		token:   token,
		members: make(map[domain.MemberID]MemberSession),
	}
}

func (r *roomImpl) Token() string { return r.token }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// AddMember is idempotent per member id.
func (r *roomImpl) AddMember(ms MemberSession) {
	id := ms.Meta().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[id] = ms
	log.Debug().Str("module", "core.room").Str("room", r.token).Str("member", string(id)).Msg("member added")
}

func (r *roomImpl) RemoveMember(id domain.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	log.Debug().Str("module", "core.room").Str("room", r.token).Str("member", string(id)).Msg("member removed")
	return true
}

// Deliver queues data on every member except exclude. An empty exclude
// reaches everyone.
func (r *roomImpl) Deliver(exclude domain.MemberID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for id, m := range r.members {
		if id == exclude {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", r.token).Str("from", string(exclude)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("deliver result")
	return res
}
