package signal

import (
	"sync"
	"time"

	"github.com/dkeye/LocShare/internal/domain"
)

// RoomRateLimiter caps join attempts per connection in a sliding window,
// which keeps token guessing over one socket slow.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.MemberID][]time.Time
	limit    int
	interval time.Duration
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[domain.MemberID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RoomRateLimiter) Allow(id domain.MemberID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops the history of a closed connection.
func (rl *RoomRateLimiter) Forget(id domain.MemberID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
