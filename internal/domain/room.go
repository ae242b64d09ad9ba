package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRoom = errors.New("invalid or expired link")
	ErrRateLimited = errors.New("too many join attempts")
)

// Room is immutable once created. It stays reachable until ExpiresAt and
// is never extended by activity.
type Room struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewRoom stamps a fresh token with the given lifetime.
func NewRoom(now time.Time, ttl time.Duration) Room {
	return Room{
		Token:     NewToken(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// NewToken renders a random UUIDv4 without separators: 32 URL-safe hex chars.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (r Room) ActiveAt(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}
