package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/LocShare/internal/domain"
)

// RoomStore is the backing store of the room registry. Implementations
// must be safe for concurrent use.
type RoomStore interface {
	// Insert stores room unless its token is already taken.
	Insert(ctx context.Context, room domain.Room) (bool, error)
	Get(ctx context.Context, token string) (domain.Room, bool, error)
}

// Presence tracks who is in a room across every process sharing it.
// Add and Remove are idempotent.
type Presence interface {
	Add(ctx context.Context, room string, id domain.MemberID) error
	Remove(ctx context.Context, room string, id domain.MemberID) error
	Count(ctx context.Context, room string) (int, error)
}

// KindMembership marks an envelope that only announces a membership
// change. Receivers render room_info from the shared presence count.
const KindMembership = "membership"

// Envelope is one fan-out unit: a frame addressed to a room, optionally
// skipping the member that caused it.
type Envelope struct {
	Room    string          `json:"room"`
	Kind    string          `json:"kind,omitempty"`
	Exclude domain.MemberID `json:"exclude,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Bus carries envelopes to every subscriber of a room. A single-process
// deployment delivers in place; a shared bus reaches other processes too.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(ctx context.Context, room string, deliver func(Envelope)) (unsubscribe func(), err error)
	Close() error
}
