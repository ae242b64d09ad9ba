package core

import "github.com/dkeye/LocShare/internal/domain"

// PublishResult reports delivery stats/backpressure to the coordinator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a room's local membership.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Token() string
	MemberCount() int

	AddMember(ms MemberSession)
	RemoveMember(id domain.MemberID) bool
	Deliver(exclude domain.MemberID, data Frame) PublishResult
}
