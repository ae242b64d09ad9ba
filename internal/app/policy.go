package app

import "github.com/dkeye/LocShare/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send queue is full.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// SimplePolicy closes slow connections; they leave through the normal
// disconnect path.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	return KickMember
}

// LenientPolicy only drops the frame.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction {
	return DropFrame
}
