// Package protocol defines the JSON frames exchanged over the room connection.
// Every frame is an object tagged by "type".
package protocol

import (
	"encoding/json"

	"github.com/dkeye/LocShare/internal/core"
	"github.com/dkeye/LocShare/internal/domain"
)

type Envelope struct {
	Type string `json:"type"`
}

type JoinRequest struct {
	Type     string `json:"type"`
	Token    string `json:"token"`
	Nickname string `json:"nickname,omitempty"`
}

type LocUpdate struct {
	Type string `json:"type"`
	domain.Location
}

type RoomInfo struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type PeerLoc struct {
	Type     string          `json:"type"`
	ID       domain.MemberID `json:"id"`
	Nickname string          `json:"nickname"`
	domain.Location
}

type PeerLeft struct {
	Type string          `json:"type"`
	ID   domain.MemberID `json:"id"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewRoomInfo(count int) RoomInfo {
	return RoomInfo{Type: TypeRoomInfo, Count: count}
}

func NewPeerLoc(m domain.Member, loc domain.Location) PeerLoc {
	return PeerLoc{Type: TypePeerLoc, ID: m.ID, Nickname: m.Nickname, Location: loc}
}

func NewPeerLeft(id domain.MemberID) PeerLeft {
	return PeerLeft{Type: TypePeerLeft, ID: id}
}

func NewErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeErrorMessage, Message: msg}
}

func NewPong() Envelope {
	return Envelope{Type: TypePong}
}

// Encode marshals a frame for the wire.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}
