// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// MemberID identifies one live connection. It is never reused.
type MemberID string

func NewMemberID() MemberID {
	return MemberID(uuid.NewString())
}

// Member is the participation meta of a connection.
// No transport or lifecycle logic here.
type Member struct {
	ID       MemberID `json:"id"`
	Nickname string   `json:"nickname"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id MemberID) *Member {
	return &Member{ID: id}
}
