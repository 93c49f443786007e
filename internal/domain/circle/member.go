package circle

import (
	"database/sql"
	"time"
)

// MemberStatus is the participation state of a member within a circle.
type MemberStatus string

const (
	MemberActive  MemberStatus = "ACTIVE"
	MemberPaused  MemberStatus = "PAUSED"
	MemberRemoved MemberStatus = "REMOVED"
)

// Member is a participant in a circle. Position is the member's slot in
// the payout order (1..MemberCount); the set of positions in a circle is
// always a permutation of 1..MemberCount.
type Member struct {
	ID             string
	CircleID       string
	UserID         string
	DisplayName    string
	Position       int
	Status         MemberStatus
	ScoreAtJoining int // denormalized trust score read at assignment, never authoritative
	JoinedAt       time.Time
	TelegramChatID sql.NullInt64 // optional notification binding
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
