package circle

import (
	"context"
	"time"
)

// Repository defines persistence for circles, their members, and their
// cycles. Creation is transactional: a circle is only ever visible with
// its full member list and all pre-computed cycles.
type Repository interface {
	Create(ctx context.Context, c *Circle, members []*Member, cycles []*Cycle) error
	GetByID(ctx context.Context, circleID string) (*Circle, error)

	ListMembers(ctx context.Context, circleID string) ([]*Member, error)
	GetMember(ctx context.Context, memberID string) (*Member, error)
	// UpdateMemberPositions rewrites the payout order. positions must be a
	// permutation of 1..MemberCount; callers validate before writing.
	UpdateMemberPositions(ctx context.Context, circleID string, positions map[string]int) error

	GetCycle(ctx context.Context, cycleID string) (*Cycle, error)
	ListCycles(ctx context.Context, circleID string) ([]*Cycle, error)
	// CompareAndSwapCycleStatus transitions a cycle from exactly `from` to
	// `to`, returning false without error when the cycle was no longer in
	// `from`. This is the durable guard behind the at-most-once payout.
	CompareAndSwapCycleStatus(ctx context.Context, cycleID string, from, to CycleStatus) (bool, error)
	SetCycleRecipient(ctx context.Context, cycleID, memberID string) error
	MarkCycleForReview(ctx context.Context, cycleID string) error
	// ListSweepDue returns non-terminal cycles of active circles whose
	// grace window closed at or before asOf.
	ListSweepDue(ctx context.Context, asOf time.Time) ([]*Cycle, error)

	MarkConfigFrozen(ctx context.Context, circleID string) error
	HaltPayouts(ctx context.Context, circleID string) error
	Close(ctx context.Context, circleID, reason string) error

	// LookupChatID resolves a user's Telegram binding, if any member row
	// for that user carries one.
	LookupChatID(ctx context.Context, userID string) (int64, bool, error)
}
