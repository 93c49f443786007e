package trust

import (
	"fmt"
	"time"
)

// EventType enumerates the behaviors that move a user's trust score.
type EventType string

const (
	EventOnTimeContribution EventType = "ON_TIME_CONTRIBUTION"
	EventLateContribution   EventType = "LATE_CONTRIBUTION"
	EventDefault            EventType = "DEFAULT"
	EventCircleCompleted    EventType = "CIRCLE_COMPLETED"
)

// DeltaFor returns the fixed signed delta carried by an event type.
func DeltaFor(t EventType) (int, error) {
	switch t {
	case EventOnTimeContribution:
		return 1, nil
	case EventLateContribution:
		return -3, nil
	case EventDefault:
		return -20, nil
	case EventCircleCompleted:
		return 5, nil
	}
	return 0, fmt.Errorf("unknown score event type: %q", t)
}

// Event is one append-only entry in a user's trust ledger. The current
// score is always derived by replay; events are never mutated or deleted.
// IdempotencyKey is supplied by the caller, unique per logical event
// (typically cycle:member:type), so retried writes are detectable.
type Event struct {
	ID             int64
	UserID         string
	Type           EventType
	Delta          int
	IdempotencyKey string
	OccurredAt     time.Time
	CreatedAt      time.Time
}

// Tier buckets a score for product gating and display.
type Tier string

const (
	TierCritical  Tier = "CRITICAL"
	TierPoor      Tier = "POOR"
	TierFair      Tier = "FAIR"
	TierGood      Tier = "GOOD"
	TierExcellent Tier = "EXCELLENT"
	TierElite     Tier = "ELITE"
)

// TierForScore maps a clamped score to its tier.
func TierForScore(score int) Tier {
	switch {
	case score <= 24:
		return TierCritical
	case score <= 44:
		return TierPoor
	case score <= 59:
		return TierFair
	case score <= 74:
		return TierGood
	case score <= 89:
		return TierExcellent
	default:
		return TierElite
	}
}
