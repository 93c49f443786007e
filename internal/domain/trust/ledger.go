package trust

import (
	"context"
	"fmt"
	"time"
)

// BaselineScore seeds every user who has no events yet.
const BaselineScore = 50

const (
	minScore = 0
	maxScore = 100
)

// Ledger derives trust scores from the append-only event stream. Score is
// never stored as mutable state: a correction is a new event and the next
// replay picks it up exactly.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// RecordEvent appends one score event for the user. idempotencyKey must be
// unique per logical event (cycle, member, type); a reused key surfaces
// the repository's duplicate error untouched so callers can treat it as
// already recorded.
func (l *Ledger) RecordEvent(ctx context.Context, userID string, eventType EventType, idempotencyKey string) (*Event, error) {
	delta, err := DeltaFor(eventType)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("score event requires a user id")
	}
	if idempotencyKey == "" {
		return nil, fmt.Errorf("score event requires an idempotency key")
	}
	e := &Event{
		UserID:         userID,
		Type:           eventType,
		Delta:          delta,
		IdempotencyKey: idempotencyKey,
		OccurredAt:     l.now(),
	}
	if err := l.repo.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// CurrentScore replays the user's events in order, clamping to [0,100]
// after each step. Clamping per step means a score pinned at a bound does
// not bank excess: three defaults from 10 and one completion later still
// leaves the user near the floor, not at -45 recovering invisibly.
func (l *Ledger) CurrentScore(ctx context.Context, userID string) (int, error) {
	events, err := l.repo.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list score events for user %s: %w", userID, err)
	}
	score := BaselineScore
	for _, e := range events {
		score += e.Delta
		if score < minScore {
			score = minScore
		}
		if score > maxScore {
			score = maxScore
		}
	}
	return score, nil
}

// TierOf returns the user's current tier.
func (l *Ledger) TierOf(ctx context.Context, userID string) (Tier, error) {
	score, err := l.CurrentScore(ctx, userID)
	if err != nil {
		return "", err
	}
	return TierForScore(score), nil
}
