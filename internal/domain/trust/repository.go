package trust

import "context"

// Repository is the append-only store behind the trust ledger. Append must
// reject a reused idempotency key with a distinct duplicate error; the
// ledger never deduplicates on its own.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	// ListByUser returns the user's events ordered by occurrence time,
	// then insertion order, so replay is deterministic.
	ListByUser(ctx context.Context, userID string) ([]*Event, error)
}
