package contribution

import "context"

// Repository defines persistence for contribution facts. Create must
// enforce the one-contribution-per-(cycle, member) rule and surface a
// duplicate as a distinct error rather than overwriting.
type Repository interface {
	Create(ctx context.Context, c *Contribution) error
	ListByCycle(ctx context.Context, cycleID string) ([]*Contribution, error)
	// CountFunded returns how many ON_TIME or LATE contributions exist for
	// the cycle. MISSED facts never count toward funding.
	CountFunded(ctx context.Context, cycleID string) (int, error)
}
