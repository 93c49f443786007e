package circle

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleStatus tracks a cycle through its funding state machine:
// PENDING -> FUNDING -> FULLY_FUNDED -> PAID, with FUNDING/PENDING ->
// DEFAULTED when the grace sweep finds the pot short. PAID and DEFAULTED
// are terminal.
type CycleStatus string

const (
	CyclePending     CycleStatus = "PENDING"
	CycleFunding     CycleStatus = "FUNDING"
	CycleFullyFunded CycleStatus = "FULLY_FUNDED"
	CyclePaid        CycleStatus = "PAID"
	CycleDefaulted   CycleStatus = "DEFAULTED"
)

// Terminal reports whether no further transitions are allowed.
func (s CycleStatus) Terminal() bool {
	return s == CyclePaid || s == CycleDefaulted
}

// Cycle is one contribution-and-payout round within a circle. All of a
// circle's cycles are created up front at circle creation; deadlines and
// recipients never change once written, except recipient rewrites from an
// admin member reorder before cycle 1 closes.
type Cycle struct {
	ID                string
	CircleID          string
	Number            int // 1..TotalCycles
	Deadline          time.Time
	RecipientMemberID string
	PotAmount         decimal.Decimal
	Status            CycleStatus
	NeedsManualReview bool // payout rail exhausted retries, operator takes over
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
