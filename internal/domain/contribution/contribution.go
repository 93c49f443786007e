package contribution

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status classifies a contribution against its cycle's deadline and grace
// window.
type Status string

const (
	StatusOnTime Status = "ON_TIME"
	StatusLate   Status = "LATE"
	// StatusMissed marks the zero-amount fact the grace sweep records for
	// a member who never paid. It exists so the ledger stays append-only:
	// a default is a recorded event, not an absence.
	StatusMissed Status = "MISSED"
)

// Funded reports whether the contribution counts toward full funding.
func (s Status) Funded() bool {
	return s == StatusOnTime || s == StatusLate
}

// Contribution is an append-only fact: at most one exists per
// (cycle, member) pair and it is never mutated once recorded. Corrections
// are new ledger entries, not updates.
type Contribution struct {
	ID          string
	CycleID     string
	MemberID    string
	Amount      decimal.Decimal // zero for MISSED
	Status      Status
	SubmittedAt time.Time
	CreatedAt   time.Time
}

// ErrPastGracePeriod rejects a live submission after the grace window has
// closed; the member must go through the circle admin instead.
var ErrPastGracePeriod = errors.New("past grace period — contact admin")

// Classify determines a contribution's status relative to the cycle
// deadline and grace window. At or before the deadline it is on time;
// within the grace window it is late; after the window it is rejected
// outright (the sweep, not a live submission, records the miss).
func Classify(submittedAt, deadline time.Time, gracePeriodDays int) (Status, error) {
	if !submittedAt.After(deadline) {
		return StatusOnTime, nil
	}
	graceEnd := deadline.AddDate(0, 0, gracePeriodDays)
	if !submittedAt.After(graceEnd) {
		return StatusLate, nil
	}
	return "", ErrPastGracePeriod
}
