package circle

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the contribution cadence of a circle.
type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
	FrequencyOneTime  Frequency = "ONE_TIME"
)

// ParseFrequency converts an inbound string into a Frequency.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyOneTime:
		return Frequency(s), nil
	}
	return "", fmt.Errorf("unknown frequency: %q", s)
}

// RotationMethod is the policy used to assign payout order.
type RotationMethod string

const (
	RotationScoreRanked      RotationMethod = "SCORE_RANKED"
	RotationRandomDraw       RotationMethod = "RANDOM_DRAW"
	RotationManual           RotationMethod = "MANUAL"
	RotationBeneficiaryFixed RotationMethod = "BENEFICIARY_FIXED"
)

// ParseRotationMethod converts an inbound string into a RotationMethod.
func ParseRotationMethod(s string) (RotationMethod, error) {
	switch RotationMethod(s) {
	case RotationScoreRanked, RotationRandomDraw, RotationManual, RotationBeneficiaryFixed:
		return RotationMethod(s), nil
	}
	return "", fmt.Errorf("unknown rotation method: %q", s)
}

// Status is the lifecycle state of a circle as a whole.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

// Circle is a rotating savings group. Its configuration is fixed at
// creation; after the first contribution is recorded only admin-gated
// member reordering may change it, and only until cycle 1 closes.
type Circle struct {
	ID                  string
	Name                string
	AdminUserID         string
	ContributionAmount  decimal.Decimal
	Currency            string
	Frequency           Frequency
	MemberCount         int
	StartDate           time.Time
	GracePeriodDays     int
	RotationMethod      RotationMethod
	TotalCycles         int
	BeneficiaryMemberID sql.NullString // fixed recipient, BENEFICIARY_FIXED only
	RotationSeed        sql.NullInt64  // persisted RANDOM_DRAW shuffle seed
	Status              Status
	CloseReason         sql.NullString
	ConfigFrozen        bool // set once the first contribution lands
	PayoutsHalted       bool // set on integrity violation, operator clears
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PotAmount is the full amount distributed to a cycle's recipient,
// independent of how many members have actually paid.
func (c *Circle) PotAmount() decimal.Decimal {
	return c.ContributionAmount.Mul(decimal.NewFromInt(int64(c.MemberCount)))
}

// GraceEnd returns the end of the grace window for a deadline.
func (c *Circle) GraceEnd(deadline time.Time) time.Time {
	return deadline.AddDate(0, 0, c.GracePeriodDays)
}

// ValidateConfig checks the structural rules of a circle configuration.
// Wall-clock checks (start date in the past) belong to the lifecycle
// manager, which knows the current time.
func (c *Circle) ValidateConfig() error {
	if c.Name == "" {
		return fmt.Errorf("circle name is required")
	}
	if c.AdminUserID == "" {
		return fmt.Errorf("circle admin is required")
	}
	if !c.ContributionAmount.IsPositive() {
		return fmt.Errorf("contribution amount must be positive, got %s", c.ContributionAmount)
	}
	if c.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if _, err := ParseFrequency(string(c.Frequency)); err != nil {
		return err
	}
	if _, err := ParseRotationMethod(string(c.RotationMethod)); err != nil {
		return err
	}
	minMembers := 2
	if c.RotationMethod == RotationBeneficiaryFixed {
		minMembers = 1
	}
	if c.MemberCount < minMembers {
		return fmt.Errorf("circle requires at least %d members, got %d", minMembers, c.MemberCount)
	}
	if c.GracePeriodDays < 0 {
		return fmt.Errorf("grace period days must not be negative, got %d", c.GracePeriodDays)
	}
	if c.TotalCycles < 1 {
		return fmt.Errorf("total cycles must be at least 1, got %d", c.TotalCycles)
	}
	if c.Frequency == FrequencyOneTime && c.TotalCycles != 1 {
		return fmt.Errorf("one-time circles have exactly 1 cycle, got %d", c.TotalCycles)
	}
	if c.RotationMethod == RotationBeneficiaryFixed && !c.BeneficiaryMemberID.Valid {
		return fmt.Errorf("beneficiary-fixed circles require a beneficiary member")
	}
	return nil
}
