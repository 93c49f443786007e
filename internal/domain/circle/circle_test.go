package circle

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCircle() *Circle {
	return &Circle{
		ID:                 "c1",
		Name:               "Familia Lopez",
		AdminUserID:        "u1",
		ContributionAmount: decimal.NewFromInt(100),
		Currency:           "USD",
		Frequency:          FrequencyWeekly,
		MemberCount:        4,
		StartDate:          time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		GracePeriodDays:    2,
		RotationMethod:     RotationScoreRanked,
		TotalCycles:        4,
	}
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, validCircle().ValidateConfig())

	tests := []struct {
		name   string
		mutate func(*Circle)
	}{
		{"zero amount", func(c *Circle) { c.ContributionAmount = decimal.Zero }},
		{"negative amount", func(c *Circle) { c.ContributionAmount = decimal.NewFromInt(-5) }},
		{"missing currency", func(c *Circle) { c.Currency = "" }},
		{"missing name", func(c *Circle) { c.Name = "" }},
		{"missing admin", func(c *Circle) { c.AdminUserID = "" }},
		{"bad frequency", func(c *Circle) { c.Frequency = "HOURLY" }},
		{"bad rotation method", func(c *Circle) { c.RotationMethod = "COIN_FLIP" }},
		{"single member without beneficiary", func(c *Circle) { c.MemberCount = 1 }},
		{"negative grace period", func(c *Circle) { c.GracePeriodDays = -1 }},
		{"zero cycles", func(c *Circle) { c.TotalCycles = 0 }},
		{"one-time with many cycles", func(c *Circle) { c.Frequency = FrequencyOneTime; c.TotalCycles = 3 }},
		{"beneficiary-fixed without beneficiary", func(c *Circle) { c.RotationMethod = RotationBeneficiaryFixed }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCircle()
			tt.mutate(c)
			assert.Error(t, c.ValidateConfig())
		})
	}
}

func TestValidateConfig_BeneficiaryOnlyCircle(t *testing.T) {
	// A beneficiary-fixed circle may run with a single member.
	c := validCircle()
	c.RotationMethod = RotationBeneficiaryFixed
	c.BeneficiaryMemberID = sql.NullString{String: "m1", Valid: true}
	c.MemberCount = 1
	assert.NoError(t, c.ValidateConfig())
}

func TestPotAmount(t *testing.T) {
	c := validCircle()
	assert.True(t, c.PotAmount().Equal(decimal.NewFromInt(400)), "pot is contribution x member count, got %s", c.PotAmount())
}

func TestGraceEnd(t *testing.T) {
	c := validCircle()
	deadline := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC), c.GraceEnd(deadline))
}
