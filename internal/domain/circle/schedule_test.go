package circle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateSchedule_FixedIncrements(t *testing.T) {
	start := date(2026, time.March, 1)

	tests := []struct {
		name      string
		frequency Frequency
		cycles    int
		want      []time.Time
	}{
		{
			name:      "daily",
			frequency: FrequencyDaily,
			cycles:    3,
			want:      []time.Time{date(2026, time.March, 2), date(2026, time.March, 3), date(2026, time.March, 4)},
		},
		{
			name:      "weekly",
			frequency: FrequencyWeekly,
			cycles:    2,
			want:      []time.Time{date(2026, time.March, 8), date(2026, time.March, 15)},
		},
		{
			name:      "biweekly",
			frequency: FrequencyBiweekly,
			cycles:    2,
			want:      []time.Time{date(2026, time.March, 15), date(2026, time.March, 29)},
		},
		{
			name:      "monthly",
			frequency: FrequencyMonthly,
			cycles:    2,
			want:      []time.Time{date(2026, time.April, 1), date(2026, time.May, 1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateSchedule(start, tt.frequency, tt.cycles)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateSchedule_MonthlyClampsToMonthEnd(t *testing.T) {
	// A circle started on the 31st must land on the last valid day of
	// shorter months, not roll over into the next one.
	got, err := GenerateSchedule(date(2026, time.January, 31), FrequencyMonthly, 4)
	require.NoError(t, err)
	want := []time.Time{
		date(2026, time.February, 28),
		date(2026, time.March, 31),
		date(2026, time.April, 30),
		date(2026, time.May, 31),
	}
	assert.Equal(t, want, got)
}

func TestGenerateSchedule_MonthlyLeapYear(t *testing.T) {
	got, err := GenerateSchedule(date(2024, time.January, 31), FrequencyMonthly, 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2024, time.February, 29)}, got)
}

func TestGenerateSchedule_MonthlyCrossesYearBoundary(t *testing.T) {
	got, err := GenerateSchedule(date(2026, time.November, 30), FrequencyMonthly, 3)
	require.NoError(t, err)
	want := []time.Time{
		date(2026, time.December, 30),
		date(2027, time.January, 30),
		date(2027, time.February, 28),
	}
	assert.Equal(t, want, got)
}

func TestGenerateSchedule_StrictlyIncreasing(t *testing.T) {
	for _, freq := range []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly} {
		t.Run(string(freq), func(t *testing.T) {
			got, err := GenerateSchedule(date(2026, time.January, 31), freq, 12)
			require.NoError(t, err)
			require.Len(t, got, 12)
			for i := 1; i < len(got); i++ {
				assert.True(t, got[i].After(got[i-1]), "deadline %d (%s) not after %d (%s)", i, got[i], i-1, got[i-1])
			}
		})
	}
}

func TestGenerateSchedule_OneTime(t *testing.T) {
	start := date(2026, time.June, 15)
	got, err := GenerateSchedule(start, FrequencyOneTime, 1)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{start}, got)

	_, err = GenerateSchedule(start, FrequencyOneTime, 3)
	assert.Error(t, err)
}

func TestGenerateSchedule_RejectsBadInputs(t *testing.T) {
	_, err := GenerateSchedule(date(2026, time.June, 15), FrequencyWeekly, 0)
	assert.Error(t, err)

	_, err = GenerateSchedule(date(2026, time.June, 15), Frequency("FORTNIGHTLY"), 2)
	assert.Error(t, err)
}
