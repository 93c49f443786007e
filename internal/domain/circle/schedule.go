package circle

import (
	"fmt"
	"time"
)

// GenerateSchedule maps a circle configuration to the ordered list of cycle
// deadlines. It is a pure function of its inputs: no clock reads, no
// randomness, so re-running it for the same circle always reproduces the
// same schedule. Cycle i (1-based) is startDate advanced by i period
// increments; for ONE_TIME the single deadline is startDate itself.
func GenerateSchedule(startDate time.Time, frequency Frequency, totalCycles int) ([]time.Time, error) {
	if totalCycles < 1 {
		return nil, fmt.Errorf("total cycles must be at least 1, got %d", totalCycles)
	}
	if frequency == FrequencyOneTime {
		if totalCycles != 1 {
			return nil, fmt.Errorf("one-time circles have exactly 1 cycle, got %d", totalCycles)
		}
		return []time.Time{startDate}, nil
	}

	deadlines := make([]time.Time, 0, totalCycles)
	for i := 1; i <= totalCycles; i++ {
		var d time.Time
		switch frequency {
		case FrequencyDaily:
			d = startDate.AddDate(0, 0, i)
		case FrequencyWeekly:
			d = startDate.AddDate(0, 0, 7*i)
		case FrequencyBiweekly:
			d = startDate.AddDate(0, 0, 14*i)
		case FrequencyMonthly:
			d = addMonthsClamped(startDate, i)
		default:
			return nil, fmt.Errorf("unknown frequency: %q", frequency)
		}
		deadlines = append(deadlines, d)
	}
	return deadlines, nil
}

// addMonthsClamped advances t by the given number of calendar months,
// clamping the day of month to the last valid day of the target month.
// time.AddDate would normalize Jan 31 + 1 month into March; a monthly
// circle started on the 31st must instead land on Feb 28/29.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month) + months
	// Normalize into a valid (year, month) pair.
	year += (m - 1) / 12
	m = (m-1)%12 + 1
	if m < 1 {
		m += 12
		year--
	}
	last := lastDayOfMonth(year, time.Month(m))
	if day > last {
		day = last
	}
	h, min, sec := t.Clock()
	return time.Date(year, time.Month(m), day, h, min, sec, t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	// First day of the next month, minus one day.
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1).Day()
}
