package contribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	deadline := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	const graceDays = 2

	tests := []struct {
		name        string
		submittedAt time.Time
		want        Status
		wantErr     error
	}{
		{"well before deadline", deadline.AddDate(0, 0, -1), StatusOnTime, nil},
		{"exactly at deadline", deadline, StatusOnTime, nil},
		{"day after deadline", deadline.AddDate(0, 0, 1), StatusLate, nil},
		{"end of grace window", deadline.AddDate(0, 0, 2), StatusLate, nil},
		{"just past grace window", deadline.AddDate(0, 0, 2).Add(time.Second), "", ErrPastGracePeriod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.submittedAt, deadline, graceDays)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_ZeroGracePeriod(t *testing.T) {
	deadline := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	_, err := Classify(deadline.Add(time.Second), deadline, 0)
	assert.ErrorIs(t, err, ErrPastGracePeriod)
}

func TestStatusFunded(t *testing.T) {
	assert.True(t, StatusOnTime.Funded())
	assert.True(t, StatusLate.Funded())
	assert.False(t, StatusMissed.Funded())
}
