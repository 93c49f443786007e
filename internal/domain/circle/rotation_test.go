package circle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMember(id string, joinedAt time.Time) *Member {
	return &Member{ID: id, UserID: "user-" + id, JoinedAt: joinedAt}
}

func TestAssignPositions_ScoreRanked(t *testing.T) {
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	// a and b are tied on score; b joined first so b takes the earlier
	// position. The tie-break is join order, never randomness.
	a := testMember("a", t0.Add(2*time.Hour))
	b := testMember("b", t0.Add(1*time.Hour))
	c := testMember("c", t0.Add(3*time.Hour))
	scores := map[string]int{"user-a": 80, "user-b": 80, "user-c": 60}

	positions, err := AssignPositions([]*Member{a, b, c}, RotationScoreRanked, scores, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"b": 1, "a": 2, "c": 3}, positions)
}

func TestAssignPositions_ScoreRankedDeterministic(t *testing.T) {
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	members := []*Member{
		testMember("a", t0.Add(1*time.Hour)),
		testMember("b", t0.Add(2*time.Hour)),
		testMember("c", t0.Add(3*time.Hour)),
		testMember("d", t0.Add(4*time.Hour)),
	}
	scores := map[string]int{"user-a": 50, "user-b": 50, "user-c": 50, "user-d": 50}

	first, err := AssignPositions(members, RotationScoreRanked, scores, nil, 0)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := AssignPositions(members, RotationScoreRanked, scores, nil, 0)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssignPositions_RandomDrawReproducibleFromSeed(t *testing.T) {
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	members := []*Member{
		testMember("a", t0), testMember("b", t0), testMember("c", t0),
		testMember("d", t0), testMember("e", t0),
	}
	seed, err := NewDrawSeed()
	require.NoError(t, err)

	first, err := AssignPositions(members, RotationRandomDraw, nil, nil, seed)
	require.NoError(t, err)
	again, err := AssignPositions(members, RotationRandomDraw, nil, nil, seed)
	require.NoError(t, err)
	assert.Equal(t, first, again, "same persisted seed must reproduce the same order")

	// The result must still be a permutation of 1..N.
	seen := make(map[int]bool)
	for _, pos := range first {
		assert.False(t, seen[pos], "duplicate position %d", pos)
		assert.GreaterOrEqual(t, pos, 1)
		assert.LessOrEqual(t, pos, len(members))
		seen[pos] = true
	}
}

func TestAssignPositions_Manual(t *testing.T) {
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	members := []*Member{testMember("a", t0), testMember("b", t0), testMember("c", t0)}

	t.Run("valid order passes through", func(t *testing.T) {
		order := map[string]int{"a": 3, "b": 1, "c": 2}
		positions, err := AssignPositions(members, RotationManual, nil, order, 0)
		require.NoError(t, err)
		assert.Equal(t, order, positions)
	})

	t.Run("duplicate position names both members", func(t *testing.T) {
		_, err := AssignPositions(members, RotationManual, nil, map[string]int{"a": 1, "b": 1, "c": 2}, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "a")
		assert.Contains(t, err.Error(), "b")
	})

	t.Run("out-of-range position names the member", func(t *testing.T) {
		_, err := AssignPositions(members, RotationManual, nil, map[string]int{"a": 1, "b": 2, "c": 4}, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "c")
		assert.Contains(t, err.Error(), "4")
	})

	t.Run("missing member rejected", func(t *testing.T) {
		_, err := AssignPositions(members, RotationManual, nil, map[string]int{"a": 1, "b": 2}, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "c")
	})
}

func TestAssignPositions_BeneficiaryFixedUsesJoinOrder(t *testing.T) {
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	members := []*Member{
		testMember("late", t0.Add(time.Hour)),
		testMember("early", t0),
	}
	positions, err := AssignPositions(members, RotationBeneficiaryFixed, nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"early": 1, "late": 2}, positions)
}

func TestAssignPositions_EmptyMembers(t *testing.T) {
	_, err := AssignPositions(nil, RotationScoreRanked, nil, nil, 0)
	assert.Error(t, err)
}
