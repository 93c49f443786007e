package circle

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mathrand "math/rand"
	"sort"
)

// NewDrawSeed produces the seed for a random-draw shuffle. The seed is
// generated once at circle activation and persisted with the circle, so
// replaying the assignment reproduces the stored order instead of
// reshuffling.
func NewDrawSeed() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to read draw seed entropy: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// AssignPositions computes the payout order for a circle's members and
// returns a memberID -> position mapping covering 1..len(members).
//
//   - SCORE_RANKED orders by descending trust score with ties broken by
//     earliest join time. The sort is fully deterministic so the
//     assignment can be audited and reproduced.
//   - RANDOM_DRAW shuffles once using the provided persisted seed.
//   - MANUAL takes the caller-supplied order and only validates it.
//   - BENEFICIARY_FIXED assigns positions by join order; the recipient is
//     the fixed beneficiary regardless of position.
//
// scores supplies the per-userID trust score for SCORE_RANKED;
// manualOrder supplies the memberID -> position mapping for MANUAL;
// seed supplies the persisted shuffle seed for RANDOM_DRAW.
func AssignPositions(members []*Member, method RotationMethod, scores map[string]int, manualOrder map[string]int, seed int64) (map[string]int, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("cannot assign positions to an empty member list")
	}

	switch method {
	case RotationScoreRanked:
		ordered := make([]*Member, len(members))
		copy(ordered, members)
		sort.SliceStable(ordered, func(i, j int) bool {
			si, sj := scores[ordered[i].UserID], scores[ordered[j].UserID]
			if si != sj {
				return si > sj
			}
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		})
		return positionsFromOrder(ordered), nil

	case RotationRandomDraw:
		ordered := make([]*Member, len(members))
		copy(ordered, members)
		// Canonicalize before shuffling so a replay with the persisted
		// seed reproduces the same assignment regardless of the order the
		// members were loaded in.
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		})
		rng := mathrand.New(mathrand.NewSource(seed))
		rng.Shuffle(len(ordered), func(i, j int) {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		})
		return positionsFromOrder(ordered), nil

	case RotationManual:
		if err := ValidateManualOrder(members, manualOrder); err != nil {
			return nil, err
		}
		out := make(map[string]int, len(manualOrder))
		for id, pos := range manualOrder {
			out[id] = pos
		}
		return out, nil

	case RotationBeneficiaryFixed:
		ordered := make([]*Member, len(members))
		copy(ordered, members)
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].JoinedAt.Before(ordered[j].JoinedAt)
		})
		return positionsFromOrder(ordered), nil
	}
	return nil, fmt.Errorf("unknown rotation method: %q", method)
}

// ValidateManualOrder checks that order assigns every member exactly one
// position and that the positions form a permutation of 1..N. Errors name
// the offending member so the caller can surface an actionable reason.
func ValidateManualOrder(members []*Member, order map[string]int) error {
	n := len(members)
	seen := make(map[int]string, n)
	for _, m := range members {
		pos, ok := order[m.ID]
		if !ok {
			return fmt.Errorf("manual order missing a position for member %s", m.ID)
		}
		if pos < 1 || pos > n {
			return fmt.Errorf("member %s has out-of-range position %d (want 1..%d)", m.ID, pos, n)
		}
		if prev, dup := seen[pos]; dup {
			return fmt.Errorf("members %s and %s share position %d", prev, m.ID, pos)
		}
		seen[pos] = m.ID
	}
	if len(order) != n {
		return fmt.Errorf("manual order has %d entries for %d members", len(order), n)
	}
	return nil
}

func positionsFromOrder(ordered []*Member) map[string]int {
	out := make(map[string]int, len(ordered))
	for i, m := range ordered {
		out[m.ID] = i + 1
	}
	return out
}
