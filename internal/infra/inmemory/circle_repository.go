// Package inmemory provides map-backed repositories with the same error
// contract as the Postgres implementations. They back local runs
// (ENGINE_STORAGE=memory) and the service tests.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tanda_circle_engine/internal/domain/circle"
	idb "tanda_circle_engine/internal/infra/database"
)

type CircleRepository struct {
	mu      sync.RWMutex
	circles map[string]*circle.Circle
	members map[string]*circle.Member
	cycles  map[string]*circle.Cycle
}

func NewCircleRepository() *CircleRepository {
	return &CircleRepository{
		circles: make(map[string]*circle.Circle),
		members: make(map[string]*circle.Member),
		cycles:  make(map[string]*circle.Cycle),
	}
}

func (r *CircleRepository) Create(ctx context.Context, c *circle.Circle, members []*circle.Member, cycles []*circle.Cycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	cc := *c
	r.circles[c.ID] = &cc
	for _, m := range members {
		m.CreatedAt, m.UpdatedAt = now, now
		mc := *m
		r.members[m.ID] = &mc
	}
	for _, cy := range cycles {
		cy.CreatedAt, cy.UpdatedAt = now, now
		cyc := *cy
		r.cycles[cy.ID] = &cyc
	}
	return nil
}

func (r *CircleRepository) GetByID(ctx context.Context, circleID string) (*circle.Circle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.circles[circleID]
	if !ok {
		return nil, idb.ErrCircleNotFound
	}
	cc := *c
	return &cc, nil
}

func (r *CircleRepository) ListMembers(ctx context.Context, circleID string) ([]*circle.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*circle.Member, 0)
	for _, m := range r.members {
		if m.CircleID == circleID {
			mc := *m
			out = append(out, &mc)
		}
	}
	sortMembersByPosition(out)
	return out, nil
}

func (r *CircleRepository) GetMember(ctx context.Context, memberID string) (*circle.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[memberID]
	if !ok {
		return nil, idb.ErrMemberNotFound
	}
	mc := *m
	return &mc, nil
}

func (r *CircleRepository) UpdateMemberPositions(ctx context.Context, circleID string, positions map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for memberID, pos := range positions {
		m, ok := r.members[memberID]
		if !ok || m.CircleID != circleID {
			return idb.ErrMemberNotFound
		}
		m.Position = pos
		m.UpdatedAt = time.Now()
	}
	return nil
}

func (r *CircleRepository) GetCycle(ctx context.Context, cycleID string) (*circle.Cycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cy, ok := r.cycles[cycleID]
	if !ok {
		return nil, idb.ErrCycleNotFound
	}
	cyc := *cy
	return &cyc, nil
}

func (r *CircleRepository) ListCycles(ctx context.Context, circleID string) ([]*circle.Cycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*circle.Cycle, 0)
	for _, cy := range r.cycles {
		if cy.CircleID == circleID {
			cyc := *cy
			out = append(out, &cyc)
		}
	}
	sortCyclesByNumber(out)
	return out, nil
}

func (r *CircleRepository) CompareAndSwapCycleStatus(ctx context.Context, cycleID string, from, to circle.CycleStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cy, ok := r.cycles[cycleID]
	if !ok {
		return false, idb.ErrCycleNotFound
	}
	if cy.Status != from {
		return false, nil
	}
	cy.Status = to
	cy.UpdatedAt = time.Now()
	return true, nil
}

func (r *CircleRepository) SetCycleRecipient(ctx context.Context, cycleID, memberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cy, ok := r.cycles[cycleID]
	if !ok {
		return idb.ErrCycleNotFound
	}
	cy.RecipientMemberID = memberID
	cy.UpdatedAt = time.Now()
	return nil
}

func (r *CircleRepository) MarkCycleForReview(ctx context.Context, cycleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cy, ok := r.cycles[cycleID]
	if !ok {
		return idb.ErrCycleNotFound
	}
	cy.NeedsManualReview = true
	cy.UpdatedAt = time.Now()
	return nil
}

func (r *CircleRepository) ListSweepDue(ctx context.Context, asOf time.Time) ([]*circle.Cycle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*circle.Cycle, 0)
	for _, cy := range r.cycles {
		c, ok := r.circles[cy.CircleID]
		if !ok || c.Status != circle.StatusActive {
			continue
		}
		if cy.Status != circle.CyclePending && cy.Status != circle.CycleFunding {
			continue
		}
		if c.GraceEnd(cy.Deadline).After(asOf) {
			continue
		}
		cyc := *cy
		out = append(out, &cyc)
	}
	sortCyclesByDeadline(out)
	return out, nil
}

func (r *CircleRepository) MarkConfigFrozen(ctx context.Context, circleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.circles[circleID]
	if !ok {
		return idb.ErrCircleNotFound
	}
	c.ConfigFrozen = true
	c.UpdatedAt = time.Now()
	return nil
}

func (r *CircleRepository) HaltPayouts(ctx context.Context, circleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.circles[circleID]
	if !ok {
		return idb.ErrCircleNotFound
	}
	c.PayoutsHalted = true
	c.UpdatedAt = time.Now()
	return nil
}

func (r *CircleRepository) Close(ctx context.Context, circleID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.circles[circleID]
	if !ok || c.Status != circle.StatusActive {
		return idb.ErrCircleNotFound
	}
	c.Status = circle.StatusClosed
	c.CloseReason.String, c.CloseReason.Valid = reason, true
	c.UpdatedAt = time.Now()
	return nil
}

func (r *CircleRepository) LookupChatID(ctx context.Context, userID string) (int64, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if m.UserID == userID && m.TelegramChatID.Valid {
			return m.TelegramChatID.Int64, true, nil
		}
	}
	return 0, false, nil
}

func sortMembersByPosition(members []*circle.Member) {
	sort.Slice(members, func(i, j int) bool { return members[i].Position < members[j].Position })
}

func sortCyclesByNumber(cycles []*circle.Cycle) {
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Number < cycles[j].Number })
}

func sortCyclesByDeadline(cycles []*circle.Cycle) {
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Deadline.Before(cycles[j].Deadline) })
}
