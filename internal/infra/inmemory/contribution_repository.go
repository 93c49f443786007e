package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tanda_circle_engine/internal/domain/contribution"
	idb "tanda_circle_engine/internal/infra/database"
)

type ContributionRepository struct {
	mu      sync.RWMutex
	byID    map[string]*contribution.Contribution
	byPair  map[pairKey]string
	byCycle map[string][]string
}

type pairKey struct {
	cycleID  string
	memberID string
}

func NewContributionRepository() *ContributionRepository {
	return &ContributionRepository{
		byID:    make(map[string]*contribution.Contribution),
		byPair:  make(map[pairKey]string),
		byCycle: make(map[string][]string),
	}
}

func (r *ContributionRepository) Create(ctx context.Context, c *contribution.Contribution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{cycleID: c.CycleID, memberID: c.MemberID}
	if _, exists := r.byPair[key]; exists {
		return idb.ErrDuplicateContribution
	}
	c.CreatedAt = time.Now()
	cc := *c
	r.byID[c.ID] = &cc
	r.byPair[key] = c.ID
	r.byCycle[c.CycleID] = append(r.byCycle[c.CycleID], c.ID)
	return nil
}

func (r *ContributionRepository) ListByCycle(ctx context.Context, cycleID string) ([]*contribution.Contribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*contribution.Contribution, 0, len(r.byCycle[cycleID]))
	for _, id := range r.byCycle[cycleID] {
		cc := *r.byID[id]
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (r *ContributionRepository) CountFunded(ctx context.Context, cycleID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, id := range r.byCycle[cycleID] {
		if r.byID[id].Status.Funded() {
			count++
		}
	}
	return count, nil
}
