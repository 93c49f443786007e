package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tanda_circle_engine/internal/domain/trust"
	idb "tanda_circle_engine/internal/infra/database"
)

type ScoreRepository struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[string]struct{}
	byUser map[string][]*trust.Event
}

func NewScoreRepository() *ScoreRepository {
	return &ScoreRepository{
		byKey:  make(map[string]struct{}),
		byUser: make(map[string][]*trust.Event),
	}
}

func (r *ScoreRepository) Append(ctx context.Context, e *trust.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byKey[e.IdempotencyKey]; exists {
		return idb.ErrDuplicateScoreEvent
	}
	r.nextID++
	e.ID = r.nextID
	e.CreatedAt = time.Now()
	ec := *e
	r.byKey[e.IdempotencyKey] = struct{}{}
	r.byUser[e.UserID] = append(r.byUser[e.UserID], &ec)
	return nil
}

func (r *ScoreRepository) ListByUser(ctx context.Context, userID string) ([]*trust.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := r.byUser[userID]
	out := make([]*trust.Event, 0, len(events))
	for _, e := range events {
		ec := *e
		out = append(out, &ec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
