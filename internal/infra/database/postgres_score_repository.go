package database

import (
	"context"
	"database/sql"
	"fmt"

	"tanda_circle_engine/internal/domain/trust"
)

// ErrDuplicateScoreEvent rejects an idempotency key that was already
// appended; the ledger itself never deduplicates.
var ErrDuplicateScoreEvent = fmt.Errorf("duplicate score event (idempotency_key)")

type PostgresScoreRepository struct {
	db *sql.DB
}

func NewPostgresScoreRepository(db *sql.DB) *PostgresScoreRepository {
	return &PostgresScoreRepository{db: db}
}

func (r *PostgresScoreRepository) Append(ctx context.Context, e *trust.Event) error {
	query := `INSERT INTO score_events (user_id, event_type, delta, idempotency_key, occurred_at)
              VALUES ($1, $2, $3, $4, $5)
              RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, e.UserID, e.Type, e.Delta, e.IdempotencyKey, e.OccurredAt).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "score_events_idempotency_key_key") {
			return ErrDuplicateScoreEvent
		}
		return fmt.Errorf("error appending score event: %w", err)
	}
	return nil
}

func (r *PostgresScoreRepository) ListByUser(ctx context.Context, userID string) ([]*trust.Event, error) {
	query := `SELECT id, user_id, event_type, delta, idempotency_key, occurred_at, created_at
              FROM score_events WHERE user_id = $1 ORDER BY occurred_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying score events by user: %w", err)
	}
	defer rows.Close()

	events := make([]*trust.Event, 0)
	for rows.Next() {
		e := trust.Event{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Delta, &e.IdempotencyKey, &e.OccurredAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning score event row: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score event rows: %w", err)
	}
	return events, nil
}
