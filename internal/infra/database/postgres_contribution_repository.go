package database

import (
	"context"
	"database/sql"
	"fmt"

	"tanda_circle_engine/internal/domain/contribution"
)

// ErrDuplicateContribution rejects a second contribution for the same
// (cycle, member) pair; backed by the cycle_member_unique constraint.
var ErrDuplicateContribution = fmt.Errorf("duplicate contribution (cycle_id, member_id)")

type PostgresContributionRepository struct {
	db *sql.DB
}

func NewPostgresContributionRepository(db *sql.DB) *PostgresContributionRepository {
	return &PostgresContributionRepository{db: db}
}

func (r *PostgresContributionRepository) Create(ctx context.Context, c *contribution.Contribution) error {
	query := `INSERT INTO contributions (id, cycle_id, member_id, amount, status, submitted_at)
              VALUES ($1, $2, $3, $4, $5, $6)
              RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query, c.ID, c.CycleID, c.MemberID, c.Amount, c.Status, c.SubmittedAt).Scan(&c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "cycle_member_unique") {
			return ErrDuplicateContribution
		}
		return fmt.Errorf("error creating contribution: %w", err)
	}
	return nil
}

func (r *PostgresContributionRepository) ListByCycle(ctx context.Context, cycleID string) ([]*contribution.Contribution, error) {
	query := `SELECT id, cycle_id, member_id, amount, status, submitted_at, created_at
              FROM contributions WHERE cycle_id = $1 ORDER BY submitted_at ASC`
	rows, err := r.db.QueryContext(ctx, query, cycleID)
	if err != nil {
		return nil, fmt.Errorf("error querying contributions by cycle: %w", err)
	}
	defer rows.Close()

	contribs := make([]*contribution.Contribution, 0)
	for rows.Next() {
		c := contribution.Contribution{}
		if err := rows.Scan(&c.ID, &c.CycleID, &c.MemberID, &c.Amount, &c.Status, &c.SubmittedAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning contribution row: %w", err)
		}
		contribs = append(contribs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contribution rows: %w", err)
	}
	return contribs, nil
}

func (r *PostgresContributionRepository) CountFunded(ctx context.Context, cycleID string) (int, error) {
	query := `SELECT COUNT(*) FROM contributions
              WHERE cycle_id = $1 AND status IN ('ON_TIME', 'LATE')`
	var count int
	if err := r.db.QueryRowContext(ctx, query, cycleID).Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting funded contributions: %w", err)
	}
	return count, nil
}
