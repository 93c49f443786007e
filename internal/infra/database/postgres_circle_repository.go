package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tanda_circle_engine/internal/domain/circle"
)

var (
	ErrCircleNotFound = fmt.Errorf("circle not found")
	ErrCycleNotFound  = fmt.Errorf("cycle not found")
	ErrMemberNotFound = fmt.Errorf("member not found")
)

type PostgresCircleRepository struct {
	db *sql.DB
}

func NewPostgresCircleRepository(db *sql.DB) *PostgresCircleRepository {
	return &PostgresCircleRepository{db: db}
}

func (r *PostgresCircleRepository) Create(ctx context.Context, c *circle.Circle, members []*circle.Member, cycles []*circle.Cycle) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for circle create: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	circleQuery := `INSERT INTO circles
        (id, name, admin_user_id, contribution_amount, currency, frequency, member_count,
         start_date, grace_period_days, rotation_method, total_cycles, beneficiary_member_id,
         rotation_seed, status, config_frozen, payouts_halted)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        RETURNING created_at, updated_at`
	err = txn.QueryRowContext(ctx, circleQuery,
		c.ID, c.Name, c.AdminUserID, c.ContributionAmount, c.Currency, c.Frequency, c.MemberCount,
		c.StartDate, c.GracePeriodDays, c.RotationMethod, c.TotalCycles, c.BeneficiaryMemberID,
		c.RotationSeed, c.Status, c.ConfigFrozen, c.PayoutsHalted,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error creating circle: %w", err)
	}

	memberStmt, err := txn.PrepareContext(ctx, `INSERT INTO members
        (id, circle_id, user_id, display_name, position, status, score_at_joining, joined_at, telegram_chat_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING created_at, updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare member insert: %w", err)
	}
	defer memberStmt.Close()
	for _, m := range members {
		err := memberStmt.QueryRowContext(ctx,
			m.ID, m.CircleID, m.UserID, m.DisplayName, m.Position, m.Status,
			m.ScoreAtJoining, m.JoinedAt, m.TelegramChatID,
		).Scan(&m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("error creating member %s: %w", m.ID, err)
		}
	}

	cycleStmt, err := txn.PrepareContext(ctx, `INSERT INTO cycles
        (id, circle_id, cycle_number, deadline, recipient_member_id, pot_amount, status, needs_manual_review)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare cycle insert: %w", err)
	}
	defer cycleStmt.Close()
	for _, cy := range cycles {
		err := cycleStmt.QueryRowContext(ctx,
			cy.ID, cy.CircleID, cy.Number, cy.Deadline, cy.RecipientMemberID,
			cy.PotAmount, cy.Status, cy.NeedsManualReview,
		).Scan(&cy.CreatedAt, &cy.UpdatedAt)
		if err != nil {
			return fmt.Errorf("error creating cycle %d: %w", cy.Number, err)
		}
	}

	return txn.Commit()
}

func (r *PostgresCircleRepository) GetByID(ctx context.Context, circleID string) (*circle.Circle, error) {
	query := `SELECT id, name, admin_user_id, contribution_amount, currency, frequency, member_count,
                     start_date, grace_period_days, rotation_method, total_cycles, beneficiary_member_id,
                     rotation_seed, status, close_reason, config_frozen, payouts_halted, created_at, updated_at
              FROM circles WHERE id = $1`
	c := circle.Circle{}
	err := r.db.QueryRowContext(ctx, query, circleID).Scan(
		&c.ID, &c.Name, &c.AdminUserID, &c.ContributionAmount, &c.Currency, &c.Frequency, &c.MemberCount,
		&c.StartDate, &c.GracePeriodDays, &c.RotationMethod, &c.TotalCycles, &c.BeneficiaryMemberID,
		&c.RotationSeed, &c.Status, &c.CloseReason, &c.ConfigFrozen, &c.PayoutsHalted, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCircleNotFound
		}
		return nil, fmt.Errorf("error getting circle by ID: %w", err)
	}
	return &c, nil
}

const memberColumns = `id, circle_id, user_id, display_name, position, status, score_at_joining,
                       joined_at, telegram_chat_id, created_at, updated_at`

func scanMember(row *sql.Row) (*circle.Member, error) {
	m := circle.Member{}
	err := row.Scan(
		&m.ID, &m.CircleID, &m.UserID, &m.DisplayName, &m.Position, &m.Status,
		&m.ScoreAtJoining, &m.JoinedAt, &m.TelegramChatID, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresCircleRepository) ListMembers(ctx context.Context, circleID string) ([]*circle.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE circle_id = $1 ORDER BY position`
	rows, err := r.db.QueryContext(ctx, query, circleID)
	if err != nil {
		return nil, fmt.Errorf("error querying members by circle: %w", err)
	}
	defer rows.Close()

	members := make([]*circle.Member, 0)
	for rows.Next() {
		m := circle.Member{}
		if err := rows.Scan(
			&m.ID, &m.CircleID, &m.UserID, &m.DisplayName, &m.Position, &m.Status,
			&m.ScoreAtJoining, &m.JoinedAt, &m.TelegramChatID, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning member row: %w", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}
	return members, nil
}

func (r *PostgresCircleRepository) GetMember(ctx context.Context, memberID string) (*circle.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	m, err := scanMember(r.db.QueryRowContext(ctx, query, memberID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("error getting member by ID: %w", err)
	}
	return m, nil
}

func (r *PostgresCircleRepository) UpdateMemberPositions(ctx context.Context, circleID string, positions map[string]int) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for position update: %w", err)
	}
	defer txn.Rollback()

	// The unique (circle_id, position) constraint is deferrable so the
	// permutation can be rewritten in one transaction.
	if _, err := txn.ExecContext(ctx, `SET CONSTRAINTS members_circle_position_unique DEFERRED`); err != nil {
		return fmt.Errorf("failed to defer position constraint: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, `UPDATE members SET position = $1, updated_at = NOW()
        WHERE id = $2 AND circle_id = $3`)
	if err != nil {
		return fmt.Errorf("failed to prepare position update: %w", err)
	}
	defer stmt.Close()
	for memberID, pos := range positions {
		res, err := stmt.ExecContext(ctx, pos, memberID, circleID)
		if err != nil {
			return fmt.Errorf("error updating position of member %s: %w", memberID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading rows affected for member %s: %w", memberID, err)
		}
		if affected == 0 {
			return ErrMemberNotFound
		}
	}
	return txn.Commit()
}

const cycleColumns = `id, circle_id, cycle_number, deadline, recipient_member_id, pot_amount,
                      status, needs_manual_review, created_at, updated_at`

func (r *PostgresCircleRepository) GetCycle(ctx context.Context, cycleID string) (*circle.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE id = $1`
	cy := circle.Cycle{}
	err := r.db.QueryRowContext(ctx, query, cycleID).Scan(
		&cy.ID, &cy.CircleID, &cy.Number, &cy.Deadline, &cy.RecipientMemberID,
		&cy.PotAmount, &cy.Status, &cy.NeedsManualReview, &cy.CreatedAt, &cy.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCycleNotFound
		}
		return nil, fmt.Errorf("error getting cycle by ID: %w", err)
	}
	return &cy, nil
}

func scanCycles(rows *sql.Rows) ([]*circle.Cycle, error) {
	cycles := make([]*circle.Cycle, 0)
	for rows.Next() {
		cy := circle.Cycle{}
		if err := rows.Scan(
			&cy.ID, &cy.CircleID, &cy.Number, &cy.Deadline, &cy.RecipientMemberID,
			&cy.PotAmount, &cy.Status, &cy.NeedsManualReview, &cy.CreatedAt, &cy.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning cycle row: %w", err)
		}
		cycles = append(cycles, &cy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycle rows: %w", err)
	}
	return cycles, nil
}

func (r *PostgresCircleRepository) ListCycles(ctx context.Context, circleID string) ([]*circle.Cycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM cycles WHERE circle_id = $1 ORDER BY cycle_number`
	rows, err := r.db.QueryContext(ctx, query, circleID)
	if err != nil {
		return nil, fmt.Errorf("error querying cycles by circle: %w", err)
	}
	defer rows.Close()
	return scanCycles(rows)
}

func (r *PostgresCircleRepository) CompareAndSwapCycleStatus(ctx context.Context, cycleID string, from, to circle.CycleStatus) (bool, error) {
	query := `UPDATE cycles SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, to, cycleID, from)
	if err != nil {
		return false, fmt.Errorf("error swapping cycle status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected for cycle status swap: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresCircleRepository) SetCycleRecipient(ctx context.Context, cycleID, memberID string) error {
	query := `UPDATE cycles SET recipient_member_id = $1, updated_at = NOW() WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, memberID, cycleID)
	if err != nil {
		return fmt.Errorf("error setting cycle recipient: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for recipient update: %w", err)
	}
	if affected == 0 {
		return ErrCycleNotFound
	}
	return nil
}

func (r *PostgresCircleRepository) MarkCycleForReview(ctx context.Context, cycleID string) error {
	query := `UPDATE cycles SET needs_manual_review = TRUE, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, cycleID)
	if err != nil {
		return fmt.Errorf("error marking cycle for review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for review flag: %w", err)
	}
	if affected == 0 {
		return ErrCycleNotFound
	}
	return nil
}

func (r *PostgresCircleRepository) ListSweepDue(ctx context.Context, asOf time.Time) ([]*circle.Cycle, error) {
	query := `SELECT cy.id, cy.circle_id, cy.cycle_number, cy.deadline, cy.recipient_member_id,
                     cy.pot_amount, cy.status, cy.needs_manual_review, cy.created_at, cy.updated_at
              FROM cycles cy
              JOIN circles c ON c.id = cy.circle_id
              WHERE c.status = 'ACTIVE'
                AND cy.status IN ('PENDING', 'FUNDING')
                AND cy.deadline + make_interval(days => c.grace_period_days) <= $1
              ORDER BY cy.deadline ASC`
	rows, err := r.db.QueryContext(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("error querying cycles due for sweep: %w", err)
	}
	defer rows.Close()
	return scanCycles(rows)
}

func (r *PostgresCircleRepository) MarkConfigFrozen(ctx context.Context, circleID string) error {
	query := `UPDATE circles SET config_frozen = TRUE, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, circleID)
	if err != nil {
		return fmt.Errorf("error freezing circle config: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for config freeze: %w", err)
	}
	if affected == 0 {
		return ErrCircleNotFound
	}
	return nil
}

func (r *PostgresCircleRepository) HaltPayouts(ctx context.Context, circleID string) error {
	query := `UPDATE circles SET payouts_halted = TRUE, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, circleID)
	if err != nil {
		return fmt.Errorf("error halting circle payouts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for payout halt: %w", err)
	}
	if affected == 0 {
		return ErrCircleNotFound
	}
	return nil
}

func (r *PostgresCircleRepository) Close(ctx context.Context, circleID, reason string) error {
	query := `UPDATE circles SET status = 'CLOSED', close_reason = $1, updated_at = NOW()
              WHERE id = $2 AND status = 'ACTIVE'`
	res, err := r.db.ExecContext(ctx, query, reason, circleID)
	if err != nil {
		return fmt.Errorf("error closing circle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for circle close: %w", err)
	}
	if affected == 0 {
		return ErrCircleNotFound
	}
	return nil
}

func (r *PostgresCircleRepository) LookupChatID(ctx context.Context, userID string) (int64, bool, error) {
	query := `SELECT telegram_chat_id FROM members
              WHERE user_id = $1 AND telegram_chat_id IS NOT NULL
              ORDER BY updated_at DESC LIMIT 1`
	var chatID int64
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&chatID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("error looking up chat id for user %s: %w", userID, err)
	}
	return chatID, true, nil
}
