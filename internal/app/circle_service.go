package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tanda_circle_engine/internal/domain/circle"
	"tanda_circle_engine/internal/domain/contribution"
	"tanda_circle_engine/internal/domain/notify"
	"tanda_circle_engine/internal/domain/trust"
	idb "tanda_circle_engine/internal/infra/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CircleService orchestrates a circle's full life: creation (schedule and
// rotation computed once, all cycles persisted up front), the periodic
// grace-period sweep, admin member reordering, and closure.
type CircleService interface {
	CreateCircle(ctx context.Context, params CreateCircleParams) (*CircleState, error)
	GetCircleState(ctx context.Context, circleID string) (*CircleState, error)
	// CloseCircle is terminal: a closed circle accepts no further
	// contributions or payouts. Reachable manually at any time by the
	// circle admin; completion closes the circle automatically.
	CloseCircle(ctx context.Context, circleID, requestedBy, reason string) error
	// ReorderMembers rewrites the payout order. Admin-gated and only
	// allowed while cycle 1 is still open.
	ReorderMembers(ctx context.Context, circleID, requestedBy string, order map[string]int) error
	// SweepDueCycles finalizes every open cycle whose grace window has
	// closed: records missed facts and default score events for absent
	// members, then settles the cycle as fully funded or defaulted.
	SweepDueCycles(ctx context.Context) error
}

// PayoutTrigger is the slice of the contribution service the sweep needs
// when a late contribution completed the pot.
type PayoutTrigger interface {
	TriggerPayout(ctx context.Context, cycleID string) error
}

// CreateCircleParams is the inbound circle configuration.
type CreateCircleParams struct {
	Name               string
	AdminUserID        string
	ContributionAmount decimal.Decimal
	Currency           string
	Frequency          string
	StartDate          time.Time
	GracePeriodDays    int
	RotationMethod     string
	TotalCycles        int
	Members            []CreateMemberParams
	// ManualOrder maps member UserID -> position, required for MANUAL.
	ManualOrder map[string]int
	// BeneficiaryUserID names the fixed recipient, required for
	// BENEFICIARY_FIXED; must be one of the members.
	BeneficiaryUserID string
}

type CreateMemberParams struct {
	UserID         string
	DisplayName    string
	JoinedAt       time.Time
	TelegramChatID *int64
}

// CircleState is the read snapshot returned to the API layer.
type CircleState struct {
	Circle  *circle.Circle
	Members []*circle.Member
	Cycles  []*CycleState
}

type CycleState struct {
	Cycle       *circle.Cycle
	FundedCount int
}

type CircleServiceImpl struct {
	circleRepo  circle.Repository
	contribRepo contribution.Repository
	trustLedger *trust.Ledger
	notifier    notify.Notifier
	payouts     PayoutTrigger
	locks       *CycleLocks
	logger      *logrus.Logger
	clock       func() time.Time
}

func NewCircleService(
	circleRepo circle.Repository,
	contribRepo contribution.Repository,
	trustLedger *trust.Ledger,
	notifier notify.Notifier,
	payouts PayoutTrigger,
	locks *CycleLocks,
	logger *logrus.Logger,
) *CircleServiceImpl {
	return &CircleServiceImpl{
		circleRepo:  circleRepo,
		contribRepo: contribRepo,
		trustLedger: trustLedger,
		notifier:    notifier,
		payouts:     payouts,
		locks:       locks,
		logger:      logger,
		clock:       time.Now,
	}
}

func (s *CircleServiceImpl) CreateCircle(ctx context.Context, params CreateCircleParams) (*CircleState, error) {
	frequency, err := circle.ParseFrequency(params.Frequency)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	method, err := circle.ParseRotationMethod(params.RotationMethod)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	totalCycles := params.TotalCycles
	if frequency == circle.FrequencyOneTime {
		totalCycles = 1
	}

	now := s.clock()
	if params.StartDate.Before(startOfDay(now)) {
		return nil, validationf("start date %s is in the past", params.StartDate.Format("2006-01-02"))
	}
	if len(params.Members) == 0 {
		return nil, validationf("circle requires at least one member")
	}

	members := make([]*circle.Member, 0, len(params.Members))
	seenUsers := make(map[string]bool, len(params.Members))
	circleID := uuid.NewString()
	var beneficiaryMemberID string
	for _, mp := range params.Members {
		if mp.UserID == "" {
			return nil, validationf("every member requires a user id")
		}
		if seenUsers[mp.UserID] {
			return nil, validationf("user %s appears twice in the member list", mp.UserID)
		}
		seenUsers[mp.UserID] = true
		joined := mp.JoinedAt
		if joined.IsZero() {
			joined = now
		}
		m := &circle.Member{
			ID:          uuid.NewString(),
			CircleID:    circleID,
			UserID:      mp.UserID,
			DisplayName: mp.DisplayName,
			Status:      circle.MemberActive,
			JoinedAt:    joined,
		}
		if mp.TelegramChatID != nil {
			m.TelegramChatID = sql.NullInt64{Int64: *mp.TelegramChatID, Valid: true}
		}
		if mp.UserID == params.BeneficiaryUserID {
			beneficiaryMemberID = m.ID
		}
		members = append(members, m)
	}
	if method == circle.RotationBeneficiaryFixed && beneficiaryMemberID == "" {
		return nil, validationf("beneficiary %s is not a member of the circle", params.BeneficiaryUserID)
	}

	circ := &circle.Circle{
		ID:                 circleID,
		Name:               params.Name,
		AdminUserID:        params.AdminUserID,
		ContributionAmount: params.ContributionAmount,
		Currency:           params.Currency,
		Frequency:          frequency,
		MemberCount:        len(members),
		StartDate:          params.StartDate,
		GracePeriodDays:    params.GracePeriodDays,
		RotationMethod:     method,
		TotalCycles:        totalCycles,
		Status:             circle.StatusActive,
	}
	if beneficiaryMemberID != "" {
		circ.BeneficiaryMemberID = sql.NullString{String: beneficiaryMemberID, Valid: true}
	}
	if err := circ.ValidateConfig(); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	// Denormalized score reads: used for SCORE_RANKED ordering and kept on
	// the member row for display. The ledger stays the source of truth.
	scores := make(map[string]int, len(members))
	for _, m := range members {
		score, err := s.trustLedger.CurrentScore(ctx, m.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to read trust score for user %s: %w", m.UserID, err)
		}
		scores[m.UserID] = score
		m.ScoreAtJoining = score
	}

	var seed int64
	if method == circle.RotationRandomDraw {
		seed, err = circle.NewDrawSeed()
		if err != nil {
			return nil, err
		}
		circ.RotationSeed = sql.NullInt64{Int64: seed, Valid: true}
	}

	manualByMemberID := make(map[string]int, len(params.ManualOrder))
	if method == circle.RotationManual {
		for _, m := range members {
			if pos, ok := params.ManualOrder[m.UserID]; ok {
				manualByMemberID[m.ID] = pos
			}
		}
	}

	positions, err := circle.AssignPositions(members, method, scores, manualByMemberID, seed)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	byPosition := make(map[int]*circle.Member, len(members))
	for _, m := range members {
		m.Position = positions[m.ID]
		byPosition[m.Position] = m
	}

	deadlines, err := circle.GenerateSchedule(params.StartDate, frequency, totalCycles)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	cycles := make([]*circle.Cycle, 0, totalCycles)
	pot := circ.PotAmount()
	for i, deadline := range deadlines {
		number := i + 1
		recipient := beneficiaryMemberID
		if method != circle.RotationBeneficiaryFixed {
			// Recipients follow positions; when a circle runs more cycles
			// than members the order wraps around.
			recipient = byPosition[(number-1)%len(members)+1].ID
		}
		cycles = append(cycles, &circle.Cycle{
			ID:                uuid.NewString(),
			CircleID:          circleID,
			Number:            number,
			Deadline:          deadline,
			RecipientMemberID: recipient,
			PotAmount:         pot,
			Status:            circle.CyclePending,
		})
	}

	if err := s.circleRepo.Create(ctx, circ, members, cycles); err != nil {
		return nil, fmt.Errorf("failed to persist circle: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"circle_id": circleID,
		"members":   len(members),
		"cycles":    totalCycles,
		"method":    method,
	}).Info("circle created")

	return s.GetCircleState(ctx, circleID)
}

func (s *CircleServiceImpl) GetCircleState(ctx context.Context, circleID string) (*CircleState, error) {
	circ, err := s.circleRepo.GetByID(ctx, circleID)
	if err != nil {
		if errors.Is(err, idb.ErrCircleNotFound) {
			return nil, validationf("circle %s not found", circleID)
		}
		return nil, fmt.Errorf("failed to load circle %s: %w", circleID, err)
	}
	members, err := s.circleRepo.ListMembers(ctx, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of circle %s: %w", circleID, err)
	}
	cycles, err := s.circleRepo.ListCycles(ctx, circleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles of circle %s: %w", circleID, err)
	}
	state := &CircleState{Circle: circ, Members: members}
	for _, cyc := range cycles {
		funded, err := s.contribRepo.CountFunded(ctx, cyc.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count contributions for cycle %s: %w", cyc.ID, err)
		}
		state.Cycles = append(state.Cycles, &CycleState{Cycle: cyc, FundedCount: funded})
	}
	return state, nil
}

func (s *CircleServiceImpl) CloseCircle(ctx context.Context, circleID, requestedBy, reason string) error {
	circ, err := s.circleRepo.GetByID(ctx, circleID)
	if err != nil {
		if errors.Is(err, idb.ErrCircleNotFound) {
			return validationf("circle %s not found", circleID)
		}
		return fmt.Errorf("failed to load circle %s: %w", circleID, err)
	}
	if requestedBy != circ.AdminUserID {
		return validationf("only the circle admin may close the circle")
	}
	if circ.Status == circle.StatusClosed {
		return conflictf("circle %s is already closed", circleID)
	}
	if err := s.circleRepo.Close(ctx, circleID, reason); err != nil {
		return fmt.Errorf("failed to close circle %s: %w", circleID, err)
	}
	s.logger.WithFields(logrus.Fields{"circle_id": circleID, "reason": reason}).Info("circle closed")
	s.notifyAll(ctx, circleID, notify.EventCircleClosed, map[string]string{"circle": circ.Name, "reason": reason})
	return nil
}

func (s *CircleServiceImpl) ReorderMembers(ctx context.Context, circleID, requestedBy string, order map[string]int) error {
	circ, err := s.circleRepo.GetByID(ctx, circleID)
	if err != nil {
		if errors.Is(err, idb.ErrCircleNotFound) {
			return validationf("circle %s not found", circleID)
		}
		return fmt.Errorf("failed to load circle %s: %w", circleID, err)
	}
	if requestedBy != circ.AdminUserID {
		return validationf("only the circle admin may reorder members")
	}
	if circ.Status == circle.StatusClosed {
		return conflictf("circle %s is closed", circleID)
	}

	cycles, err := s.circleRepo.ListCycles(ctx, circleID)
	if err != nil {
		return fmt.Errorf("failed to list cycles of circle %s: %w", circleID, err)
	}
	for _, cyc := range cycles {
		if cyc.Number == 1 && cyc.Status.Terminal() {
			return conflictf("member order is locked once cycle 1 closes")
		}
	}

	members, err := s.circleRepo.ListMembers(ctx, circleID)
	if err != nil {
		return fmt.Errorf("failed to list members of circle %s: %w", circleID, err)
	}
	if err := circle.ValidateManualOrder(members, order); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if err := s.circleRepo.UpdateMemberPositions(ctx, circleID, order); err != nil {
		return fmt.Errorf("failed to update member positions: %w", err)
	}

	// Recipients of still-open cycles follow the new order. Paid and
	// defaulted cycles keep their historical recipient.
	if circ.RotationMethod != circle.RotationBeneficiaryFixed {
		byPosition := make(map[int]string, len(order))
		for memberID, pos := range order {
			byPosition[pos] = memberID
		}
		for _, cyc := range cycles {
			if cyc.Status.Terminal() {
				continue
			}
			recipient := byPosition[(cyc.Number-1)%len(members)+1]
			if recipient == cyc.RecipientMemberID {
				continue
			}
			if err := s.circleRepo.SetCycleRecipient(ctx, cyc.ID, recipient); err != nil {
				return fmt.Errorf("failed to update recipient of cycle %s: %w", cyc.ID, err)
			}
		}
	}
	s.logger.WithField("circle_id", circleID).Info("member order updated")
	return nil
}

func (s *CircleServiceImpl) SweepDueCycles(ctx context.Context) error {
	due, err := s.circleRepo.ListSweepDue(ctx, s.clock())
	if err != nil {
		return fmt.Errorf("failed to list cycles due for sweep: %w", err)
	}
	for _, cyc := range due {
		payoutDue, err := s.sweepCycle(ctx, cyc.ID)
		if err != nil {
			s.logger.WithError(err).WithField("cycle_id", cyc.ID).Error("cycle sweep failed")
			continue
		}
		if payoutDue {
			// TriggerPayout takes the cycle lock itself, so it runs after
			// sweepCycle released it.
			if err := s.payouts.TriggerPayout(ctx, cyc.ID); err != nil {
				s.logger.WithError(err).WithField("cycle_id", cyc.ID).Error("payout failed after sweep funding")
			}
		}
	}
	return nil
}

// sweepCycle finalizes one cycle whose grace window has closed. It runs
// under the same per-cycle lock as contribution recording, so any
// contribution durably recorded before the sweep's read always counts and
// is never turned into a miss. Returns true when the cycle became fully
// funded and a payout should be triggered once the lock is released.
func (s *CircleServiceImpl) sweepCycle(ctx context.Context, cycleID string) (bool, error) {
	unlock := s.locks.Lock(cycleID)
	defer unlock()

	cyc, err := s.circleRepo.GetCycle(ctx, cycleID)
	if err != nil {
		return false, fmt.Errorf("failed to load cycle %s: %w", cycleID, err)
	}
	if cyc.Status != circle.CyclePending && cyc.Status != circle.CycleFunding {
		return false, nil // settled since the due list was read
	}
	circ, err := s.circleRepo.GetByID(ctx, cyc.CircleID)
	if err != nil {
		return false, fmt.Errorf("failed to load circle %s: %w", cyc.CircleID, err)
	}
	if circ.Status == circle.StatusClosed {
		return false, nil
	}

	members, err := s.circleRepo.ListMembers(ctx, cyc.CircleID)
	if err != nil {
		return false, fmt.Errorf("failed to list members of circle %s: %w", cyc.CircleID, err)
	}
	contribs, err := s.contribRepo.ListByCycle(ctx, cycleID)
	if err != nil {
		return false, fmt.Errorf("failed to list contributions of cycle %s: %w", cycleID, err)
	}
	contributed := make(map[string]bool, len(contribs))
	for _, c := range contribs {
		contributed[c.MemberID] = true
	}

	now := s.clock()
	for _, m := range members {
		if contributed[m.ID] {
			continue
		}
		missed := &contribution.Contribution{
			ID:          uuid.NewString(),
			CycleID:     cycleID,
			MemberID:    m.ID,
			Amount:      decimal.Zero,
			Status:      contribution.StatusMissed,
			SubmittedAt: now,
		}
		if err := s.contribRepo.Create(ctx, missed); err != nil {
			if errors.Is(err, idb.ErrDuplicateContribution) {
				continue // the member paid between our read and now; their contribution wins
			}
			return false, fmt.Errorf("failed to record missed contribution for member %s: %w", m.ID, err)
		}
		s.recordScore(ctx, m.UserID, trust.EventDefault, scoreKey(cycleID, m.ID, trust.EventDefault))
		s.sendNotification(ctx, m.UserID, notify.EventDefaultWarning, map[string]string{
			"circle": circ.Name, "cycle": fmt.Sprintf("%d", cyc.Number),
		})
		s.logger.WithFields(logrus.Fields{"cycle_id": cycleID, "member_id": m.ID}).Warn("member defaulted on cycle")
	}

	funded, err := s.contribRepo.CountFunded(ctx, cycleID)
	if err != nil {
		return false, fmt.Errorf("failed to count funded contributions for cycle %s: %w", cycleID, err)
	}
	if funded == circ.MemberCount {
		// Everyone paid, some within the grace window. The cycle funds and
		// pays out as usual.
		if _, err := s.circleRepo.CompareAndSwapCycleStatus(ctx, cycleID, cyc.Status, circle.CycleFullyFunded); err != nil {
			return false, fmt.Errorf("failed to mark swept cycle %s fully funded: %w", cycleID, err)
		}
		return true, nil
	}

	swapped, err := s.circleRepo.CompareAndSwapCycleStatus(ctx, cycleID, cyc.Status, circle.CycleDefaulted)
	if err != nil {
		return false, fmt.Errorf("failed to mark cycle %s defaulted: %w", cycleID, err)
	}
	if swapped {
		s.logger.WithFields(logrus.Fields{"cycle_id": cycleID, "funded": funded, "members": circ.MemberCount}).Warn("cycle defaulted")
		// Collected funds stay put: the remedy for a defaulted pot is an
		// operator decision, not an automatic refund or roll-forward.
		s.notifyAll(ctx, cyc.CircleID, notify.EventCycleDefaulted, map[string]string{
			"circle": circ.Name, "cycle": fmt.Sprintf("%d", cyc.Number),
		})
	}
	return false, nil
}

func (s *CircleServiceImpl) recordScore(ctx context.Context, userID string, eventType trust.EventType, key string) {
	if _, err := s.trustLedger.RecordEvent(ctx, userID, eventType, key); err != nil {
		if errors.Is(err, idb.ErrDuplicateScoreEvent) {
			return
		}
		s.logger.WithError(err).WithFields(logrus.Fields{"user_id": userID, "event": eventType}).Error("failed to record score event")
	}
}

func (s *CircleServiceImpl) sendNotification(ctx context.Context, userID string, event notify.EventType, payload map[string]string) {
	if err := s.notifier.Notify(ctx, userID, event, payload); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"user_id": userID, "event": event}).Warn("notification delivery failed")
	}
}

func (s *CircleServiceImpl) notifyAll(ctx context.Context, circleID string, event notify.EventType, payload map[string]string) {
	members, err := s.circleRepo.ListMembers(ctx, circleID)
	if err != nil {
		s.logger.WithError(err).WithField("circle_id", circleID).Warn("failed to list members for notification")
		return
	}
	for _, m := range members {
		s.sendNotification(ctx, m.UserID, event, payload)
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
