package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tanda_circle_engine/internal/domain/circle"
	"tanda_circle_engine/internal/domain/contribution"
	"tanda_circle_engine/internal/domain/notify"
	"tanda_circle_engine/internal/domain/payout"
	"tanda_circle_engine/internal/domain/trust"
	"tanda_circle_engine/internal/domain/wallet"
	idb "tanda_circle_engine/internal/infra/database"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ContributionService records contributions and drives the payout state
// machine for the cycles they fund.
type ContributionService interface {
	// RecordContribution accepts one member's payment for one cycle,
	// classifies it against the deadline and grace window, and triggers the
	// payout when the cycle becomes fully funded.
	RecordContribution(ctx context.Context, cycleID, memberID string, amount decimal.Decimal) (*contribution.Contribution, error)
	// TriggerPayout emits the payout instruction for a fully funded cycle.
	// It is idempotent-safe: concurrent callers race on the per-cycle lock
	// and exactly one rail call is made. It is also the caller-driven retry
	// path after a rail outage; the idempotency key is always the cycle id.
	TriggerPayout(ctx context.Context, cycleID string) error
}

type ContributionServiceImpl struct {
	circleRepo  circle.Repository
	contribRepo contribution.Repository
	trustLedger *trust.Ledger
	rail        payout.Rail
	notifier    notify.Notifier
	balances    wallet.BalanceProvider
	locks       *CycleLocks
	logger      *logrus.Logger

	maxPayoutRetries uint64
	clock            func() time.Time
}

func NewContributionService(
	circleRepo circle.Repository,
	contribRepo contribution.Repository,
	trustLedger *trust.Ledger,
	rail payout.Rail,
	notifier notify.Notifier,
	balances wallet.BalanceProvider,
	locks *CycleLocks,
	logger *logrus.Logger,
	maxPayoutRetries uint64,
) *ContributionServiceImpl {
	return &ContributionServiceImpl{
		circleRepo:       circleRepo,
		contribRepo:      contribRepo,
		trustLedger:      trustLedger,
		rail:             rail,
		notifier:         notifier,
		balances:         balances,
		locks:            locks,
		logger:           logger,
		maxPayoutRetries: maxPayoutRetries,
		clock:            time.Now,
	}
}

func (s *ContributionServiceImpl) RecordContribution(ctx context.Context, cycleID, memberID string, amount decimal.Decimal) (*contribution.Contribution, error) {
	unlock := s.locks.Lock(cycleID)
	defer unlock()

	cyc, err := s.circleRepo.GetCycle(ctx, cycleID)
	if err != nil {
		if errors.Is(err, idb.ErrCycleNotFound) {
			return nil, validationf("cycle %s not found", cycleID)
		}
		return nil, fmt.Errorf("failed to load cycle %s: %w", cycleID, err)
	}
	circ, err := s.circleRepo.GetByID(ctx, cyc.CircleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load circle %s: %w", cyc.CircleID, err)
	}
	if circ.Status == circle.StatusClosed {
		return nil, conflictf("circle %s is closed; no further contributions accepted", circ.ID)
	}
	switch cyc.Status {
	case circle.CyclePaid, circle.CycleFullyFunded:
		return nil, conflictf("cycle already fully funded")
	case circle.CycleDefaulted:
		return nil, conflictf("cycle already defaulted")
	}

	member, err := s.circleRepo.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, idb.ErrMemberNotFound) {
			return nil, validationf("member %s not found", memberID)
		}
		return nil, fmt.Errorf("failed to load member %s: %w", memberID, err)
	}
	if member.CircleID != circ.ID {
		return nil, validationf("member %s does not belong to circle %s", memberID, circ.ID)
	}
	if member.Status != circle.MemberActive {
		return nil, validationf("member %s is not active in this circle", memberID)
	}
	if !amount.Equal(circ.ContributionAmount) {
		return nil, validationf("contribution must be exactly %s %s, got %s", circ.ContributionAmount, circ.Currency, amount)
	}

	balance, err := s.balances.Balance(ctx, member.UserID)
	if err != nil {
		return nil, &ExternalDependencyError{Reason: "wallet balance lookup failed", Err: err}
	}
	if balance.LessThan(amount) {
		return nil, validationf("insufficient wallet balance: have %s, need %s", balance, amount)
	}

	submittedAt := s.clock()
	status, err := contribution.Classify(submittedAt, cyc.Deadline, circ.GracePeriodDays)
	if err != nil {
		if errors.Is(err, contribution.ErrPastGracePeriod) {
			return nil, &ValidationError{Reason: err.Error()}
		}
		return nil, err
	}

	contrib := &contribution.Contribution{
		ID:          uuid.NewString(),
		CycleID:     cycleID,
		MemberID:    memberID,
		Amount:      amount,
		Status:      status,
		SubmittedAt: submittedAt,
	}
	if err := s.contribRepo.Create(ctx, contrib); err != nil {
		if errors.Is(err, idb.ErrDuplicateContribution) {
			return nil, conflictf("duplicate contribution detected")
		}
		return nil, fmt.Errorf("failed to record contribution: %w", err)
	}

	if !circ.ConfigFrozen {
		if err := s.circleRepo.MarkConfigFrozen(ctx, circ.ID); err != nil {
			s.logger.WithError(err).WithField("circle_id", circ.ID).Error("failed to freeze circle config")
		}
	}
	if cyc.Status == circle.CyclePending {
		if _, err := s.circleRepo.CompareAndSwapCycleStatus(ctx, cycleID, circle.CyclePending, circle.CycleFunding); err != nil {
			s.logger.WithError(err).WithField("cycle_id", cycleID).Error("failed to move cycle into funding")
		}
	}

	switch status {
	case contribution.StatusOnTime:
		s.recordScore(ctx, member.UserID, trust.EventOnTimeContribution, scoreKey(cycleID, memberID, trust.EventOnTimeContribution))
		s.sendNotification(ctx, member.UserID, notify.EventContributionReceived, map[string]string{
			"circle": circ.Name, "cycle": fmt.Sprintf("%d", cyc.Number), "amount": amount.String(),
		})
	case contribution.StatusLate:
		s.recordScore(ctx, member.UserID, trust.EventLateContribution, scoreKey(cycleID, memberID, trust.EventLateContribution))
		s.sendNotification(ctx, member.UserID, notify.EventLateContribution, map[string]string{
			"circle": circ.Name, "cycle": fmt.Sprintf("%d", cyc.Number), "amount": amount.String(),
		})
	}

	funded, err := s.contribRepo.CountFunded(ctx, cycleID)
	if err != nil {
		return contrib, fmt.Errorf("failed to count funded contributions for cycle %s: %w", cycleID, err)
	}
	if funded == circ.MemberCount {
		swapped, err := s.circleRepo.CompareAndSwapCycleStatus(ctx, cycleID, circle.CycleFunding, circle.CycleFullyFunded)
		if err != nil {
			return contrib, fmt.Errorf("failed to mark cycle %s fully funded: %w", cycleID, err)
		}
		if swapped {
			if err := s.triggerPayoutLocked(ctx, cycleID); err != nil {
				// The contribution itself succeeded; a payout failure is
				// reported separately and retried via TriggerPayout.
				s.logger.WithError(err).WithField("cycle_id", cycleID).Error("payout failed after full funding")
			}
		}
	}
	return contrib, nil
}

func (s *ContributionServiceImpl) TriggerPayout(ctx context.Context, cycleID string) error {
	unlock := s.locks.Lock(cycleID)
	defer unlock()
	return s.triggerPayoutLocked(ctx, cycleID)
}

// triggerPayoutLocked runs the fully-funded -> paid transition. The caller
// holds the cycle lock. The durable compare-and-swap on cycle status is
// the second guard: if it ever fails after the rail accepted, something
// else paid the cycle and the circle is halted for operator review.
func (s *ContributionServiceImpl) triggerPayoutLocked(ctx context.Context, cycleID string) error {
	cyc, err := s.circleRepo.GetCycle(ctx, cycleID)
	if err != nil {
		return fmt.Errorf("failed to load cycle %s: %w", cycleID, err)
	}
	if cyc.Status == circle.CyclePaid {
		return conflictf("cycle already paid")
	}
	if cyc.Status != circle.CycleFullyFunded {
		return conflictf("cycle is not fully funded (status %s)", cyc.Status)
	}
	circ, err := s.circleRepo.GetByID(ctx, cyc.CircleID)
	if err != nil {
		return fmt.Errorf("failed to load circle %s: %w", cyc.CircleID, err)
	}
	if circ.PayoutsHalted {
		return &IntegrityViolation{Reason: fmt.Sprintf("payouts for circle %s are halted pending operator review", circ.ID)}
	}

	recipient, err := s.circleRepo.GetMember(ctx, cyc.RecipientMemberID)
	if err != nil {
		return fmt.Errorf("failed to load recipient member %s: %w", cyc.RecipientMemberID, err)
	}

	if err := s.issueWithRetry(ctx, cyc, recipient.UserID); err != nil {
		if reviewErr := s.circleRepo.MarkCycleForReview(ctx, cycleID); reviewErr != nil {
			s.logger.WithError(reviewErr).WithField("cycle_id", cycleID).Error("failed to flag cycle for manual review")
		}
		return &ExternalDependencyError{Reason: "payout pending manual review", Err: err}
	}

	swapped, err := s.circleRepo.CompareAndSwapCycleStatus(ctx, cycleID, circle.CycleFullyFunded, circle.CyclePaid)
	if err != nil {
		return fmt.Errorf("failed to mark cycle %s paid: %w", cycleID, err)
	}
	if !swapped {
		if haltErr := s.circleRepo.HaltPayouts(ctx, circ.ID); haltErr != nil {
			s.logger.WithError(haltErr).WithField("circle_id", circ.ID).Error("failed to halt circle payouts")
		}
		return &IntegrityViolation{Reason: fmt.Sprintf("cycle %s left fully-funded state during payout; circle halted", cycleID)}
	}

	s.logger.WithFields(logrus.Fields{
		"cycle_id":  cycleID,
		"circle_id": circ.ID,
		"recipient": recipient.UserID,
		"amount":    cyc.PotAmount.String(),
	}).Info("payout issued")

	s.rewardOnTimeContributors(ctx, cyc)
	s.sendNotification(ctx, recipient.UserID, notify.EventPayoutSent, map[string]string{
		"circle": circ.Name, "cycle": fmt.Sprintf("%d", cyc.Number), "amount": cyc.PotAmount.String(),
	})

	if cyc.Number == circ.TotalCycles {
		if err := s.circleRepo.Close(ctx, circ.ID, "all cycles paid"); err != nil {
			s.logger.WithError(err).WithField("circle_id", circ.ID).Error("failed to auto-close completed circle")
		} else {
			s.notifyMembers(ctx, circ.ID, notify.EventCircleClosed, map[string]string{"circle": circ.Name, "reason": "completed"})
		}
	}
	return nil
}

// issueWithRetry calls the rail with capped exponential backoff and a
// bounded attempt count. Every attempt reuses the cycle id as idempotency
// key so the rail can deduplicate; a definitive rejection stops retrying
// immediately.
func (s *ContributionServiceImpl) issueWithRetry(ctx context.Context, cyc *circle.Cycle, recipientUserID string) error {
	op := func() error {
		err := s.rail.IssuePayout(ctx, cyc.ID, recipientUserID, cyc.PotAmount)
		var rej *payout.RejectionError
		if errors.As(err, &rej) {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.logger.WithError(err).WithField("cycle_id", cyc.ID).Warn("payout rail call failed, will retry")
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxPayoutRetries), ctx)
	return backoff.Retry(op, policy)
}

// rewardOnTimeContributors records the completion bonus for every on-time
// contributor of a paid cycle.
func (s *ContributionServiceImpl) rewardOnTimeContributors(ctx context.Context, cyc *circle.Cycle) {
	contribs, err := s.contribRepo.ListByCycle(ctx, cyc.ID)
	if err != nil {
		s.logger.WithError(err).WithField("cycle_id", cyc.ID).Error("failed to list contributions for completion bonus")
		return
	}
	for _, c := range contribs {
		if c.Status != contribution.StatusOnTime {
			continue
		}
		member, err := s.circleRepo.GetMember(ctx, c.MemberID)
		if err != nil {
			s.logger.WithError(err).WithField("member_id", c.MemberID).Error("failed to load member for completion bonus")
			continue
		}
		s.recordScore(ctx, member.UserID, trust.EventCircleCompleted, scoreKey(cyc.ID, c.MemberID, trust.EventCircleCompleted))
	}
}

// recordScore appends a trust event, treating a duplicate idempotency key
// as already recorded.
func (s *ContributionServiceImpl) recordScore(ctx context.Context, userID string, eventType trust.EventType, key string) {
	if _, err := s.trustLedger.RecordEvent(ctx, userID, eventType, key); err != nil {
		if errors.Is(err, idb.ErrDuplicateScoreEvent) {
			return
		}
		s.logger.WithError(err).WithFields(logrus.Fields{"user_id": userID, "event": eventType}).Error("failed to record score event")
	}
}

// sendNotification is fire-and-forget: failures are logged, never returned.
func (s *ContributionServiceImpl) sendNotification(ctx context.Context, userID string, event notify.EventType, payload map[string]string) {
	if err := s.notifier.Notify(ctx, userID, event, payload); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"user_id": userID, "event": event}).Warn("notification delivery failed")
	}
}

func (s *ContributionServiceImpl) notifyMembers(ctx context.Context, circleID string, event notify.EventType, payload map[string]string) {
	members, err := s.circleRepo.ListMembers(ctx, circleID)
	if err != nil {
		s.logger.WithError(err).WithField("circle_id", circleID).Warn("failed to list members for notification")
		return
	}
	for _, m := range members {
		s.sendNotification(ctx, m.UserID, event, payload)
	}
}

func scoreKey(cycleID, memberID string, eventType trust.EventType) string {
	return fmt.Sprintf("%s:%s:%s", cycleID, memberID, eventType)
}
