package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"tanda_circle_engine/internal/domain/circle"
	"tanda_circle_engine/internal/domain/notify"
	"tanda_circle_engine/internal/domain/payout"
	"tanda_circle_engine/internal/domain/trust"
	"tanda_circle_engine/internal/infra/inmemory"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type railCall struct {
	key       string
	recipient string
	amount    decimal.Decimal
}

// fakeRail records every IssuePayout call. It can be primed to fail a
// number of times with a transport error, or to reject definitively.
type fakeRail struct {
	mu           sync.Mutex
	calls        []railCall
	failuresLeft int
	rejectWith   string
}

func (r *fakeRail) IssuePayout(ctx context.Context, idempotencyKey, recipientUserID string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, railCall{key: idempotencyKey, recipient: recipientUserID, amount: amount})
	if r.rejectWith != "" {
		return &payout.RejectionError{Reason: r.rejectWith}
	}
	if r.failuresLeft > 0 {
		r.failuresLeft--
		return errors.New("rail unavailable")
	}
	return nil
}

func (r *fakeRail) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRail) callsCopy() []railCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]railCall, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *fakeRail) prime(failures int, rejectWith string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failuresLeft = failures
	r.rejectWith = rejectWith
}

type sentNotification struct {
	userID string
	event  notify.EventType
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(ctx context.Context, userID string, event notify.EventType, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{userID: userID, event: event})
	return nil
}

func (n *fakeNotifier) count(userID string, event notify.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.userID == userID && s.event == event {
			count++
		}
	}
	return count
}

// fakeWallet returns a generous default balance unless a user has an
// explicit one set.
type fakeWallet struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func (w *fakeWallet) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if b, ok := w.balances[userID]; ok {
		return b, nil
	}
	return decimal.NewFromInt(1_000_000), nil
}

func (w *fakeWallet) setBalance(userID string, b decimal.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balances == nil {
		w.balances = make(map[string]decimal.Decimal)
	}
	w.balances[userID] = b
}

// testEngine wires the services against in-memory repositories and fakes.
type testEngine struct {
	circleSvc   *CircleServiceImpl
	contribSvc  *ContributionServiceImpl
	circleRepo  *inmemory.CircleRepository
	contribRepo *inmemory.ContributionRepository
	ledger      *trust.Ledger
	rail        *fakeRail
	notifier    *fakeNotifier
	wallet      *fakeWallet
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	circleRepo := inmemory.NewCircleRepository()
	contribRepo := inmemory.NewContributionRepository()
	scoreRepo := inmemory.NewScoreRepository()
	ledger := trust.NewLedger(scoreRepo)
	rail := &fakeRail{}
	notifier := &fakeNotifier{}
	wlt := &fakeWallet{}
	locks := NewCycleLocks()

	contribSvc := NewContributionService(circleRepo, contribRepo, ledger, rail, notifier, wlt, locks, log, 0)
	circleSvc := NewCircleService(circleRepo, contribRepo, ledger, notifier, contribSvc, locks, log)

	return &testEngine{
		circleSvc:   circleSvc,
		contribSvc:  contribSvc,
		circleRepo:  circleRepo,
		contribRepo: contribRepo,
		ledger:      ledger,
		rail:        rail,
		notifier:    notifier,
		wallet:      wlt,
	}
}

// setClock pins both services to a fixed instant.
func (e *testEngine) setClock(now time.Time) {
	e.circleSvc.clock = func() time.Time { return now }
	e.contribSvc.clock = func() time.Time { return now }
}

var testStart = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

// weeklyCircleParams builds a weekly circle with n members u1..un joining
// in order, 100 per head, a 2-day grace window, and score-ranked rotation
// (all scores equal, so payout order follows join order).
func weeklyCircleParams(n int) CreateCircleParams {
	params := CreateCircleParams{
		Name:               "Test Circle",
		AdminUserID:        "u1",
		ContributionAmount: decimal.NewFromInt(100),
		Currency:           "USD",
		Frequency:          string(circle.FrequencyWeekly),
		StartDate:          testStart,
		GracePeriodDays:    2,
		RotationMethod:     string(circle.RotationScoreRanked),
		TotalCycles:        n,
	}
	for i := 1; i <= n; i++ {
		params.Members = append(params.Members, CreateMemberParams{
			UserID:      fmt.Sprintf("u%d", i),
			DisplayName: fmt.Sprintf("User %d", i),
			JoinedAt:    testStart.Add(time.Duration(i) * time.Minute),
		})
	}
	return params
}

func (e *testEngine) mustCreate(t *testing.T, params CreateCircleParams) *CircleState {
	t.Helper()
	e.setClock(testStart)
	state, err := e.circleSvc.CreateCircle(context.Background(), params)
	require.NoError(t, err)
	return state
}

func memberByUser(t *testing.T, state *CircleState, userID string) *circle.Member {
	t.Helper()
	for _, m := range state.Members {
		if m.UserID == userID {
			return m
		}
	}
	t.Fatalf("no member for user %s", userID)
	return nil
}

// fundCycle records contributions for the given users at the current
// contribution-service clock.
func (e *testEngine) fundCycle(t *testing.T, state *CircleState, cycleID string, userIDs ...string) {
	t.Helper()
	for _, u := range userIDs {
		m := memberByUser(t, state, u)
		_, err := e.contribSvc.RecordContribution(context.Background(), cycleID, m.ID, decimal.NewFromInt(100))
		require.NoError(t, err, "contribution by %s", u)
	}
}

func (e *testEngine) cycleStatus(t *testing.T, cycleID string) circle.CycleStatus {
	t.Helper()
	cyc, err := e.circleRepo.GetCycle(context.Background(), cycleID)
	require.NoError(t, err)
	return cyc.Status
}

func (e *testEngine) score(t *testing.T, userID string) int {
	t.Helper()
	score, err := e.ledger.CurrentScore(context.Background(), userID)
	require.NoError(t, err)
	return score
}
