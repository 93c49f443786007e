package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tanda_circle_engine/internal/app"
	"tanda_circle_engine/internal/domain/circle"
	"tanda_circle_engine/internal/domain/contribution"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCircleService struct {
	createErr error
	state     *app.CircleState
	closeErr  error
}

func (s *stubCircleService) CreateCircle(ctx context.Context, params app.CreateCircleParams) (*app.CircleState, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.state, nil
}

func (s *stubCircleService) GetCircleState(ctx context.Context, circleID string) (*app.CircleState, error) {
	if s.state == nil {
		return nil, &app.ValidationError{Reason: "circle " + circleID + " not found"}
	}
	return s.state, nil
}

func (s *stubCircleService) CloseCircle(ctx context.Context, circleID, requestedBy, reason string) error {
	return s.closeErr
}

func (s *stubCircleService) ReorderMembers(ctx context.Context, circleID, requestedBy string, order map[string]int) error {
	return nil
}

func (s *stubCircleService) SweepDueCycles(ctx context.Context) error { return nil }

type stubContribService struct {
	recordErr  error
	payoutErr  error
	lastAmount decimal.Decimal
}

func (s *stubContribService) RecordContribution(ctx context.Context, cycleID, memberID string, amount decimal.Decimal) (*contribution.Contribution, error) {
	s.lastAmount = amount
	if s.recordErr != nil {
		return nil, s.recordErr
	}
	return &contribution.Contribution{
		ID:          "contrib-1",
		CycleID:     cycleID,
		MemberID:    memberID,
		Amount:      amount,
		Status:      contribution.StatusOnTime,
		SubmittedAt: time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubContribService) TriggerPayout(ctx context.Context, cycleID string) error {
	return s.payoutErr
}

func newTestServer(circles *stubCircleService, contribs *stubContribService) *Server {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer(":0", circles, contribs, log)
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func sampleState() *app.CircleState {
	return &app.CircleState{
		Circle: &circle.Circle{
			ID:                 "c-1",
			Name:               "Lunch Club",
			Status:             circle.StatusActive,
			ContributionAmount: decimal.NewFromInt(100),
			Currency:           "USD",
			Frequency:          circle.FrequencyWeekly,
			MemberCount:        2,
			StartDate:          time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
			RotationMethod:     circle.RotationScoreRanked,
			TotalCycles:        2,
		},
		Members: []*circle.Member{
			{ID: "m-1", UserID: "u1", Position: 1},
			{ID: "m-2", UserID: "u2", Position: 2},
		},
		Cycles: []*app.CycleState{
			{Cycle: &circle.Cycle{ID: "cy-1", Number: 1, PotAmount: decimal.NewFromInt(200), Status: circle.CyclePending}},
		},
	}
}

func TestCreateCircleEndpoint(t *testing.T) {
	s := newTestServer(&stubCircleService{state: sampleState()}, &stubContribService{})

	body := `{
		"name": "Lunch Club",
		"admin_user_id": "u1",
		"contribution_amount": "100",
		"currency": "USD",
		"frequency": "WEEKLY",
		"start_date": "2026-03-02",
		"rotation_method": "SCORE_RANKED",
		"total_cycles": 2,
		"members": [{"user_id": "u1"}, {"user_id": "u2"}]
	}`
	rec := doRequest(s, http.MethodPost, "/circles", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c-1", resp["id"])
	assert.Equal(t, "100", resp["contribution_amount"])
	assert.Equal(t, "2026-03-02", resp["start_date"])
	assert.Len(t, resp["members"], 2)
}

func TestCreateCircleEndpoint_BadRequests(t *testing.T) {
	s := newTestServer(&stubCircleService{state: sampleState()}, &stubContribService{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name": `},
		{"bad amount", `{"contribution_amount": "lots", "start_date": "2026-03-02"}`},
		{"bad date", `{"contribution_amount": "100", "start_date": "03/02/2026"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/circles", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "validation", resp["error"])
			assert.NotEmpty(t, resp["reason"])
		})
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantCode   int
		wantKind   string
		wantReason bool
	}{
		{"validation", &app.ValidationError{Reason: "bad input"}, http.StatusBadRequest, "validation", true},
		{"conflict", &app.ConflictError{Reason: "cycle already paid"}, http.StatusConflict, "conflict", true},
		{"external", &app.ExternalDependencyError{Reason: "payout pending manual review"}, http.StatusBadGateway, "external_dependency", true},
		{"integrity", &app.IntegrityViolation{Reason: "circle halted"}, http.StatusInternalServerError, "integrity_violation", true},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&stubCircleService{}, &stubContribService{payoutErr: tc.err})
			rec := doRequest(s, http.MethodPost, "/cycles/cy-1/payout", "")
			assert.Equal(t, tc.wantCode, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantKind, resp["error"])
			if tc.wantReason {
				assert.NotEmpty(t, resp["reason"])
			} else {
				// Unexpected internals stay opaque.
				assert.Empty(t, resp["reason"])
			}
		})
	}
}

func TestSubmitContributionEndpoint(t *testing.T) {
	contribs := &stubContribService{}
	s := newTestServer(&stubCircleService{state: sampleState()}, contribs)

	rec := doRequest(s, http.MethodPost, "/contributions", `{"cycle_id": "cy-1", "member_id": "m-1", "amount": "100.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, contribs.lastAmount.Equal(decimal.RequireFromString("100.5")))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "contrib-1", resp["id"])
	assert.Equal(t, "100.5", resp["amount"])
	assert.Equal(t, string(contribution.StatusOnTime), resp["status"])

	rec = doRequest(s, http.MethodPost, "/contributions", `{"amount": "abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseCircleEndpoint(t *testing.T) {
	s := newTestServer(&stubCircleService{state: sampleState(), closeErr: &app.ConflictError{Reason: "already closed"}}, &stubContribService{})

	rec := doRequest(s, http.MethodPost, "/circles/c-1/close", `{"requested_by": "u1", "reason": "done"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
