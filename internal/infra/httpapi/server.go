// Package httpapi exposes the engine's inbound operations as a thin JSON
// HTTP surface. It only decodes requests, calls the app services, and
// maps the typed error taxonomy onto status codes; no business rules live
// here.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tanda_circle_engine/internal/app"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Server struct {
	circleService  app.CircleService
	contribService app.ContributionService
	logger         *logrus.Logger
	httpServer     *http.Server
}

func NewServer(addr string, circleService app.CircleService, contribService app.ContributionService, logger *logrus.Logger) *Server {
	s := &Server{
		circleService:  circleService,
		contribService: contribService,
		logger:         logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /circles", s.handleCreateCircle)
	mux.HandleFunc("GET /circles/{id}", s.handleGetCircle)
	mux.HandleFunc("POST /circles/{id}/close", s.handleCloseCircle)
	mux.HandleFunc("POST /circles/{id}/members/order", s.handleReorderMembers)
	mux.HandleFunc("POST /contributions", s.handleSubmitContribution)
	mux.HandleFunc("POST /cycles/{id}/payout", s.handleTriggerPayout)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type createCircleRequest struct {
	Name               string         `json:"name"`
	AdminUserID        string         `json:"admin_user_id"`
	ContributionAmount string         `json:"contribution_amount"`
	Currency           string         `json:"currency"`
	Frequency          string         `json:"frequency"`
	StartDate          string         `json:"start_date"` // YYYY-MM-DD
	GracePeriodDays    int            `json:"grace_period_days"`
	RotationMethod     string         `json:"rotation_method"`
	TotalCycles        int            `json:"total_cycles"`
	Members            []memberParams `json:"members"`
	ManualOrder        map[string]int `json:"manual_order,omitempty"`
	BeneficiaryUserID  string         `json:"beneficiary_user_id,omitempty"`
}

type memberParams struct {
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	TelegramChatID *int64 `json:"telegram_chat_id,omitempty"`
}

func (s *Server) handleCreateCircle(w http.ResponseWriter, r *http.Request) {
	var req createCircleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &app.ValidationError{Reason: "malformed request body"})
		return
	}
	amount, err := decimal.NewFromString(req.ContributionAmount)
	if err != nil {
		s.writeError(w, &app.ValidationError{Reason: "contribution_amount is not a valid decimal"})
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		s.writeError(w, &app.ValidationError{Reason: "start_date must be YYYY-MM-DD"})
		return
	}
	params := app.CreateCircleParams{
		Name:               req.Name,
		AdminUserID:        req.AdminUserID,
		ContributionAmount: amount,
		Currency:           req.Currency,
		Frequency:          req.Frequency,
		StartDate:          startDate,
		GracePeriodDays:    req.GracePeriodDays,
		RotationMethod:     req.RotationMethod,
		TotalCycles:        req.TotalCycles,
		ManualOrder:        req.ManualOrder,
		BeneficiaryUserID:  req.BeneficiaryUserID,
	}
	for _, m := range req.Members {
		params.Members = append(params.Members, app.CreateMemberParams{
			UserID:         m.UserID,
			DisplayName:    m.DisplayName,
			TelegramChatID: m.TelegramChatID,
		})
	}
	state, err := s.circleService.CreateCircle(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, circleStateResponse(state))
}

func (s *Server) handleGetCircle(w http.ResponseWriter, r *http.Request) {
	state, err := s.circleService.GetCircleState(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, circleStateResponse(state))
}

func (s *Server) handleCloseCircle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestedBy string `json:"requested_by"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &app.ValidationError{Reason: "malformed request body"})
		return
	}
	if err := s.circleService.CloseCircle(r.Context(), r.PathValue("id"), req.RequestedBy, req.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleReorderMembers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestedBy string         `json:"requested_by"`
		Order       map[string]int `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &app.ValidationError{Reason: "malformed request body"})
		return
	}
	if err := s.circleService.ReorderMembers(r.Context(), r.PathValue("id"), req.RequestedBy, req.Order); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

func (s *Server) handleSubmitContribution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CycleID  string `json:"cycle_id"`
		MemberID string `json:"member_id"`
		Amount   string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &app.ValidationError{Reason: "malformed request body"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		s.writeError(w, &app.ValidationError{Reason: "amount is not a valid decimal"})
		return
	}
	contrib, err := s.contribService.RecordContribution(r.Context(), req.CycleID, req.MemberID, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"id":           contrib.ID,
		"cycle_id":     contrib.CycleID,
		"member_id":    contrib.MemberID,
		"amount":       contrib.Amount.String(),
		"status":       contrib.Status,
		"submitted_at": contrib.SubmittedAt,
	})
}

func (s *Server) handleTriggerPayout(w http.ResponseWriter, r *http.Request) {
	if err := s.contribService.TriggerPayout(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "paid"})
}

func circleStateResponse(state *app.CircleState) map[string]any {
	members := make([]map[string]any, 0, len(state.Members))
	for _, m := range state.Members {
		members = append(members, map[string]any{
			"id":           m.ID,
			"user_id":      m.UserID,
			"display_name": m.DisplayName,
			"position":     m.Position,
			"status":       m.Status,
			"score":        m.ScoreAtJoining,
		})
	}
	cycles := make([]map[string]any, 0, len(state.Cycles))
	for _, cs := range state.Cycles {
		cycles = append(cycles, map[string]any{
			"id":                  cs.Cycle.ID,
			"number":              cs.Cycle.Number,
			"deadline":            cs.Cycle.Deadline,
			"recipient_member_id": cs.Cycle.RecipientMemberID,
			"pot_amount":          cs.Cycle.PotAmount.String(),
			"status":              cs.Cycle.Status,
			"funded_count":        cs.FundedCount,
			"needs_manual_review": cs.Cycle.NeedsManualReview,
		})
	}
	c := state.Circle
	return map[string]any{
		"id":                  c.ID,
		"name":                c.Name,
		"status":              c.Status,
		"contribution_amount": c.ContributionAmount.String(),
		"currency":            c.Currency,
		"frequency":           c.Frequency,
		"member_count":        c.MemberCount,
		"start_date":          c.StartDate.Format("2006-01-02"),
		"grace_period_days":   c.GracePeriodDays,
		"rotation_method":     c.RotationMethod,
		"total_cycles":        c.TotalCycles,
		"payouts_halted":      c.PayoutsHalted,
		"members":             members,
		"cycles":              cycles,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("failed to encode response body")
	}
}

// writeError maps the app error taxonomy to status codes. Expected
// conditions always come back with a structured reason, never an opaque
// 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		validation *app.ValidationError
		conflict   *app.ConflictError
		external   *app.ExternalDependencyError
		integrity  *app.IntegrityViolation
	)
	switch {
	case errors.As(err, &validation):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation", "reason": validation.Reason})
	case errors.As(err, &conflict):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict", "reason": conflict.Reason})
	case errors.As(err, &external):
		s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "external_dependency", "reason": external.Reason})
	case errors.As(err, &integrity):
		s.logger.WithError(err).Error("integrity violation surfaced to API")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "integrity_violation", "reason": integrity.Reason})
	default:
		s.logger.WithError(err).Error("unexpected internal error")
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
	}
}
