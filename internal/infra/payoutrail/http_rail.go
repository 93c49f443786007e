// Package payoutrail adapts the external money-movement rail's HTTP API
// to the engine's payout.Rail interface. The rail deduplicates on the
// idempotency key; this client never invents a new key for a retry.
package payoutrail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tanda_circle_engine/internal/domain/payout"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 15 * time.Second

type HTTPRail struct {
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewHTTPRail(baseURL string, logger *logrus.Logger) *HTTPRail {
	return &HTTPRail{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger,
	}
}

type payoutRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	RecipientID    string `json:"recipient_id"`
	Amount         string `json:"amount"`
}

type payoutResponse struct {
	Status string `json:"status"` // "accepted" or "rejected"
	Reason string `json:"reason,omitempty"`
}

func (r *HTTPRail) IssuePayout(ctx context.Context, idempotencyKey, recipientUserID string, amount decimal.Decimal) error {
	body, err := json.Marshal(payoutRequest{
		IdempotencyKey: idempotencyKey,
		RecipientID:    recipientUserID,
		Amount:         amount.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode payout request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("payout rail unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("failed to read payout rail response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var pr payoutResponse
		if err := json.Unmarshal(raw, &pr); err != nil || pr.Reason == "" {
			return &payout.RejectionError{Reason: fmt.Sprintf("rail returned %d", resp.StatusCode)}
		}
		return &payout.RejectionError{Reason: pr.Reason}
	default:
		return fmt.Errorf("payout rail returned status %d: %s", resp.StatusCode, string(raw))
	}
}

// LogRail accepts every instruction and only logs it. Used for local runs
// when no rail URL is configured.
type LogRail struct {
	logger *logrus.Logger
}

func NewLogRail(logger *logrus.Logger) *LogRail {
	return &LogRail{logger: logger}
}

func (r *LogRail) IssuePayout(ctx context.Context, idempotencyKey, recipientUserID string, amount decimal.Decimal) error {
	r.logger.WithFields(logrus.Fields{
		"idempotency_key": idempotencyKey,
		"recipient":       recipientUserID,
		"amount":          amount.String(),
	}).Info("payout issued (log rail)")
	return nil
}
