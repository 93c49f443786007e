// Package payout defines the narrow interface to the external
// money-movement rail. The engine never computes currency conversion or
// rail-specific fees; it hands the rail an idempotency key, a recipient
// and an amount, and the rail does the rest.
package payout

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rail issues payout instructions. A nil return means the rail accepted
// the instruction. A *RejectionError means the rail refused it outright;
// any other error is a transport failure the caller may retry with the
// SAME idempotency key — never a fresh one, which could double-pay.
type Rail interface {
	IssuePayout(ctx context.Context, idempotencyKey, recipientUserID string, amount decimal.Decimal) error
}

// RejectionError is a definitive refusal from the rail. Retrying will not
// help; the cycle goes to manual review instead.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("payout rejected by rail: %s", e.Reason)
}
