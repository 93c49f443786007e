// Package wallet defines the balance query interface the engine consults
// before accepting a contribution. The wallet itself lives in a separate
// subsystem; the engine only asks whether a user can cover an amount.
package wallet

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalanceProvider reports a user's available wallet balance.
type BalanceProvider interface {
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// AllowAll is a provider that never declines. It stands in until the
// wallet service client is wired; tests inject bounded fakes instead.
// TODO: replace with the wallet service HTTP client once that service
// exposes a balance endpoint.
type AllowAll struct{}

func (AllowAll) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1_000_000_000), nil
}
