// Package pricefeed provides the external asset price interface
// consumed by the price target monitor and price-market resolution.
package pricefeed

import (
	"context"

	"github.com/shopspring/decimal"
)

// Feed returns the current USD price for an asset symbol (e.g. BTC).
type Feed interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
