// Package odds derives parimutuel odds from pooled volume.
//
// The pool shifts with every bet, so odds are recomputed on each
// placement; the value a bettor receives is locked into the bet at that
// moment and never recalculated.
package odds

import (
	"github.com/shopspring/decimal"

	"predictmarket/internal/models"
)

// Params bound odds derivation. MaxOdds caps platform exposure when an
// outcome pool is near-empty; FallbackOdds is returned instead of
// dividing by a zero probability.
type Params struct {
	MaxOdds      decimal.Decimal
	FallbackOdds decimal.Decimal
}

// DefaultParams mirrors the platform defaults: odds capped at 100x,
// 2x fallback for an empty outcome pool.
func DefaultParams() Params {
	return Params{
		MaxOdds:      decimal.NewFromInt(100),
		FallbackOdds: decimal.NewFromInt(2),
	}
}

// Probability returns outcome_volume / total_volume. With no volume at
// all, every outcome gets an equal default split.
func Probability(m *models.Market, outcome string) decimal.Decimal {
	keys := models.OutcomesForType(m.MarketType)
	if m.TotalVolume.IsZero() {
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(keys))))
	}
	vol := m.OutcomeVolumes[outcome]
	return vol.Div(m.TotalVolume)
}

// ForOutcome returns the odds multiplier for one outcome of a market,
// capped at MaxOdds. An empty market pays the outcome count (the inverse
// of the equal default split), so a 3-outcome market opens at 3.0.
func ForOutcome(m *models.Market, outcome string, p Params) decimal.Decimal {
	if m.TotalVolume.IsZero() {
		n := decimal.NewFromInt(int64(len(models.OutcomesForType(m.MarketType))))
		if n.GreaterThan(p.MaxOdds) {
			return p.MaxOdds
		}
		return n
	}
	prob := Probability(m, outcome)
	if prob.IsZero() {
		return p.FallbackOdds
	}
	odds := decimal.NewFromInt(1).Div(prob)
	if odds.GreaterThan(p.MaxOdds) {
		return p.MaxOdds
	}
	return odds
}

// All returns the odds for every outcome of the market.
func All(m *models.Market, p Params) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, key := range models.OutcomesForType(m.MarketType) {
		out[key] = ForOutcome(m, key, p)
	}
	return out
}
