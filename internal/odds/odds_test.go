package odds

import (
	"testing"

	"github.com/shopspring/decimal"

	"predictmarket/internal/models"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func priceMarket(up, down, flat string) *models.Market {
	vols := models.OutcomeVolumes{
		models.OutcomeUp:   dec(up),
		models.OutcomeDown: dec(down),
		models.OutcomeFlat: dec(flat),
	}
	return &models.Market{
		MarketType:     models.MarketTypePrice,
		OutcomeVolumes: vols,
		TotalVolume:    vols.Sum(),
	}
}

func TestForOutcome_EmptyMarketDefaultSplit(t *testing.T) {
	m := priceMarket("0", "0", "0")
	got := ForOutcome(m, models.OutcomeUp, DefaultParams())
	if !got.Equal(dec("3")) {
		t.Fatalf("empty 3-outcome market odds = %s, want 3", got)
	}

	event := &models.Market{
		MarketType:     models.MarketTypeEvent,
		OutcomeVolumes: models.OutcomeVolumes{},
		TotalVolume:    decimal.Zero,
	}
	got = ForOutcome(event, models.OutcomeYes, DefaultParams())
	if !got.Equal(dec("2")) {
		t.Fatalf("empty 2-outcome market odds = %s, want 2", got)
	}
}

func TestForOutcome_PoolProportional(t *testing.T) {
	// UP:60 DOWN:40 → DOWN odds = 100/40 = 2.5.
	m := priceMarket("60", "40", "0")
	got := ForOutcome(m, models.OutcomeDown, DefaultParams())
	if !got.Equal(dec("2.5")) {
		t.Fatalf("DOWN odds = %s, want 2.5", got)
	}
	up := ForOutcome(m, models.OutcomeUp, DefaultParams())
	want := decimal.NewFromInt(1).Div(dec("0.6"))
	if !up.Equal(want) {
		t.Fatalf("UP odds = %s, want %s", up, want)
	}
}

func TestForOutcome_ZeroProbabilityFallback(t *testing.T) {
	m := priceMarket("60", "40", "0")
	got := ForOutcome(m, models.OutcomeFlat, DefaultParams())
	if !got.Equal(dec("2")) {
		t.Fatalf("zero-pool outcome odds = %s, want fallback 2", got)
	}
}

func TestForOutcome_CappedAtMaxOdds(t *testing.T) {
	m := priceMarket("999999", "0.000001", "0")
	got := ForOutcome(m, models.OutcomeDown, DefaultParams())
	if !got.Equal(dec("100")) {
		t.Fatalf("near-empty pool odds = %s, want cap 100", got)
	}
}

func TestOddsMonotonicity(t *testing.T) {
	// Adding stake to an outcome must never increase its odds.
	m := priceMarket("60", "40", "10")
	params := DefaultParams()
	before := ForOutcome(m, models.OutcomeDown, params)

	m.OutcomeVolumes[models.OutcomeDown] = m.OutcomeVolumes[models.OutcomeDown].Add(dec("10"))
	m.TotalVolume = m.TotalVolume.Add(dec("10"))
	after := ForOutcome(m, models.OutcomeDown, params)

	if after.GreaterThan(before) {
		t.Fatalf("odds increased after bet: before=%s after=%s", before, after)
	}
	pBefore := dec("40").Div(dec("110"))
	pAfter := Probability(m, models.OutcomeDown)
	if !pAfter.GreaterThan(pBefore) {
		t.Fatalf("probability did not increase: before=%s after=%s", pBefore, pAfter)
	}
}

func TestAll_CoversEveryOutcome(t *testing.T) {
	m := priceMarket("10", "20", "30")
	got := All(m, DefaultParams())
	for _, key := range models.OutcomesForType(models.MarketTypePrice) {
		if _, ok := got[key]; !ok {
			t.Fatalf("missing outcome %s", key)
		}
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
}
