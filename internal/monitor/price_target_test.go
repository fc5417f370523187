package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictmarket/internal/engine"
	"predictmarket/internal/models"
	"predictmarket/internal/pricefeed"
	"predictmarket/internal/repository/memory"
)

type fakeFeed struct {
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  int
}

func (f *fakeFeed) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.calls++
	if err, ok := f.errs[symbol]; ok {
		return decimal.Zero, err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, errors.New("unknown symbol")
	}
	return p, nil
}

var _ pricefeed.Feed = (*fakeFeed)(nil)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func targetMarket(id, symbol string, target decimal.Decimal, deadline time.Time) *models.Market {
	return &models.Market{
		ID:             id,
		Title:          symbol + " target",
		CreatorID:      "a0000000-0000-0000-0000-000000000001",
		MarketType:     models.MarketTypeTarget,
		Status:         models.MarketStatusActive,
		Symbol:         symbol,
		TargetPrice:    &target,
		MinBet:         dec("1"),
		MaxBet:         dec("10000"),
		OutcomeVolumes: models.OutcomeVolumes{},
		ResolutionDate: deadline,
	}
}

func newMonitor(repo *memory.Store, feed pricefeed.Feed, now time.Time) *PriceTargetMonitor {
	settle := &engine.SettlementEngine{
		Repo:   repo,
		Logger: zap.NewNop(),
		Now:    func() time.Time { return now },
	}
	return &PriceTargetMonitor{
		Repo:       repo,
		Feed:       feed,
		Settlement: settle,
		Logger:     zap.NewNop(),
		Now:        func() time.Time { return now },
	}
}

func TestRunOncePersistsHighWaterMark(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.New()

	m := targetMarket("m-1", "BTC", dec("100000"), now.Add(24*time.Hour))
	if err := repo.CreateMarket(ctx, m); err != nil {
		t.Fatal(err)
	}

	feed := &fakeFeed{prices: map[string]decimal.Decimal{"BTC": dec("90000")}}
	mon := newMonitor(repo, feed, now)

	if err := mon.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, err := repo.GetMarket(ctx, "m-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.MarketStatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if got.HighestPriceReached == nil || !got.HighestPriceReached.Equal(dec("90000")) {
		t.Fatalf("high-water mark = %v, want 90000", got.HighestPriceReached)
	}

	// Mark is monotonic: a lower price never lowers it.
	feed.prices["BTC"] = dec("85000")
	if err := mon.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, _ = repo.GetMarket(ctx, "m-1")
	if !got.HighestPriceReached.Equal(dec("90000")) {
		t.Fatalf("high-water mark = %s, want 90000 after dip", got.HighestPriceReached)
	}
}

func TestRunOnceResolvesOnTargetTouch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.New()

	m := targetMarket("m-1", "BTC", dec("100000"), now.Add(24*time.Hour))
	if err := repo.CreateMarket(ctx, m); err != nil {
		t.Fatal(err)
	}

	feed := &fakeFeed{prices: map[string]decimal.Decimal{"BTC": dec("100500")}}
	mon := newMonitor(repo, feed, now)

	if err := mon.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, _ := repo.GetMarket(ctx, "m-1")
	if got.Status != models.MarketStatusResolved {
		t.Fatalf("status = %s, want resolved", got.Status)
	}
	if got.WinningOutcome == nil || *got.WinningOutcome != models.OutcomeUp {
		t.Fatalf("winning outcome = %v, want UP", got.WinningOutcome)
	}
}

func TestRunOnceDeadlineUsesPersistedMark(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.New()

	// Touched the target last week, price fell back since, deadline passed.
	hwm := dec("101000")
	m := targetMarket("m-up", "BTC", dec("100000"), now.Add(-time.Hour))
	m.HighestPriceReached = &hwm
	if err := repo.CreateMarket(ctx, m); err != nil {
		t.Fatal(err)
	}

	low := dec("5500")
	m2 := targetMarket("m-down", "ETH", dec("6000"), now.Add(-time.Hour))
	m2.HighestPriceReached = &low
	if err := repo.CreateMarket(ctx, m2); err != nil {
		t.Fatal(err)
	}

	// Feed down for both. Resolution must come from the stored mark.
	feed := &fakeFeed{errs: map[string]error{
		"BTC": errors.New("feed down"),
		"ETH": errors.New("feed down"),
	}}
	mon := newMonitor(repo, feed, now)

	if err := mon.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	up, _ := repo.GetMarket(ctx, "m-up")
	if up.Status != models.MarketStatusResolved || up.WinningOutcome == nil || *up.WinningOutcome != models.OutcomeUp {
		t.Fatalf("m-up: status=%s outcome=%v, want resolved UP", up.Status, up.WinningOutcome)
	}
	down, _ := repo.GetMarket(ctx, "m-down")
	if down.Status != models.MarketStatusResolved || down.WinningOutcome == nil || *down.WinningOutcome != models.OutcomeDown {
		t.Fatalf("m-down: status=%s outcome=%v, want resolved DOWN", down.Status, down.WinningOutcome)
	}
}

func TestRunOnceFeedErrorSkipsMarket(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.New()

	broken := targetMarket("m-broken", "DOGE", dec("1"), now.Add(time.Hour))
	healthy := targetMarket("m-ok", "BTC", dec("100000"), now.Add(time.Hour))
	if err := repo.CreateMarket(ctx, broken); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateMarket(ctx, healthy); err != nil {
		t.Fatal(err)
	}

	feed := &fakeFeed{
		prices: map[string]decimal.Decimal{"BTC": dec("90000")},
		errs:   map[string]error{"DOGE": errors.New("rate limited")},
	}
	mon := newMonitor(repo, feed, now)

	if err := mon.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// The broken market is untouched, the healthy one still got its mark.
	b, _ := repo.GetMarket(ctx, "m-broken")
	if b.Status != models.MarketStatusActive || b.HighestPriceReached != nil {
		t.Fatalf("broken market changed: status=%s hwm=%v", b.Status, b.HighestPriceReached)
	}
	h, _ := repo.GetMarket(ctx, "m-ok")
	if h.HighestPriceReached == nil || !h.HighestPriceReached.Equal(dec("90000")) {
		t.Fatalf("healthy market mark = %v, want 90000", h.HighestPriceReached)
	}
}

func TestDeadlineSweepResolvesPriceMarket(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.New()

	start := dec("50000")
	m := &models.Market{
		ID:             "m-price",
		Title:          "BTC daily",
		CreatorID:      "a0000000-0000-0000-0000-000000000001",
		MarketType:     models.MarketTypePrice,
		Status:         models.MarketStatusActive,
		Symbol:         "BTC",
		StartPrice:     &start,
		MinBet:         dec("1"),
		MaxBet:         dec("10000"),
		OutcomeVolumes: models.OutcomeVolumes{},
		ResolutionDate: now.Add(-time.Minute),
	}
	if err := repo.CreateMarket(ctx, m); err != nil {
		t.Fatal(err)
	}

	feed := &fakeFeed{prices: map[string]decimal.Decimal{"BTC": dec("51000")}}
	sweep := &DeadlineSweep{
		Repo: repo,
		Feed: feed,
		Settlement: &engine.SettlementEngine{
			Repo:   repo,
			Logger: zap.NewNop(),
			Now:    func() time.Time { return now },
		},
		Logger: zap.NewNop(),
		Now:    func() time.Time { return now },
	}

	if err := sweep.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, _ := repo.GetMarket(ctx, "m-price")
	if got.Status != models.MarketStatusResolved {
		t.Fatalf("status = %s, want resolved", got.Status)
	}
	if got.WinningOutcome == nil || *got.WinningOutcome != models.OutcomeUp {
		t.Fatalf("winning outcome = %v, want UP", got.WinningOutcome)
	}
}
