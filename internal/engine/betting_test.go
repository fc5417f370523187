package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictmarket/internal/models"
	"predictmarket/internal/odds"
	"predictmarket/internal/repository"
	"predictmarket/internal/repository/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedAccount(t *testing.T, repo repository.Repository, id string, balance decimal.Decimal) {
	t.Helper()
	acc := &models.Account{ID: id, Balance: balance}
	if err := repo.CreateAccount(context.Background(), acc); err != nil {
		t.Fatal(err)
	}
}

func seedMarket(t *testing.T, repo repository.Repository, m *models.Market) {
	t.Helper()
	if m.Status == "" {
		m.Status = models.MarketStatusActive
	}
	if m.MarketType == "" {
		m.MarketType = models.MarketTypePrice
	}
	if m.CreatorID == "" {
		m.CreatorID = "creator-1"
	}
	if m.MinBet.IsZero() {
		m.MinBet = dec("1")
	}
	if m.MaxBet.IsZero() {
		m.MaxBet = dec("10000")
	}
	if m.OutcomeVolumes == nil {
		m.OutcomeVolumes = models.OutcomeVolumes{}
	}
	if m.ResolutionDate.IsZero() {
		m.ResolutionDate = testNow.Add(24 * time.Hour)
	}
	if err := repo.CreateMarket(context.Background(), m); err != nil {
		t.Fatal(err)
	}
}

func newBetting(repo repository.Repository) *BettingEngine {
	return &BettingEngine{
		Repo:   repo,
		Odds:   odds.DefaultParams(),
		Logger: zap.NewNop(),
		Now:    func() time.Time { return testNow },
	}
}

func TestPlaceBetDebitsAndRecords(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedAccount(t, repo, "u1", dec("500"))
	seedMarket(t, repo, &models.Market{ID: "m1", Title: "BTC up or down"})

	eng := newBetting(repo)
	res, err := eng.PlaceBet(ctx, "u1", "m1", models.OutcomeUp, dec("100"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}

	if !res.NewBalance.Equal(dec("400")) {
		t.Errorf("new balance = %s, want 400", res.NewBalance)
	}
	// First bet on an empty three-outcome market locks equal-split odds.
	if !res.Odds.Equal(dec("3")) {
		t.Errorf("odds = %s, want 3", res.Odds)
	}
	if !res.Bet.PotentialPayout.Equal(dec("300")) {
		t.Errorf("potential payout = %s, want 300", res.Bet.PotentialPayout)
	}

	acc, err := repo.GetAccount(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !acc.Balance.Equal(dec("400")) {
		t.Errorf("stored balance = %s, want 400", acc.Balance)
	}
	if !acc.TotalVolume.Equal(dec("100")) {
		t.Errorf("total volume = %s, want 100", acc.TotalVolume)
	}

	market, err := repo.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if !market.TotalVolume.Equal(dec("100")) {
		t.Errorf("market pool = %s, want 100", market.TotalVolume)
	}
	if !market.OutcomeVolumes[models.OutcomeUp].Equal(dec("100")) {
		t.Errorf("UP pool = %s, want 100", market.OutcomeVolumes[models.OutcomeUp])
	}

	entries, err := repo.ListLedgerEntriesByUser(ctx, "u1", repository.ListLedgerParams{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.EntryType != models.EntryTypeBet {
		t.Errorf("entry type = %s, want bet", e.EntryType)
	}
	if !e.Amount.Equal(dec("-100")) {
		t.Errorf("entry amount = %s, want -100", e.Amount)
	}
	if !e.BalanceAfter.Equal(e.BalanceBefore.Add(e.Amount)) {
		t.Errorf("balance chain broken: %s + %s != %s", e.BalanceBefore, e.Amount, e.BalanceAfter)
	}
}

func TestPlaceBetOddsReflectPool(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedAccount(t, repo, "u1", dec("1000"))
	seedMarket(t, repo, &models.Market{
		ID:    "m1",
		Title: "BTC up or down",
		OutcomeVolumes: models.OutcomeVolumes{
			models.OutcomeUp:   dec("40"),
			models.OutcomeDown: dec("60"),
		},
		TotalVolume: dec("100"),
	})

	eng := newBetting(repo)
	res, err := eng.PlaceBet(ctx, "u1", "m1", models.OutcomeUp, dec("10"))
	if err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	// Odds derive from the pool before the new stake: 100/40 = 2.5.
	if !res.Odds.Equal(dec("2.5")) {
		t.Errorf("odds = %s, want 2.5", res.Odds)
	}
	if !res.Bet.PotentialPayout.Equal(dec("25")) {
		t.Errorf("potential payout = %s, want 25", res.Bet.PotentialPayout)
	}
}

func TestPlaceBetRejections(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seedAccount(t, repo, "u1", dec("50"))
	seedMarket(t, repo, &models.Market{ID: "m-open", Title: "open"})
	seedMarket(t, repo, &models.Market{ID: "m-resolved", Title: "done", Status: models.MarketStatusResolved})
	seedMarket(t, repo, &models.Market{ID: "m-past", Title: "past", ResolutionDate: testNow.Add(-time.Hour)})
	seedMarket(t, repo, &models.Market{ID: "m-bounds", Title: "bounds", MinBet: dec("10"), MaxBet: dec("20")})

	eng := newBetting(repo)

	cases := []struct {
		name    string
		market  string
		outcome string
		amount  decimal.Decimal
		want    error
	}{
		{"insufficient balance", "m-open", models.OutcomeUp, dec("51"), ErrInsufficientBalance},
		{"market resolved", "m-resolved", models.OutcomeUp, dec("10"), ErrMarketNotActive},
		{"deadline passed", "m-past", models.OutcomeUp, dec("10"), ErrMarketClosed},
		{"bad outcome", "m-open", "SIDEWAYS", dec("10"), ErrInvalidOutcome},
		{"below minimum", "m-bounds", models.OutcomeUp, dec("5"), ErrAmountOutOfBounds},
		{"above maximum", "m-bounds", models.OutcomeUp, dec("25"), ErrAmountOutOfBounds},
		{"zero amount", "m-open", models.OutcomeUp, decimal.Zero, ErrAmountOutOfBounds},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := eng.PlaceBet(ctx, "u1", tc.market, tc.outcome, tc.amount)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}

	// No rejection may leave a partial write behind.
	acc, _ := repo.GetAccount(ctx, "u1")
	if !acc.Balance.Equal(dec("50")) {
		t.Errorf("balance changed after rejections: %s", acc.Balance)
	}
	entries, _ := repo.ListLedgerEntriesByUser(ctx, "u1", repository.ListLedgerParams{})
	if len(entries) != 0 {
		t.Errorf("ledger entries after rejections = %d, want 0", len(entries))
	}
}

// failingRepo wraps the memory store and fails one named write so every
// step boundary inside a placement can be crash-tested.
type failingRepo struct {
	repository.Repository
	failOn string
}

func (f *failingRepo) InTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	return f.Repository.InTx(ctx, func(tx repository.Repository) error {
		return fn(&failingRepo{Repository: tx, failOn: f.failOn})
	})
}

func (f *failingRepo) SaveAccount(ctx context.Context, item *models.Account) error {
	if f.failOn == "save_account" {
		return errors.New("disk full")
	}
	return f.Repository.SaveAccount(ctx, item)
}

func (f *failingRepo) CreateBet(ctx context.Context, item *models.Bet) error {
	if f.failOn == "create_bet" {
		return errors.New("disk full")
	}
	return f.Repository.CreateBet(ctx, item)
}

func (f *failingRepo) SaveMarket(ctx context.Context, item *models.Market) error {
	if f.failOn == "save_market" {
		return errors.New("disk full")
	}
	return f.Repository.SaveMarket(ctx, item)
}

func (f *failingRepo) CreateLedgerEntry(ctx context.Context, item *models.LedgerEntry) error {
	if f.failOn == "create_ledger" {
		return errors.New("disk full")
	}
	return f.Repository.CreateLedgerEntry(ctx, item)
}

func TestPlaceBetRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()

	// A failure at any write boundary must leave no partial state.
	for _, failOn := range []string{"save_account", "create_bet", "save_market", "create_ledger"} {
		t.Run(failOn, func(t *testing.T) {
			repo := memory.New()
			seedAccount(t, repo, "u1", dec("500"))
			seedMarket(t, repo, &models.Market{ID: "m1", Title: "BTC up or down"})

			eng := newBetting(&failingRepo{Repository: repo, failOn: failOn})
			_, err := eng.PlaceBet(ctx, "u1", "m1", models.OutcomeUp, dec("100"))
			if err == nil {
				t.Fatal("expected placement to fail")
			}

			acc, _ := repo.GetAccount(ctx, "u1")
			if !acc.Balance.Equal(dec("500")) {
				t.Errorf("balance = %s, want 500 after rollback", acc.Balance)
			}
			market, _ := repo.GetMarket(ctx, "m1")
			if !market.TotalVolume.IsZero() {
				t.Errorf("market pool = %s, want 0 after rollback", market.TotalVolume)
			}
			bets, _ := repo.ListBetsByMarket(ctx, "m1", nil)
			if len(bets) != 0 {
				t.Errorf("bets = %d, want 0 after rollback", len(bets))
			}
			entries, _ := repo.ListLedgerEntriesByUser(ctx, "u1", repository.ListLedgerParams{})
			if len(entries) != 0 {
				t.Errorf("ledger entries = %d, want 0 after rollback", len(entries))
			}
		})
	}
}
