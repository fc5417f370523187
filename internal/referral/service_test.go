package referral

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictmarket/internal/ledger"
	"predictmarket/internal/models"
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

func newService(repo repository.Repository) *Service {
	return &Service{
		Repo: repo,
		Ledger: &ledger.Service{
			Repo:   repo,
			Logger: zap.NewNop(),
			Now:    func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		},
		Logger:       zap.NewNop(),
		NewUserBonus: dec("1"),
	}
}

func seed(t *testing.T, repo repository.Repository, referrerID string, tier models.ReferralTier) {
	t.Helper()
	ctx := context.Background()
	if err := repo.CreateAccount(ctx, &models.Account{ID: referrerID}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateReferralProfile(ctx, &models.ReferralProfile{UserID: referrerID, Tier: tier}); err != nil {
		t.Fatal(err)
	}
}

func TestProcessSignupPaysTierBonus(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seed(t, repo, "ref", models.TierSilver)
	if err := repo.CreateAccount(ctx, &models.Account{ID: "newbie"}); err != nil {
		t.Fatal(err)
	}

	svc := newService(repo)
	if err := svc.ProcessSignup(ctx, "ref", "newbie"); err != nil {
		t.Fatalf("ProcessSignup: %v", err)
	}

	// Silver signup bonus is 5; the new user gets the welcome credit.
	ref, _ := repo.GetAccount(ctx, "ref")
	if !ref.Balance.Equal(dec("5")) {
		t.Errorf("referrer balance = %s, want 5", ref.Balance)
	}
	newbie, _ := repo.GetAccount(ctx, "newbie")
	if !newbie.Balance.Equal(dec("1")) {
		t.Errorf("new user balance = %s, want 1", newbie.Balance)
	}

	profile, _ := repo.GetReferralProfile(ctx, "ref")
	if profile.TotalReferrals != 1 {
		t.Errorf("total referrals = %d, want 1", profile.TotalReferrals)
	}
	if !profile.SignupEarnings.Equal(dec("5")) {
		t.Errorf("signup earnings = %s, want 5", profile.SignupEarnings)
	}
}

func TestProcessSignupRedeliveryPaysOnce(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seed(t, repo, "ref", models.TierBronze)
	if err := repo.CreateAccount(ctx, &models.Account{ID: "newbie"}); err != nil {
		t.Fatal(err)
	}

	svc := newService(repo)
	if err := svc.ProcessSignup(ctx, "ref", "newbie"); err != nil {
		t.Fatal(err)
	}
	if err := svc.ProcessSignup(ctx, "ref", "newbie"); err != nil {
		t.Fatal(err)
	}

	// The bonus credit is keyed on the new user, so the balance is paid
	// once and the profile counters move once.
	ref, _ := repo.GetAccount(ctx, "ref")
	if !ref.Balance.Equal(dec("2")) {
		t.Errorf("referrer balance = %s, want 2", ref.Balance)
	}
	entries, _ := repo.ListLedgerEntriesByUser(ctx, "ref", repository.ListLedgerParams{})
	if len(entries) != 1 {
		t.Errorf("referrer ledger entries = %d, want 1", len(entries))
	}
	profile, _ := repo.GetReferralProfile(ctx, "ref")
	if profile.TotalReferrals != 1 {
		t.Errorf("total referrals = %d, want 1", profile.TotalReferrals)
	}
	if !profile.SignupEarnings.Equal(dec("2")) {
		t.Errorf("signup earnings = %s, want 2", profile.SignupEarnings)
	}
}

func TestProcessSignupRedeliveryCannotPromote(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seed(t, repo, "ref", models.TierBronze)

	// Eight prior referrals plus the ninth. A duplicate delivery of the
	// ninth must not count as a tenth and promote the referrer early.
	profile, _ := repo.GetReferralProfile(ctx, "ref")
	profile.TotalReferrals = 8
	if err := repo.SaveReferralProfile(ctx, profile); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateAccount(ctx, &models.Account{ID: "newbie"}); err != nil {
		t.Fatal(err)
	}

	svc := newService(repo)
	if err := svc.ProcessSignup(ctx, "ref", "newbie"); err != nil {
		t.Fatal(err)
	}
	if err := svc.ProcessSignup(ctx, "ref", "newbie"); err != nil {
		t.Fatal(err)
	}

	profile, _ = repo.GetReferralProfile(ctx, "ref")
	if profile.TotalReferrals != 9 {
		t.Errorf("total referrals = %d, want 9", profile.TotalReferrals)
	}
	if profile.Tier != models.TierBronze {
		t.Errorf("tier = %s, want bronze until the tenth real referral", profile.Tier)
	}
}

func TestProcessSignupPromotesTier(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seed(t, repo, "ref", models.TierBronze)

	// Nine prior referrals; the tenth promotes to silver.
	profile, _ := repo.GetReferralProfile(ctx, "ref")
	profile.TotalReferrals = 9
	if err := repo.SaveReferralProfile(ctx, profile); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateAccount(ctx, &models.Account{ID: "newbie"}); err != nil {
		t.Fatal(err)
	}

	svc := newService(repo)
	if err := svc.ProcessSignup(ctx, "ref", "newbie"); err != nil {
		t.Fatal(err)
	}

	profile, _ = repo.GetReferralProfile(ctx, "ref")
	if profile.Tier != models.TierSilver {
		t.Errorf("tier = %s, want silver", profile.Tier)
	}
}

func TestProcessDepositPaysCommission(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	seed(t, repo, "ref", models.TierGold)

	refID := "ref"
	if err := repo.CreateAccount(ctx, &models.Account{ID: "player"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateReferralProfile(ctx, &models.ReferralProfile{UserID: "player", ReferredByID: &refID}); err != nil {
		t.Fatal(err)
	}

	svc := newService(repo)
	if err := svc.ProcessDeposit(ctx, "player", dec("200"), "gw:tx:1"); err != nil {
		t.Fatalf("ProcessDeposit: %v", err)
	}

	// Gold commission is 3% of 200.
	ref, _ := repo.GetAccount(ctx, "ref")
	if !ref.Balance.Equal(dec("6")) {
		t.Errorf("referrer balance = %s, want 6", ref.Balance)
	}

	// Redelivered webhook with the same external ID pays nothing.
	if err := svc.ProcessDeposit(ctx, "player", dec("200"), "gw:tx:1"); err != nil {
		t.Fatal(err)
	}
	ref, _ = repo.GetAccount(ctx, "ref")
	if !ref.Balance.Equal(dec("6")) {
		t.Errorf("referrer balance after redelivery = %s, want 6", ref.Balance)
	}
	profile, _ := repo.GetReferralProfile(ctx, "ref")
	if !profile.DepositEarnings.Equal(dec("6")) {
		t.Errorf("deposit earnings = %s, want 6 after redelivery", profile.DepositEarnings)
	}
	if !profile.TotalEarnings.Equal(dec("6")) {
		t.Errorf("total earnings = %s, want 6 after redelivery", profile.TotalEarnings)
	}
}

func TestProcessDepositUnreferredUserIsNoOp(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	if err := repo.CreateAccount(ctx, &models.Account{ID: "loner"}); err != nil {
		t.Fatal(err)
	}

	svc := newService(repo)
	if err := svc.ProcessDeposit(ctx, "loner", dec("100"), "gw:tx:2"); err != nil {
		t.Fatalf("ProcessDeposit: %v", err)
	}
}
