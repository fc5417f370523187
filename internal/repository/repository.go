package repository

import (
	"context"
	"time"

	"predictmarket/internal/models"
)

// Repository is the persistence boundary for the settlement core.
//
// InTx runs fn against a transaction-scoped view of the same interface;
// every balance/volume mutation and its ledger entry must happen inside
// one InTx call. The *ForUpdate reads take a row-level exclusive lock
// valid for the rest of the transaction. Lock order is always Market
// before Account.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Repository) error) error

	// Accounts.
	CreateAccount(ctx context.Context, item *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountForUpdate(ctx context.Context, id string) (*models.Account, error)
	// GetAccountForUpdateNoWait fails fast with ErrLockUnavailable instead
	// of queueing behind another writer.
	GetAccountForUpdateNoWait(ctx context.Context, id string) (*models.Account, error)
	SaveAccount(ctx context.Context, item *models.Account) error
	ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error)

	// Markets.
	CreateMarket(ctx context.Context, item *models.Market) error
	GetMarket(ctx context.Context, id string) (*models.Market, error)
	GetMarketForUpdate(ctx context.Context, id string) (*models.Market, error)
	SaveMarket(ctx context.Context, item *models.Market) error
	ListMarkets(ctx context.Context, params ListMarketsParams) ([]models.Market, error)
	ListActiveTargetMarkets(ctx context.Context) ([]models.Market, error)
	ListActiveMarketsDue(ctx context.Context, now time.Time) ([]models.Market, error)

	// Bets.
	CreateBet(ctx context.Context, item *models.Bet) error
	GetBet(ctx context.Context, id string) (*models.Bet, error)
	SaveBet(ctx context.Context, item *models.Bet) error
	ListBetsByMarket(ctx context.Context, marketID string, status *string) ([]models.Bet, error)
	ListBetsByUser(ctx context.Context, userID string, params ListBetsParams) ([]models.Bet, error)

	// Ledger.
	CreateLedgerEntry(ctx context.Context, item *models.LedgerEntry) error
	// CreateLedgerEntryIdempotent conflict-ignores on external_id and
	// reports whether a row was actually inserted.
	CreateLedgerEntryIdempotent(ctx context.Context, item *models.LedgerEntry) (bool, error)
	GetLedgerEntryByExternalID(ctx context.Context, externalID string) (*models.LedgerEntry, error)
	ListLedgerEntriesByUser(ctx context.Context, userID string, params ListLedgerParams) ([]models.LedgerEntry, error)
	ListLedgerEntriesByMarket(ctx context.Context, marketID string) ([]models.LedgerEntry, error)

	// Referral profiles.
	CreateReferralProfile(ctx context.Context, item *models.ReferralProfile) error
	GetReferralProfile(ctx context.Context, userID string) (*models.ReferralProfile, error)
	GetReferralProfileForUpdate(ctx context.Context, userID string) (*models.ReferralProfile, error)
	SaveReferralProfile(ctx context.Context, item *models.ReferralProfile) error
}

type ListMarketsParams struct {
	Limit      int
	Offset     int
	Status     *string
	MarketType *string
	Symbol     *string
	OrderBy    string
	Asc        *bool
}

type ListBetsParams struct {
	Limit    int
	Offset   int
	Status   *string
	MarketID *string
}

type ListLedgerParams struct {
	Limit     int
	Offset    int
	EntryType *string
	Status    *string
	Since     *time.Time
}
