// Package engine implements bet placement and market settlement on top
// of the repository's transactional primitives.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictmarket/internal/metrics"
	"predictmarket/internal/models"
	"predictmarket/internal/odds"
	"predictmarket/internal/repository"
)

// BettingEngine validates and executes bet placement. Every placement is
// one transaction: debit, bet row, pool update and ledger entry commit
// together or not at all.
type BettingEngine struct {
	Repo   repository.Repository
	Odds   odds.Params
	Logger *zap.Logger

	// Now is injected for deterministic tests; defaults to time.Now UTC.
	Now func() time.Time
}

func (e *BettingEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// PlaceResult is returned from a successful placement.
type PlaceResult struct {
	Bet        *models.Bet
	NewBalance decimal.Decimal
	Odds       decimal.Decimal
}

// PlaceBet stakes amount on one outcome of a market.
//
// Lock order is Market then Account, the same order settlement uses. The
// account lock is taken NOWAIT so a contended placement fails fast with
// repository.ErrLockUnavailable rather than queueing.
func (e *BettingEngine) PlaceBet(ctx context.Context, userID, marketID, outcome string, amount decimal.Decimal) (*PlaceResult, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrAmountOutOfBounds
	}
	now := e.now()

	var result PlaceResult
	err := e.Repo.InTx(ctx, func(tx repository.Repository) error {
		market, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}
		if market.Status != models.MarketStatusActive {
			return ErrMarketNotActive
		}
		if !now.Before(market.ResolutionDate) {
			return ErrMarketClosed
		}
		if !market.ValidOutcome(outcome) {
			return ErrInvalidOutcome
		}
		if amount.LessThan(market.MinBet) || amount.GreaterThan(market.MaxBet) {
			return ErrAmountOutOfBounds
		}

		account, err := tx.GetAccountForUpdateNoWait(ctx, userID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		if account.Balance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		// Odds are derived from the pool as it stands and locked into the
		// bet; they are never recomputed at resolution.
		lockedOdds := odds.ForOutcome(market, outcome, e.Odds)

		balanceBefore := account.Balance
		account.Balance = account.Balance.Sub(amount)
		account.TotalVolume = account.TotalVolume.Add(amount)

		bet := &models.Bet{
			ID:              uuid.NewString(),
			UserID:          userID,
			MarketID:        marketID,
			Outcome:         outcome,
			Amount:          amount,
			OddsAtBet:       lockedOdds,
			PotentialPayout: amount.Mul(lockedOdds),
			Status:          models.BetStatusActive,
			PlacedAt:        now,
		}

		if market.OutcomeVolumes == nil {
			market.OutcomeVolumes = models.OutcomeVolumes{}
		}
		market.OutcomeVolumes[outcome] = market.OutcomeVolumes[outcome].Add(amount)
		market.TotalVolume = market.TotalVolume.Add(amount)

		entry := &models.LedgerEntry{
			ID:            uuid.NewString(),
			UserID:        userID,
			EntryType:     models.EntryTypeBet,
			Amount:        amount.Neg(),
			BalanceBefore: balanceBefore,
			BalanceAfter:  account.Balance,
			Status:        models.EntryStatusCompleted,
			BetID:         &bet.ID,
			MarketID:      &marketID,
			Description:   fmt.Sprintf("bet on %s", outcome),
			CreatedAt:     now,
		}

		if err := tx.SaveAccount(ctx, account); err != nil {
			return fmt.Errorf("debit account: %w", err)
		}
		if err := tx.CreateBet(ctx, bet); err != nil {
			return fmt.Errorf("create bet: %w", err)
		}
		if err := tx.SaveMarket(ctx, market); err != nil {
			return fmt.Errorf("update market pool: %w", err)
		}
		if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
			return fmt.Errorf("create ledger entry: %w", err)
		}

		result = PlaceResult{Bet: bet, NewBalance: account.Balance, Odds: lockedOdds}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.BetsPlaced.WithLabelValues(outcome).Inc()
	if e.Logger != nil {
		e.Logger.Info("bet placed",
			zap.String("bet_id", result.Bet.ID),
			zap.String("market_id", marketID),
			zap.String("outcome", outcome),
			zap.String("amount", amount.String()),
			zap.String("odds", result.Odds.String()),
		)
	}
	return &result, nil
}
