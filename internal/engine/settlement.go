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
	"predictmarket/internal/repository"
)

// SettlementEngine resolves markets and redistributes the pool.
//
// The status flip to a terminal state is the first write under the
// market lock, so a concurrent second settlement attempt observes a
// non-active status and exits as a no-op before touching any bet or
// account. Per-bet work checks status == active, which makes a re-run
// after a partial failure safe: already-settled bets are skipped.
type SettlementEngine struct {
	Repo   repository.Repository
	Logger *zap.Logger

	// FlatBandPct is the relative band around the start price inside
	// which a three-outcome price market settles FLAT.
	FlatBandPct decimal.Decimal

	Now func() time.Time
}

func (e *SettlementEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// ResolveOptions carries externally supplied resolution inputs.
type ResolveOptions struct {
	// Outcome, when set, is the explicitly reported winning outcome
	// (event markets, admin override).
	Outcome *string

	// FinalPrice is the asset price at resolution; required for price
	// and quick markets resolved by price comparison.
	FinalPrice *decimal.Decimal
}

// Resolve settles a market: determines the winning outcome, pays winners
// their pool-proportional share, marks losers, and transitions the
// market to resolved. Calling it on an already-settled market is a
// benign no-op.
func (e *SettlementEngine) Resolve(ctx context.Context, marketID string, opts ResolveOptions) error {
	now := e.now()

	var resolved bool
	err := e.Repo.InTx(ctx, func(tx repository.Repository) error {
		market, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}
		if market.Status != models.MarketStatusActive {
			// Expected race between the deadline sweep and the price
			// trigger, not a bug.
			if e.Logger != nil {
				e.Logger.Warn("resolve skipped: market not active",
					zap.String("market_id", marketID),
					zap.String("status", market.Status),
				)
			}
			return nil
		}

		winning, err := e.winningOutcome(market, opts)
		if err != nil {
			return err
		}

		// First write: take the market out of the active state.
		market.Status = models.MarketStatusResolved
		market.ResolvedAt = &now
		market.WinningOutcome = &winning
		if opts.FinalPrice != nil {
			market.RoundEndPrice = opts.FinalPrice
		}
		if err := tx.SaveMarket(ctx, market); err != nil {
			return fmt.Errorf("transition market: %w", err)
		}

		// Snapshot the pools before paying anything out.
		totalPool := market.TotalVolume
		winningPool := market.OutcomeVolumes[winning]

		active := models.BetStatusActive
		bets, err := tx.ListBetsByMarket(ctx, marketID, &active)
		if err != nil {
			return fmt.Errorf("list bets: %w", err)
		}

		creatorFees := decimal.Zero
		for i := range bets {
			bet := &bets[i]
			if bet.Status != models.BetStatusActive {
				continue
			}
			if bet.Outcome != winning {
				zero := decimal.Zero
				bet.Status = models.BetStatusLost
				bet.ActualPayout = &zero
				bet.ResolvedAt = &now
				if err := tx.SaveBet(ctx, bet); err != nil {
					return fmt.Errorf("mark bet lost: %w", err)
				}
				account, err := tx.GetAccountForUpdate(ctx, bet.UserID)
				if err != nil {
					return fmt.Errorf("load loser account: %w", err)
				}
				account.LostBets++
				if err := tx.SaveAccount(ctx, account); err != nil {
					return fmt.Errorf("update loser stats: %w", err)
				}
				continue
			}

			// Winners split the entire pool proportional to their share of
			// the winning side. The odds-locked potential payout is only a
			// fallback for the degenerate empty-winning-pool case.
			var gross decimal.Decimal
			if winningPool.GreaterThan(decimal.Zero) {
				gross = bet.Amount.Div(winningPool).Mul(totalPool)
			} else {
				gross = bet.PotentialPayout
			}

			payout, fees := applyFees(gross, bet.Amount, market)
			creatorFees = creatorFees.Add(fees.creator)

			account, err := tx.GetAccountForUpdate(ctx, bet.UserID)
			if err != nil {
				return fmt.Errorf("load winner account: %w", err)
			}
			balanceBefore := account.Balance
			account.Balance = account.Balance.Add(payout)
			account.TotalWinnings = account.TotalWinnings.Add(payout)
			account.WonBets++
			if err := tx.SaveAccount(ctx, account); err != nil {
				return fmt.Errorf("credit winner: %w", err)
			}

			bet.Status = models.BetStatusWon
			bet.ActualPayout = &payout
			bet.FeesPaid = fees.total()
			bet.ResolvedAt = &now
			if err := tx.SaveBet(ctx, bet); err != nil {
				return fmt.Errorf("mark bet won: %w", err)
			}

			entry := &models.LedgerEntry{
				ID:            uuid.NewString(),
				UserID:        bet.UserID,
				EntryType:     models.EntryTypePayout,
				Amount:        payout,
				BalanceBefore: balanceBefore,
				BalanceAfter:  account.Balance,
				Status:        models.EntryStatusCompleted,
				BetID:         &bet.ID,
				MarketID:      &marketID,
				Description:   fmt.Sprintf("payout for %s", winning),
				CreatedAt:     now,
			}
			if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
				return fmt.Errorf("payout ledger entry: %w", err)
			}
		}

		if creatorFees.GreaterThan(decimal.Zero) {
			if err := e.creditCreatorFee(ctx, tx, market, creatorFees, now); err != nil {
				return err
			}
		}

		resolved = true
		return nil
	})
	if err != nil {
		return err
	}

	if resolved {
		metrics.MarketsResolved.Inc()
		if e.Logger != nil {
			e.Logger.Info("market resolved", zap.String("market_id", marketID))
		}
	}
	return nil
}

// Cancel refunds every active bet's stake and moves the market to
// cancelled. Like Resolve, a non-active market is a no-op.
func (e *SettlementEngine) Cancel(ctx context.Context, marketID string) error {
	now := e.now()

	return e.Repo.InTx(ctx, func(tx repository.Repository) error {
		market, err := tx.GetMarketForUpdate(ctx, marketID)
		if err != nil {
			return fmt.Errorf("load market: %w", err)
		}
		if market.Status != models.MarketStatusActive {
			if e.Logger != nil {
				e.Logger.Warn("cancel skipped: market not active",
					zap.String("market_id", marketID),
					zap.String("status", market.Status),
				)
			}
			return nil
		}

		market.Status = models.MarketStatusCancelled
		market.ResolvedAt = &now
		if err := tx.SaveMarket(ctx, market); err != nil {
			return fmt.Errorf("transition market: %w", err)
		}

		active := models.BetStatusActive
		bets, err := tx.ListBetsByMarket(ctx, marketID, &active)
		if err != nil {
			return fmt.Errorf("list bets: %w", err)
		}
		for i := range bets {
			bet := &bets[i]
			if bet.Status != models.BetStatusActive {
				continue
			}
			account, err := tx.GetAccountForUpdate(ctx, bet.UserID)
			if err != nil {
				return fmt.Errorf("load account: %w", err)
			}
			balanceBefore := account.Balance
			account.Balance = account.Balance.Add(bet.Amount)
			if err := tx.SaveAccount(ctx, account); err != nil {
				return fmt.Errorf("refund account: %w", err)
			}

			refund := bet.Amount
			bet.Status = models.BetStatusRefunded
			bet.ActualPayout = &refund
			bet.ResolvedAt = &now
			if err := tx.SaveBet(ctx, bet); err != nil {
				return fmt.Errorf("mark bet refunded: %w", err)
			}

			entry := &models.LedgerEntry{
				ID:            uuid.NewString(),
				UserID:        bet.UserID,
				EntryType:     models.EntryTypeRefund,
				Amount:        bet.Amount,
				BalanceBefore: balanceBefore,
				BalanceAfter:  account.Balance,
				Status:        models.EntryStatusCompleted,
				BetID:         &bet.ID,
				MarketID:      &marketID,
				Description:   "market cancelled",
				CreatedAt:     now,
			}
			if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
				return fmt.Errorf("refund ledger entry: %w", err)
			}
		}
		return nil
	})
}

// winningOutcome determines the winner per market type.
func (e *SettlementEngine) winningOutcome(market *models.Market, opts ResolveOptions) (string, error) {
	if opts.Outcome != nil {
		if !market.ValidOutcome(*opts.Outcome) {
			return "", ErrInvalidOutcome
		}
		return *opts.Outcome, nil
	}

	switch market.MarketType {
	case models.MarketTypeTarget:
		// First-touch rule: any excursion at or above the target before
		// the deadline wins, not merely the price at resolution time.
		if market.TargetPrice == nil {
			return "", ErrOutcomeRequired
		}
		if market.HighestPriceReached != nil && market.HighestPriceReached.GreaterThanOrEqual(*market.TargetPrice) {
			return models.OutcomeUp, nil
		}
		return models.OutcomeDown, nil

	case models.MarketTypePrice, models.MarketTypeQuick:
		if opts.FinalPrice == nil {
			return "", ErrFinalPriceRequired
		}
		if market.StartPrice == nil {
			return "", ErrOutcomeRequired
		}
		return priceOutcome(*market.StartPrice, *opts.FinalPrice, e.FlatBandPct), nil

	default:
		// Event markets have no derivable outcome.
		return "", ErrOutcomeRequired
	}
}

// priceOutcome compares final to start price. A move within ±band of the
// start settles FLAT; band <= 0 means any exact tie is FLAT.
func priceOutcome(start, final, bandPct decimal.Decimal) string {
	if start.GreaterThan(decimal.Zero) && bandPct.GreaterThan(decimal.Zero) {
		band := start.Mul(bandPct)
		diff := final.Sub(start).Abs()
		if diff.LessThanOrEqual(band) {
			return models.OutcomeFlat
		}
	}
	switch final.Cmp(start) {
	case 1:
		return models.OutcomeUp
	case -1:
		return models.OutcomeDown
	default:
		return models.OutcomeFlat
	}
}

type feeBreakdown struct {
	creator  decimal.Decimal
	platform decimal.Decimal
}

func (f feeBreakdown) total() decimal.Decimal {
	return f.creator.Add(f.platform)
}

// applyFees charges the market's fee percentages on the winner's profit
// (never the returned stake) and returns the net payout.
func applyFees(gross, stake decimal.Decimal, market *models.Market) (decimal.Decimal, feeBreakdown) {
	profit := gross.Sub(stake)
	if profit.LessThanOrEqual(decimal.Zero) {
		return gross, feeBreakdown{creator: decimal.Zero, platform: decimal.Zero}
	}
	fees := feeBreakdown{
		creator:  profit.Mul(market.CreatorFeePct),
		platform: profit.Mul(market.PlatformFeePct),
	}
	return gross.Sub(fees.total()), fees
}

func (e *SettlementEngine) creditCreatorFee(ctx context.Context, tx repository.Repository, market *models.Market, amount decimal.Decimal, now time.Time) error {
	account, err := tx.GetAccountForUpdate(ctx, market.CreatorID)
	if err != nil {
		// A missing creator account (seeded markets) is not worth failing
		// the whole settlement over.
		if e.Logger != nil {
			e.Logger.Warn("creator fee skipped", zap.String("market_id", market.ID), zap.Error(err))
		}
		return nil
	}
	balanceBefore := account.Balance
	account.Balance = account.Balance.Add(amount)
	if err := tx.SaveAccount(ctx, account); err != nil {
		return fmt.Errorf("credit creator fee: %w", err)
	}
	entry := &models.LedgerEntry{
		ID:            uuid.NewString(),
		UserID:        market.CreatorID,
		EntryType:     models.EntryTypeFee,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  account.Balance,
		Status:        models.EntryStatusCompleted,
		MarketID:      &market.ID,
		Description:   "creator fee",
		CreatedAt:     now,
	}
	if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
		return fmt.Errorf("creator fee ledger entry: %w", err)
	}
	return nil
}
