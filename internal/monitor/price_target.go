// Package monitor runs the background sweeps that trigger settlement:
// the price target monitor (first-touch early resolution) and the
// deadline sweep for markets whose resolution date has passed.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"predictmarket/internal/engine"
	"predictmarket/internal/metrics"
	"predictmarket/internal/models"
	"predictmarket/internal/pricefeed"
	"predictmarket/internal/repository"
)

// PriceTargetMonitor periodically checks every active target market
// against the live price. It keeps the market's high-water mark
// persisted — that value decides the outcome at deadline, so it must
// survive restarts — and triggers early settlement the moment the
// target is touched.
type PriceTargetMonitor struct {
	Repo       repository.Repository
	Feed       pricefeed.Feed
	Settlement *engine.SettlementEngine
	Logger     *zap.Logger

	Interval time.Duration
	// Concurrency bounds parallel market checks within one sweep.
	Concurrency int
	// MarketTimeout bounds one market's check+resolve so a stuck market
	// cannot stall the sweep.
	MarketTimeout time.Duration

	Now func() time.Time
}

func (m *PriceTargetMonitor) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func (m *PriceTargetMonitor) Run(ctx context.Context) error {
	if m == nil || m.Repo == nil {
		return nil
	}
	interval := m.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	// Run once on start.
	_ = m.RunOnce(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = m.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps all active target markets. A price feed failure for one
// market is logged and skipped; it never aborts the sweep.
func (m *PriceTargetMonitor) RunOnce(ctx context.Context) error {
	markets, err := m.Repo.ListActiveTargetMarkets(ctx)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Warn("target sweep list failed", zap.Error(err))
		}
		return err
	}
	if len(markets) == 0 {
		return nil
	}

	limit := m.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range markets {
		market := markets[i]
		g.Go(func() error {
			timeout := m.MarketTimeout
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			mctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			if err := m.checkMarket(mctx, &market); err != nil {
				metrics.MonitorSweepErrors.Inc()
				if m.Logger != nil {
					m.Logger.Warn("target market check failed",
						zap.String("market_id", market.ID),
						zap.Error(err),
					)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *PriceTargetMonitor) checkMarket(ctx context.Context, market *models.Market) error {
	now := m.now()

	price, err := m.Feed.GetPrice(ctx, market.Symbol)
	if err != nil {
		// The deadline path can still settle from the persisted
		// high-water mark even when the feed is down.
		if !now.Before(market.ResolutionDate) {
			return m.Settlement.Resolve(ctx, market.ID, engine.ResolveOptions{})
		}
		return err
	}

	// Persist the high-water mark before any resolution decision.
	if market.HighestPriceReached == nil || price.GreaterThan(*market.HighestPriceReached) {
		if err := m.Repo.InTx(ctx, func(tx repository.Repository) error {
			locked, err := tx.GetMarketForUpdate(ctx, market.ID)
			if err != nil {
				return err
			}
			if locked.Status != models.MarketStatusActive {
				return nil
			}
			if locked.HighestPriceReached == nil || price.GreaterThan(*locked.HighestPriceReached) {
				locked.HighestPriceReached = &price
				return tx.SaveMarket(ctx, locked)
			}
			return nil
		}); err != nil {
			return err
		}
		market.HighestPriceReached = &price
	}

	switch {
	case market.TargetPrice != nil && price.GreaterThanOrEqual(*market.TargetPrice):
		// Early win trigger: target touched.
		return m.Settlement.Resolve(ctx, market.ID, engine.ResolveOptions{})
	case !now.Before(market.ResolutionDate):
		// Deadline path: settles on the persisted high-water mark, not a
		// fresh read.
		return m.Settlement.Resolve(ctx, market.ID, engine.ResolveOptions{})
	default:
		return nil
	}
}
