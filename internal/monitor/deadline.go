package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"predictmarket/internal/engine"
	"predictmarket/internal/metrics"
	"predictmarket/internal/models"
	"predictmarket/internal/pricefeed"
	"predictmarket/internal/repository"
)

// DeadlineSweep resolves active non-target markets whose resolution date
// has passed. Round markets get their final price from the feed; event
// markets cannot be auto-resolved and are only logged until an operator
// supplies an outcome.
type DeadlineSweep struct {
	Repo       repository.Repository
	Feed       pricefeed.Feed
	Settlement *engine.SettlementEngine
	Logger     *zap.Logger

	Interval time.Duration
	Now      func() time.Time
}

func (s *DeadlineSweep) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *DeadlineSweep) Run(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	_ = s.RunOnce(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = s.RunOnce(ctx)
		}
	}
}

func (s *DeadlineSweep) RunOnce(ctx context.Context) error {
	markets, err := s.Repo.ListActiveMarketsDue(ctx, s.now())
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("deadline sweep list failed", zap.Error(err))
		}
		return err
	}
	for i := range markets {
		market := markets[i]
		if err := s.resolveMarket(ctx, &market); err != nil {
			metrics.MonitorSweepErrors.Inc()
			if s.Logger != nil {
				s.Logger.Warn("deadline resolution failed",
					zap.String("market_id", market.ID),
					zap.String("market_type", market.MarketType),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

func (s *DeadlineSweep) resolveMarket(ctx context.Context, market *models.Market) error {
	switch market.MarketType {
	case models.MarketTypePrice, models.MarketTypeQuick:
		price, err := s.Feed.GetPrice(ctx, market.Symbol)
		if err != nil {
			return err
		}
		return s.Settlement.Resolve(ctx, market.ID, engine.ResolveOptions{FinalPrice: &price})
	case models.MarketTypeTarget:
		// Handled by the target monitor, which owns the high-water mark.
		return nil
	default:
		if s.Logger != nil {
			s.Logger.Info("event market past deadline awaits manual outcome",
				zap.String("market_id", market.ID),
			)
		}
		return nil
	}
}
