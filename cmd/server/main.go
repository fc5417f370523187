package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictmarket/internal/config"
	cronrunner "predictmarket/internal/cron"
	"predictmarket/internal/db"
	"predictmarket/internal/engine"
	"predictmarket/internal/handler"
	"predictmarket/internal/ledger"
	"predictmarket/internal/logger"
	"predictmarket/internal/metrics"
	"predictmarket/internal/monitor"
	"predictmarket/internal/odds"
	"predictmarket/internal/pricefeed"
	"predictmarket/internal/referral"
	gormrepository "predictmarket/internal/repository/gorm"
)

func main() {
	cfgPath := os.Getenv("PM_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("PM_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	{
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, price cache degraded", zap.Error(err))
		}
		cancel()
	}

	store := gormrepository.New(dbConn.Gorm)

	oddsParams := odds.Params{
		MaxOdds:      decimal.NewFromFloat(cfg.Odds.MaxOdds),
		FallbackOdds: decimal.NewFromFloat(cfg.Odds.FallbackOdds),
	}

	feedHTTP := &http.Client{Timeout: cfg.PriceFeed.Timeout}
	var feed pricefeed.Feed = pricefeed.NewCoinGeckoClient(feedHTTP, cfg.PriceFeed.BaseURL)
	feed = pricefeed.NewCachedFeed(feed, rdb, cfg.PriceFeed.CacheTTL)

	ledgerSvc := &ledger.Service{Repo: store, Logger: logger}
	bettingEngine := &engine.BettingEngine{Repo: store, Odds: oddsParams, Logger: logger}
	settlementEngine := &engine.SettlementEngine{
		Repo:        store,
		Logger:      logger,
		FlatBandPct: decimal.NewFromFloat(cfg.Settlement.FlatBandPct),
	}

	var referralSvc *referral.Service
	if cfg.Referral.Enabled {
		referralSvc = &referral.Service{
			Repo:         store,
			Ledger:       ledgerSvc,
			Logger:       logger,
			NewUserBonus: decimal.NewFromFloat(cfg.Referral.NewUserBonus),
		}
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	marketHandler := &handler.MarketHandler{Repo: store, Feed: feed, Odds: oddsParams}
	marketHandler.Register(router)
	betHandler := &handler.BetHandler{Betting: bettingEngine, Repo: store}
	betHandler.Register(router)
	accountHandler := &handler.AccountHandler{Repo: store, Ledger: ledgerSvc}
	accountHandler.Register(router)
	adminHandler := &handler.AdminHandler{
		Settlement: settlementEngine,
		Ledger:     ledgerSvc,
		Referral:   referralSvc,
	}
	adminHandler.Register(router)
	metrics.Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Monitor.Enabled {
		targetMonitor := &monitor.PriceTargetMonitor{
			Repo:          store,
			Feed:          feed,
			Settlement:    settlementEngine,
			Logger:        logger,
			Interval:      cfg.Monitor.Interval,
			Concurrency:   cfg.Monitor.Concurrency,
			MarketTimeout: cfg.Monitor.MarketTimeout,
		}
		go func() {
			if err := targetMonitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("price target monitor stopped", zap.Error(err))
			}
		}()
	}

	deadlineSweep := &monitor.DeadlineSweep{
		Repo:       store,
		Feed:       feed,
		Settlement: settlementEngine,
		Logger:     logger,
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add("deadline_sweep", cfg.Cron.DeadlineSweep, func(ctx context.Context) {
			if err := deadlineSweep.RunOnce(ctx); err != nil {
				logger.Warn("deadline sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register deadline sweep failed", zap.Error(err))
		}

		_, err = cronRunner.Add("ledger_audit", cfg.Cron.Reconcile, func(ctx context.Context) {
			drifted, err := ledgerSvc.AuditAll(ctx)
			if err != nil {
				logger.Warn("ledger audit failed", zap.Error(err))
				return
			}
			if drifted > 0 {
				logger.Error("ledger audit found drifted accounts", zap.Int("drifted", drifted))
			}
		})
		if err != nil {
			logger.Warn("cron register ledger audit failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = rdb.Close()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
