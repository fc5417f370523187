// Package metrics provides Prometheus instrumentation for the
// settlement core.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsPlaced counts accepted bets, partitioned by outcome.
	BetsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictmarket_bets_placed_total",
		Help: "Total number of bets placed",
	}, []string{"outcome"})

	// BetsRejected counts placements refused by validation, by reason.
	BetsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictmarket_bets_rejected_total",
		Help: "Bets rejected by validation",
	}, []string{"reason"})

	// MarketsResolved counts completed settlements.
	MarketsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictmarket_markets_resolved_total",
		Help: "Total number of markets resolved",
	})

	// MonitorSweepErrors counts per-market failures during price sweeps.
	MonitorSweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "predictmarket_monitor_sweep_errors_total",
		Help: "Price target monitor per-market errors",
	})

	// PriceFeedRequests counts upstream price feed calls by result.
	PriceFeedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictmarket_price_feed_requests_total",
		Help: "Price feed requests by result (ok, error, cache_hit)",
	}, []string{"result"})

	// LedgerEntries counts completed ledger writes by entry type.
	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "predictmarket_ledger_entries_total",
		Help: "Ledger entries created by type",
	}, []string{"type"})

	// ReconciliationDrift is set to 1 while any account fails the
	// replay-the-ledger check.
	ReconciliationDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "predictmarket_reconciliation_drift",
		Help: "1 when a ledger reconciliation mismatch has been detected",
	})
)

// Register mounts the Prometheus handler on the gin engine.
func Register(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
