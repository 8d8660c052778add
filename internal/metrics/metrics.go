// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuoteLookups counts quote lookups by provider and outcome
	// (found, not_found, transient_error).
	QuoteLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_quote_lookups_total",
		Help: "Quote lookups by provider and outcome.",
	}, []string{"provider", "outcome"})

	// Trades counts committed trades by side.
	Trades = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_trades_total",
		Help: "Committed trades by side.",
	}, []string{"side"})

	// TradeRejections counts trades refused by validation or business rules.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papertrade_trade_rejections_total",
		Help: "Rejected trades by side and reason.",
	}, []string{"side", "reason"})
)
