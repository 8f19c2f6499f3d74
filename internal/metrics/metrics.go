// Package metrics – Prometheus metrics for the live runner.
//
// Exposed series:
//   • bot_spikes_total{tier}        – volume spikes queued
//   • bot_entries_total{tier}       – positions opened
//   • bot_exit_reasons_total{reason,tier} – exits split by reason and tier
//   • bot_equity_krw                – current equity snapshot (gauge)
//   • bot_open_positions            – open position count (gauge)
//   • bot_feed_bars_total           – bars received from the feed
//
// Registered in init() and served by the HTTP handler started in cmd at
// /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Spikes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_spikes_total",
			Help: "Volume spikes queued",
		},
		[]string{"tier"},
	)

	Entries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_entries_total",
			Help: "Positions opened",
		},
		[]string{"tier"},
	)

	ExitReasons = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_exit_reasons_total",
			Help: "Exits split by reason and tier",
		},
		[]string{"reason", "tier"},
	)

	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_equity_krw",
			Help: "Equity in KRW",
		},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_open_positions",
			Help: "Currently open positions",
		},
	)

	FeedBars = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_feed_bars_total",
			Help: "Bars received from the feed",
		},
	)
)

func init() {
	prometheus.MustRegister(Spikes, Entries, ExitReasons, Equity, OpenPositions, FeedBars)
}
