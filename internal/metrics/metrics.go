// Package metrics exposes Prometheus instrumentation for the trading
// loop:
//   - bot_orders_total{side,urgency}    – IOC orders submitted
//   - bot_fills_total{side,tag}         – confirmed fills by exit/entry reason
//   - bot_fill_shares_total{side,tag}   – shares filled
//   - bot_ticks_total                   – engine ticks completed
//   - bot_symbol_errors_total{symbol}   – per-symbol tick faults
//   - bot_reconnects_total              – broker reconnect cycles
//   - bot_last_price / bot_position_shares / bot_avg_cost /
//     bot_unrealized_pnl / bot_realized_pnl / bot_vwv_z /
//     bot_active_layers {symbol}        – per-symbol gauges
//
// Served at /metrics by cmd/bot in Prometheus text exposition format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "IOC orders submitted",
		},
		[]string{"side", "urgency"},
	)

	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_fills_total",
			Help: "Confirmed fills by side and reason tag",
		},
		[]string{"side", "tag"},
	)

	fillSharesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_fill_shares_total",
			Help: "Shares filled by side and reason tag",
		},
		[]string{"side", "tag"},
	)

	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Engine ticks completed",
		},
	)

	symbolErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_symbol_errors_total",
			Help: "Per-symbol evaluation faults",
		},
		[]string{"symbol"},
	)

	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_reconnects_total",
			Help: "Broker reconnect cycles",
		},
	)

	lastPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_last_price", Help: "Last trade price"},
		[]string{"symbol"},
	)
	positionShares = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_position_shares", Help: "Current position in shares"},
		[]string{"symbol"},
	)
	avgCost = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_avg_cost", Help: "Average cost of the open position"},
		[]string{"symbol"},
	)
	unrealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_unrealized_pnl", Help: "Unrealized PnL in USD"},
		[]string{"symbol"},
	)
	realizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_realized_pnl", Help: "Cumulative realized PnL in USD"},
		[]string{"symbol"},
	)
	vwvZ = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_vwv_z", Help: "Volume-weighted volatility z-score"},
		[]string{"symbol"},
	)
	activeLayers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "bot_active_layers", Help: "Filled ladder layers"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(
		ordersTotal, fillsTotal, fillSharesTotal,
		ticksTotal, symbolErrorsTotal, reconnectsTotal,
		lastPrice, positionShares, avgCost,
		unrealizedPnL, realizedPnL, vwvZ, activeLayers,
	)
}

func RecordOrder(side, urgency string) {
	ordersTotal.WithLabelValues(side, urgency).Inc()
}

func RecordFill(side, tag string, qty int) {
	fillsTotal.WithLabelValues(side, tag).Inc()
	fillSharesTotal.WithLabelValues(side, tag).Add(float64(qty))
}

func IncTick() { ticksTotal.Inc() }

func IncSymbolError(symbol string) {
	symbolErrorsTotal.WithLabelValues(symbol).Inc()
}

func IncReconnect() { reconnectsTotal.Inc() }

// SetSymbolState publishes the per-tick telemetry gauges for one symbol.
func SetSymbolState(symbol string, last, avg, upnl, rpnl, z float64, pos, layers int) {
	lastPrice.WithLabelValues(symbol).Set(last)
	positionShares.WithLabelValues(symbol).Set(float64(pos))
	avgCost.WithLabelValues(symbol).Set(avg)
	unrealizedPnL.WithLabelValues(symbol).Set(upnl)
	realizedPnL.WithLabelValues(symbol).Set(rpnl)
	vwvZ.WithLabelValues(symbol).Set(z)
	activeLayers.WithLabelValues(symbol).Set(float64(layers))
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
