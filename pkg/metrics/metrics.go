// Package metrics exposes Prometheus instrumentation for the simulation
// engine, served at /metrics in the Prometheus text exposition format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_orders_total",
			Help: "Order intents by outcome",
		},
		[]string{"type", "side", "result"}, // result: accepted|<reject reason>
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_trades_total",
			Help: "Executed trades by counterparty kind",
		},
		[]string{"symbol", "kind"}, // kind: book|house
	)

	TradedVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_traded_volume_lots",
			Help: "Traded volume in lots",
		},
		[]string{"symbol"},
	)

	LastPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pit_reference_price",
			Help: "Current reference price per asset",
		},
		[]string{"symbol"},
	)

	RestingOrders = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pit_resting_orders",
			Help: "Orders resting in the book per asset",
		},
		[]string{"symbol"},
	)

	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pit_ticks_total",
			Help: "Engine ticks advanced",
		},
	)

	TickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pit_tick_seconds",
			Help:    "Wall time per full tick step",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersTotal,
		TradesTotal,
		TradedVolume,
		LastPrice,
		RestingOrders,
		TicksTotal,
		TickSeconds,
	)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
