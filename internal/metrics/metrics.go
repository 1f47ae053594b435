// Package metrics provides Prometheus instrumentation for the trading core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts committed trades, partitioned by BUY/SELL.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opinion_trades_total",
		Help: "Total number of trades committed",
	}, []string{"type"})

	// TradeRejections counts rejected trade attempts by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "opinion_trade_rejections_total",
		Help: "Trade attempts rejected before commit",
	}, []string{"reason"})

	// OpenMarkets tracks the number of events currently open for trading.
	OpenMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opinion_open_markets",
		Help: "Number of events currently open for trading",
	})

	// WebSocketClients tracks connected price-stream subscribers.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "opinion_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
