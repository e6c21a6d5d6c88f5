// Package metrics exposes the exchange's operational counters.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	InboundFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helix_inbound_frames_total",
		Help: "Frames parsed off client connections.",
	})
	InboundDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helix_inbound_dropped_total",
		Help: "Frames rejected because the engine inbox was full.",
	})
	OutboundDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helix_outbound_dropped_total",
		Help: "Frames dropped because a client outbox was full.",
	})
	OutboundBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helix_outbound_bytes_total",
		Help: "Bytes written to client sockets.",
	})
	OrdersInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helix_orders_inserted_total",
		Help: "Residual orders rested in the book.",
	})
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helix_orders_cancelled_total",
		Help: "Orders removed by cancel.",
	})
	Trades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helix_trades_total",
		Help: "Matches executed.",
	})
	ClientErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helix_client_errors_total",
		Help: "ERROR_MSG frames sent, by code.",
	}, []string{"code"})
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "helix_connections",
		Help: "Open client connections.",
	})
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "helix_market_data_subscribers",
		Help: "Connections subscribed to the public feed.",
	})
	InboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "helix_engine_inbox_depth",
		Help: "Approximate depth of the engine inbox.",
	})
)

// Serve exposes /metrics on the given port. Blocks; run in a goroutine.
func Serve(port int, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	log.Info("metrics listener up", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics listener stopped", zap.Error(err))
	}
}
