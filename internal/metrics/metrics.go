// Registers:
//
//	#tradesim_slippage_pct, tradesim_fees_usd, tradesim_market_impact_pct,
//	 tradesim_net_cost_usd, tradesim_maker_probability,
//	 tradesim_processing_latency_seconds, tradesim_book_depth_levels {symbol}
//	#tradesim_queue_length, tradesim_queue_dropped {symbol}
//	#tradesim_feed_messages_total, tradesim_decode_errors_total,
//	 tradesim_reconnects_total, tradesim_folds_total{result}
//	#go_* and process_* system metrics
//
// Exposed through Handler, mounted by the dashboard or by Serve.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradesim/internal/channel"
	"tradesim/logger"
	"tradesim/models"
)

var (
	once sync.Once

	resultGauges map[string]*prometheus.GaugeVec
	queueLength  *prometheus.GaugeVec
	queueDropped *prometheus.GaugeVec
)

const (
	gaugeSlippage  = "tradesim_slippage_pct"
	gaugeFees      = "tradesim_fees_usd"
	gaugeImpact    = "tradesim_market_impact_pct"
	gaugeNetCost   = "tradesim_net_cost_usd"
	gaugeMaker     = "tradesim_maker_probability"
	gaugeLatency   = "tradesim_processing_latency_seconds"
	gaugeBookDepth = "tradesim_book_depth_levels"
)

var resultHelp = map[string]string{
	gaugeSlippage:  "Two-sided expected slippage in percent",
	gaugeFees:      "Expected taker fee",
	gaugeImpact:    "Almgren-Chriss market impact in percent",
	gaugeNetCost:   "Fees plus slippage plus impact",
	gaugeMaker:     "Probability of passive execution",
	gaugeLatency:   "Time spent folding the latest snapshot",
	gaugeBookDepth: "Bid plus ask levels in the latest snapshot",
}

// Init registers every collector with the default registry. It is safe to
// call more than once.
func Init() {
	once.Do(func() {
		resultGauges = make(map[string]*prometheus.GaugeVec, len(resultHelp))
		for name, help := range resultHelp {
			g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"symbol"})
			resultGauges[name] = g
			_ = prometheus.Register(g)
		}

		queueLength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesim_queue_length",
			Help: "Snapshots waiting in the hand-off queue",
		}, []string{"symbol"})
		queueDropped = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradesim_queue_dropped",
			Help: "Snapshots evicted from a bounded hand-off queue this session",
		}, []string{"symbol"})
		_ = prometheus.Register(queueLength)
		_ = prometheus.Register(queueDropped)

		_ = prometheus.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "tradesim_feed_messages_total",
			Help: "Frames received from the order book feed",
		}, func() float64 { return float64(logger.Snapshot().FeedMessages) }))
		_ = prometheus.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "tradesim_decode_errors_total",
			Help: "Frames dropped because they could not be decoded",
		}, func() float64 { return float64(logger.Snapshot().DecodeErrors) }))
		_ = prometheus.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "tradesim_reconnects_total",
			Help: "Feed reconnect attempts",
		}, func() float64 { return float64(logger.Snapshot().Reconnects) }))
		_ = prometheus.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "tradesim_folds_total",
			Help:        "Snapshots folded into a result",
			ConstLabels: prometheus.Labels{"result": "applied"},
		}, func() float64 { return float64(logger.Snapshot().FoldsApplied) }))
		_ = prometheus.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name:        "tradesim_folds_total",
			Help:        "Snapshots folded into a result",
			ConstLabels: prometheus.Labels{"result": "skipped"},
		}, func() float64 { return float64(logger.Snapshot().FoldsSkipped) }))

		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.GetLogger().WithComponent("metrics").WithFields(logger.Fields{"address": addr}).Info("metrics listener started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// RecordResult sets the result gauges for res.Symbol.
func RecordResult(res models.ResultSnapshot) {
	if resultGauges == nil {
		return
	}
	values := map[string]float64{
		gaugeSlippage:  res.SlippagePct,
		gaugeFees:      res.FeesUSD,
		gaugeImpact:    res.MarketImpactPct,
		gaugeNetCost:   res.NetCostUSD,
		gaugeMaker:     res.MakerProbability,
		gaugeLatency:   res.ProcessingLatencySeconds,
		gaugeBookDepth: float64(res.BookDepthLevels),
	}
	for name, v := range values {
		resultGauges[name].WithLabelValues(res.Symbol).Set(v)
	}
}

// RecordQueue sets the hand-off queue gauges for symbol.
func RecordQueue(symbol string, length int, stats channel.HandoffStats) {
	if queueLength == nil {
		return
	}
	queueLength.WithLabelValues(symbol).Set(float64(length))
	queueDropped.WithLabelValues(symbol).Set(float64(stats.Dropped))
}
