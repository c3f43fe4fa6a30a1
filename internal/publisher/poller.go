package publisher

import (
	"context"
	"time"

	"tradesim/config"
	"tradesim/internal/metrics"
	"tradesim/logger"
	"tradesim/models"
	"tradesim/session"
	"tradesim/writer"
)

// Source is the part of session.Session the poller reads.
type Source interface {
	LatestResult() models.ResultSnapshot
	Status() session.Status
}

// Poller pulls the latest result at a fixed cadence, which also drives the
// session's fold step, and fans new results out to metrics and sinks.
type Poller struct {
	source     Source
	sinks      []writer.ResultSink
	interval   time.Duration
	maxLatency time.Duration
	log        *logger.Log

	// poll state, owned by the goroutine calling Tick
	lastSession   string
	lastProcessed uint64
	lastSymbol    string
	slowSince     uint64
}

func NewPoller(cfg *config.Config, source Source, sinks ...writer.ResultSink) *Poller {
	interval := cfg.Publisher.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Poller{
		source:     source,
		sinks:      sinks,
		interval:   interval,
		maxLatency: cfg.Engine.MaxLatency,
		log:        logger.GetLogger(),
	}
}

// Run ticks until ctx is cancelled, then closes every sink.
func (p *Poller) Run(ctx context.Context) error {
	log := p.log.WithComponent("publisher").WithFields(logger.Fields{"interval": p.interval.String()})
	log.Info("starting result poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer p.closeSinks()

	for {
		select {
		case <-ctx.Done():
			log.Info("result poller stopped")
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one poll and reports whether a new result was published.
// It is not safe for concurrent use.
func (p *Poller) Tick(ctx context.Context) bool {
	// status first: a restart between the two calls republishes rather than
	// skipping the new session's first result
	status := p.source.Status()
	res := p.source.LatestResult()

	metrics.RecordResult(res)
	metrics.RecordQueue(status.Config.Symbol, int(status.Queue.Enqueued-status.Queue.Drained-status.Queue.Dropped), status.Queue)

	fresh := status.ID != p.lastSession || res.Processed != p.lastProcessed || res.Symbol != p.lastSymbol
	p.lastSession = status.ID
	p.lastProcessed = res.Processed
	p.lastSymbol = res.Symbol

	if !fresh || res.Processed == 0 {
		return false
	}

	p.checkLatency(res)
	metrics.EmitResult(p.log, res)

	for _, sink := range p.sinks {
		if err := sink.Write(ctx, res); err != nil {
			p.log.WithComponent("publisher").WithFields(logger.Fields{
				"sink":   sink.Name(),
				"symbol": res.Symbol,
			}).WithError(err).Warn("failed to publish result")
			continue
		}
		logger.LogDataFlowEntry(p.log.WithComponent("publisher"), "session", sink.Name(), 1, "cost_result")
	}
	return true
}

// checkLatency warns once per slow streak when folding exceeds the budget.
func (p *Poller) checkLatency(res models.ResultSnapshot) {
	if p.maxLatency <= 0 {
		return
	}
	latency := time.Duration(res.ProcessingLatencySeconds * float64(time.Second))
	if latency <= p.maxLatency {
		p.slowSince = 0
		return
	}
	if p.slowSince != 0 {
		return
	}
	p.slowSince = res.Processed
	p.log.WithComponent("publisher").WithFields(logger.Fields{
		"symbol":     res.Symbol,
		"latency_ms": float64(latency.Microseconds()) / 1000,
		"budget_ms":  p.maxLatency.Milliseconds(),
	}).Warn("processing latency above budget")
}

func (p *Poller) closeSinks() {
	for _, sink := range p.sinks {
		if err := sink.Close(); err != nil {
			p.log.WithComponent("publisher").WithFields(logger.Fields{"sink": sink.Name()}).WithError(err).Warn("failed to close sink")
		}
	}
}
