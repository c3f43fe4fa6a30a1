package metrics

import (
	"sync"
	"time"

	"tradesim/logger"
	"tradesim/models"
)

// Metric is one emitted measurement, delivered to every registered handler.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

type MetricHandler func(Metric)

// MetricHandlerID identifies a registration; zero means none.
type MetricHandlerID uint64

var (
	handlersMu    sync.RWMutex
	handlers      = make(map[MetricHandlerID]MetricHandler)
	nextHandlerID MetricHandlerID
)

// RegisterMetricHandler subscribes handler to every emitted metric. A nil
// handler is ignored and yields a zero ID.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	handlersMu.Lock()
	defer handlersMu.Unlock()
	nextHandlerID++
	handlers[nextHandlerID] = handler
	return nextHandlerID
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	handlersMu.Lock()
	delete(handlers, id)
	handlersMu.Unlock()
}

// EmitResult emits every field of res as a gauge tagged with its symbol.
func EmitResult(log *logger.Log, res models.ResultSnapshot) {
	fields := logger.Fields{"symbol": res.Symbol}
	EmitMetric(log, "cost_engine", "slippage_pct", res.SlippagePct, "gauge", withUnit(fields, "percent"))
	EmitMetric(log, "cost_engine", "fees_usd", res.FeesUSD, "gauge", withUnit(fields, "none"))
	EmitMetric(log, "cost_engine", "market_impact_pct", res.MarketImpactPct, "gauge", withUnit(fields, "percent"))
	EmitMetric(log, "cost_engine", "net_cost_usd", res.NetCostUSD, "gauge", withUnit(fields, "none"))
	EmitMetric(log, "cost_engine", "maker_probability", res.MakerProbability, "gauge", withUnit(fields, "none"))
	EmitMetric(log, "cost_engine", "processing_latency_seconds", res.ProcessingLatencySeconds, "gauge", withUnit(fields, "seconds"))
	EmitMetric(log, "cost_engine", "book_depth_levels", res.BookDepthLevels, "gauge", withUnit(fields, "count"))
}

func withUnit(fields logger.Fields, unit string) logger.Fields {
	out := cloneFields(fields)
	out["unit"] = unit
	return out
}

func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	userFields := cloneFields(fields)
	logFields := cloneFields(fields)
	logFields["metric"] = name
	logFields["metric_type"] = metricType
	logFields["value"] = value
	log.WithComponent(component).WithFields(logFields).Debug("metric")

	m := Metric{
		Timestamp: timeNow(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    userFields,
	}
	dispatchMetric(m)
	return m, true
}

func dispatchMetric(m Metric) {
	handlersMu.RLock()
	if len(handlers) == 0 {
		handlersMu.RUnlock()
		return
	}
	targets := make([]MetricHandler, 0, len(handlers))
	for _, h := range handlers {
		targets = append(targets, h)
	}
	handlersMu.RUnlock()

	for _, h := range targets {
		h(m)
	}
}

func cloneFields(fields logger.Fields) logger.Fields {
	out := make(logger.Fields, len(fields)+3)
	for k, v := range fields {
		out[k] = v
	}
	return out
}
