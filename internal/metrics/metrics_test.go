package metrics

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"tradesim/internal/channel"
	"tradesim/models"
)

// gaugeValue reads a gauge for symbol from the default registry.
func gaugeValue(t *testing.T, name, symbol string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "symbol" && lp.GetValue() == symbol {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("gauge %s{symbol=%q} not found", name, symbol)
	return 0
}

func TestRecordResult(t *testing.T) {
	Init()
	Init()

	res := models.DefaultResult()
	res.Symbol = "SOL-USDT-SWAP"
	res.FeesUSD = 2.5
	res.SlippagePct = math.Inf(1)
	res.BookDepthLevels = 12
	RecordResult(res)

	if v := gaugeValue(t, gaugeFees, "SOL-USDT-SWAP"); v != 2.5 {
		t.Fatalf("fees gauge = %v, want 2.5", v)
	}
	if v := gaugeValue(t, gaugeBookDepth, "SOL-USDT-SWAP"); v != 12 {
		t.Fatalf("depth gauge = %v, want 12", v)
	}
	if v := gaugeValue(t, gaugeSlippage, "SOL-USDT-SWAP"); !math.IsInf(v, 1) {
		t.Fatalf("slippage gauge = %v, want +Inf", v)
	}
	if v := gaugeValue(t, gaugeMaker, "SOL-USDT-SWAP"); v != 0.5 {
		t.Fatalf("maker gauge = %v, want 0.5", v)
	}
}

func TestRecordQueue(t *testing.T) {
	Init()
	RecordQueue("XRP-USDT-SWAP", 3, channel.HandoffStats{Enqueued: 10, Dropped: 4})

	if v := gaugeValue(t, "tradesim_queue_length", "XRP-USDT-SWAP"); v != 3 {
		t.Fatalf("queue length = %v, want 3", v)
	}
	if v := gaugeValue(t, "tradesim_queue_dropped", "XRP-USDT-SWAP"); v != 4 {
		t.Fatalf("queue dropped = %v, want 4", v)
	}
}
