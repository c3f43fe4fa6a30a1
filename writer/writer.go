package writer

import (
	"context"
	"strconv"

	"tradesim/models"
)

// ResultSink persists or forwards the latest cost result.
type ResultSink interface {
	Name() string
	Write(ctx context.Context, res models.ResultSnapshot) error
	Close() error
}

// resultFields flattens a result into field/value pairs. Non-finite values
// keep their strconv spelling (+Inf, NaN).
func resultFields(res models.ResultSnapshot) []any {
	return []any{
		"symbol", res.Symbol,
		"slippage_pct", formatFloat(res.SlippagePct),
		"fees_usd", formatFloat(res.FeesUSD),
		"market_impact_pct", formatFloat(res.MarketImpactPct),
		"net_cost_usd", formatFloat(res.NetCostUSD),
		"maker_probability", formatFloat(res.MakerProbability),
		"processing_latency_seconds", formatFloat(res.ProcessingLatencySeconds),
		"book_depth_levels", strconv.Itoa(res.BookDepthLevels),
		"processed", strconv.FormatUint(res.Processed, 10),
		"updated_at", strconv.FormatInt(res.UpdatedAt.UnixMilli(), 10),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
