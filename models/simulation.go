package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// SimulationConfig holds the per-session order parameters. It is fixed for
// the lifetime of a session.
type SimulationConfig struct {
	Symbol      string  `json:"symbol"`
	QuantityUSD float64 `json:"quantity_usd"`
	// Volatility is annualised and expressed as a fraction (0.5 = 50%).
	Volatility float64 `json:"volatility"`
	FeeRate    float64 `json:"fee_rate"`
	// FeeTier names a row of the fee table. When set and FeeRate is zero the
	// tier's taker rate is used; leave it empty to charge FeeRate, even 0.
	FeeTier string `json:"fee_tier,omitempty"`
}

// Validate checks the numeric ranges of the configuration. Symbol support is
// checked by the session against the configured symbol list.
func (c SimulationConfig) Validate() error {
	if strings.TrimSpace(c.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if !(c.QuantityUSD > 0) || math.IsInf(c.QuantityUSD, 0) {
		return fmt.Errorf("quantity_usd must be greater than 0, got %v", c.QuantityUSD)
	}
	if !(c.Volatility > 0) || math.IsInf(c.Volatility, 0) {
		return fmt.Errorf("volatility must be greater than 0, got %v", c.Volatility)
	}
	if c.FeeRate < 0 || c.FeeRate > 1 || math.IsNaN(c.FeeRate) {
		return fmt.Errorf("fee_rate must be within [0,1], got %v", c.FeeRate)
	}
	return nil
}

// ResultSnapshot is the latest set of derived cost metrics for a session.
type ResultSnapshot struct {
	Symbol                   string    `json:"symbol"`
	SlippagePct              float64   `json:"slippage_pct"`
	FeesUSD                  float64   `json:"fees_usd"`
	MarketImpactPct          float64   `json:"market_impact_pct"`
	NetCostUSD               float64   `json:"net_cost_usd"`
	MakerProbability         float64   `json:"maker_probability"`
	ProcessingLatencySeconds float64   `json:"processing_latency_seconds"`
	BookDepthLevels          int       `json:"book_depth_levels"`
	Processed                uint64    `json:"processed"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// DefaultResult is the neutral result a session starts with.
func DefaultResult() ResultSnapshot {
	return ResultSnapshot{MakerProbability: 0.5}
}

// MarshalJSON renders non-finite metrics (insufficient liquidity) as null,
// which encoding/json otherwise refuses to encode.
func (r ResultSnapshot) MarshalJSON() ([]byte, error) {
	type wire struct {
		Symbol                   string    `json:"symbol"`
		SlippagePct              *float64  `json:"slippage_pct"`
		FeesUSD                  *float64  `json:"fees_usd"`
		MarketImpactPct          *float64  `json:"market_impact_pct"`
		NetCostUSD               *float64  `json:"net_cost_usd"`
		MakerProbability         float64   `json:"maker_probability"`
		ProcessingLatencySeconds float64   `json:"processing_latency_seconds"`
		BookDepthLevels          int       `json:"book_depth_levels"`
		Processed                uint64    `json:"processed"`
		UpdatedAt                time.Time `json:"updated_at"`
	}
	return json.Marshal(wire{
		Symbol:                   r.Symbol,
		SlippagePct:              finite(r.SlippagePct),
		FeesUSD:                  finite(r.FeesUSD),
		MarketImpactPct:          finite(r.MarketImpactPct),
		NetCostUSD:               finite(r.NetCostUSD),
		MakerProbability:         r.MakerProbability,
		ProcessingLatencySeconds: r.ProcessingLatencySeconds,
		BookDepthLevels:          r.BookDepthLevels,
		Processed:                r.Processed,
		UpdatedAt:                r.UpdatedAt,
	})
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
