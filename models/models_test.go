package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestBookSnapshotAccessors(t *testing.T) {
	book := BookSnapshot{
		Bids: []PriceLevel{{Price: 99.9, Quantity: 5}, {Price: 99.8, Quantity: 5}},
		Asks: []PriceLevel{{Price: 100.1, Quantity: 5}},
	}
	bid, ok := book.BestBid()
	if !ok || bid.Price != 99.9 {
		t.Fatalf("unexpected best bid: %+v", bid)
	}
	ask, ok := book.BestAsk()
	if !ok || ask.Price != 100.1 {
		t.Fatalf("unexpected best ask: %+v", ask)
	}
	if book.Depth() != 3 {
		t.Fatalf("depth = %d, want 3", book.Depth())
	}
	if book.Crossed() {
		t.Fatal("book should not be crossed")
	}

	crossed := BookSnapshot{
		Bids: []PriceLevel{{Price: 101, Quantity: 1}},
		Asks: []PriceLevel{{Price: 100, Quantity: 1}},
	}
	if !crossed.Crossed() {
		t.Fatal("expected crossed book")
	}

	var empty BookSnapshot
	if _, ok := empty.BestBid(); ok {
		t.Fatal("empty book has no best bid")
	}
}

func TestSimulationConfigValidate(t *testing.T) {
	valid := SimulationConfig{Symbol: "BTC-USDT-SWAP", QuantityUSD: 100, Volatility: 0.5, FeeRate: 0.0005}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]SimulationConfig{
		"empty symbol":      {QuantityUSD: 100, Volatility: 0.5},
		"zero quantity":     {Symbol: "BTC-USDT-SWAP", Volatility: 0.5},
		"negative quantity": {Symbol: "BTC-USDT-SWAP", QuantityUSD: -1, Volatility: 0.5},
		"zero volatility":   {Symbol: "BTC-USDT-SWAP", QuantityUSD: 100},
		"fee above one":     {Symbol: "BTC-USDT-SWAP", QuantityUSD: 100, Volatility: 0.5, FeeRate: 1.5},
		"negative fee":      {Symbol: "BTC-USDT-SWAP", QuantityUSD: 100, Volatility: 0.5, FeeRate: -0.1},
	}
	for name, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestDefaultResult(t *testing.T) {
	r := DefaultResult()
	if r.MakerProbability != 0.5 {
		t.Fatalf("maker probability = %v, want 0.5", r.MakerProbability)
	}
	if r.SlippagePct != 0 || r.FeesUSD != 0 || r.NetCostUSD != 0 || r.BookDepthLevels != 0 {
		t.Fatalf("unexpected non-zero defaults: %+v", r)
	}
}

func TestResultSnapshotJSONInfinity(t *testing.T) {
	r := ResultSnapshot{Symbol: "BTC-USDT-SWAP", SlippagePct: math.Inf(1), FeesUSD: 5, MakerProbability: 0.7}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	if !strings.Contains(body, `"slippage_pct":null`) {
		t.Fatalf("infinite slippage not rendered as null: %s", body)
	}
	if !strings.Contains(body, `"fees_usd":5`) {
		t.Fatalf("fees missing: %s", body)
	}
}
