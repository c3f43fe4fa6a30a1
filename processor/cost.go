package processor

import (
	"math"

	"tradesim/models"
)

// Side is the direction of the hypothetical market order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// fillTolerance absorbs float error when a request exactly exhausts the book.
const fillTolerance = 1e-12

// Slippage walks levels (asks for a buy, bids for a sell) until quantity is
// filled and returns the percentage distance between the fill VWAP and the
// top of book. It returns +Inf when the side cannot fill the quantity.
func Slippage(levels []models.PriceLevel, quantity float64, side Side) float64 {
	if quantity <= 0 {
		return 0
	}
	if len(levels) == 0 {
		return math.Inf(1)
	}

	remaining := quantity
	notional := 0.0
	for _, lvl := range levels {
		take := math.Min(remaining, lvl.Quantity)
		notional += take * lvl.Price
		remaining -= take
		if remaining <= fillTolerance*quantity {
			remaining = 0
			break
		}
	}
	if remaining > 0 {
		return math.Inf(1)
	}

	vwap := notional / quantity
	top := levels[0].Price
	if side == Sell {
		return (top - vwap) / top * 100
	}
	return (vwap - top) / top * 100
}

// VWAP is the average fill price for quantity on levels, or +Inf when the
// side is too thin.
func VWAP(levels []models.PriceLevel, quantity float64) float64 {
	if quantity <= 0 || len(levels) == 0 {
		return math.Inf(1)
	}
	remaining := quantity
	notional := 0.0
	for _, lvl := range levels {
		take := math.Min(remaining, lvl.Quantity)
		notional += take * lvl.Price
		remaining -= take
		if remaining <= fillTolerance*quantity {
			return notional / quantity
		}
	}
	return math.Inf(1)
}

// Fees is the notional fee: quantity * price * rate.
func Fees(quantity, price, feeRate float64) float64 {
	return quantity * price * feeRate
}

// ImpactParams are the Almgren-Chriss coefficients.
type ImpactParams struct {
	Permanent   float64
	Temporary   float64
	TradingDays float64
}

// MarketImpact applies the simplified Almgren-Chriss model
//
//	(eta*Q + gamma*Q^2/L) * sigma/sqrt(days)
//
// and returns the impact as a fraction. Zero or negative liquidity yields
// +Inf.
func MarketImpact(quantity, volatility, liquidity float64, p ImpactParams) float64 {
	if liquidity <= 0 {
		return math.Inf(1)
	}
	days := p.TradingDays
	if days <= 0 {
		days = 252
	}
	dailyVol := volatility / math.Sqrt(days)
	cost := p.Permanent*quantity + p.Temporary*quantity*quantity/liquidity
	return cost * dailyVol
}

// AggregateLiquidity sums the quantity of the first depth levels.
func AggregateLiquidity(levels []models.PriceLevel, depth int) float64 {
	if depth <= 0 || depth > len(levels) {
		depth = len(levels)
	}
	total := 0.0
	for _, lvl := range levels[:depth] {
		total += lvl.Quantity
	}
	return total
}

func MidPrice(bid, ask float64) float64 {
	return (bid + ask) / 2
}

// RelativeSpread is (ask - bid) / mid.
func RelativeSpread(bid, ask float64) float64 {
	mid := MidPrice(bid, ask)
	if mid <= 0 {
		return math.NaN()
	}
	return (ask - bid) / mid
}

// MakerCurve is a decreasing logistic response of maker probability to the
// relative spread.
type MakerCurve struct {
	Steepness float64
	Midpoint  float64
}

// MakerProbability maps a relative spread to the probability of passive
// execution. The result is deterministic, lies in [0,1], and never increases
// as the spread widens. An undefined spread returns the neutral 0.5.
func MakerProbability(relSpread float64, curve MakerCurve) float64 {
	if math.IsNaN(relSpread) {
		return 0.5
	}
	p := 1 / (1 + math.Exp(curve.Steepness*(relSpread-curve.Midpoint)))
	return math.Max(0, math.Min(1, p))
}
