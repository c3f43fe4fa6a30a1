package processor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"tradesim/config"
	"tradesim/logger"
	"tradesim/models"
)

var (
	ErrEmptyBook       = errors.New("order book side is empty")
	ErrInvalidQuantity = errors.New("order quantity must be positive")
	ErrZeroLiquidity   = errors.New("aggregate liquidity is zero")
	ErrInvalidPrice    = errors.New("top of book price must be positive")
)

// Engine folds book snapshots into cost estimates for one simulation config.
// It holds no per-session state; the previous result is passed in.
type Engine struct {
	impact          ImpactParams
	curve           MakerCurve
	liquidityLevels int
	maxDepth        int
	log             *logger.Log
	now             func() time.Time
}

func NewEngine(cfg config.EngineConfig) *Engine {
	return &Engine{
		impact: ImpactParams{
			Permanent:   cfg.PermanentImpact,
			Temporary:   cfg.TemporaryImpact,
			TradingDays: cfg.TradingDays,
		},
		curve:           MakerCurve{Steepness: cfg.MakerCurve.Steepness, Midpoint: cfg.MakerCurve.Midpoint},
		liquidityLevels: cfg.LiquidityLevels,
		maxDepth:        cfg.MaxDepthLevels,
		log:             logger.GetLogger(),
		now:             time.Now,
	}
}

// Fold computes a fresh ResultSnapshot from book. Degenerate input returns
// one of the package's sentinel errors and leaves prev as the latest result.
func (e *Engine) Fold(book models.BookSnapshot, sim models.SimulationConfig, prev models.ResultSnapshot) (models.ResultSnapshot, error) {
	start := e.now()

	if !(sim.QuantityUSD > 0) || math.IsInf(sim.QuantityUSD, 0) {
		return prev, fmt.Errorf("%w: %v", ErrInvalidQuantity, sim.QuantityUSD)
	}

	bids := truncate(book.Bids, e.maxDepth)
	asks := truncate(book.Asks, e.maxDepth)
	if len(bids) == 0 || len(asks) == 0 {
		return prev, fmt.Errorf("%w: %s bids=%d asks=%d", ErrEmptyBook, book.Symbol, len(bids), len(asks))
	}

	bestBid, bestAsk := bids[0].Price, asks[0].Price
	if bestBid <= 0 || bestAsk <= 0 {
		return prev, fmt.Errorf("%w: %s bid=%v ask=%v", ErrInvalidPrice, book.Symbol, bestBid, bestAsk)
	}
	if bestBid >= bestAsk {
		e.log.WithComponent("cost_engine").WithFields(logger.Fields{
			"symbol":   book.Symbol,
			"best_bid": bestBid,
			"best_ask": bestAsk,
		}).Warn("crossed book")
	}

	liquidity := AggregateLiquidity(bids, e.liquidityLevels)
	if liquidity <= 0 {
		return prev, fmt.Errorf("%w: %s top %d bid levels", ErrZeroLiquidity, book.Symbol, e.liquidityLevels)
	}

	mid := MidPrice(bestBid, bestAsk)
	baseQty := sim.QuantityUSD / mid

	slippage := (Slippage(asks, baseQty, Buy) + Slippage(bids, baseQty, Sell)) / 2
	fees := Fees(sim.QuantityUSD, mid, sim.FeeRate)
	impact := MarketImpact(baseQty, sim.Volatility, liquidity, e.impact)
	maker := MakerProbability(RelativeSpread(bestBid, bestAsk), e.curve)
	net := fees + slippage/100*sim.QuantityUSD*mid + impact*mid

	return models.ResultSnapshot{
		Symbol:                   book.Symbol,
		SlippagePct:              slippage,
		FeesUSD:                  fees,
		MarketImpactPct:          impact * 100,
		NetCostUSD:               net,
		MakerProbability:         maker,
		ProcessingLatencySeconds: e.now().Sub(start).Seconds(),
		BookDepthLevels:          len(bids) + len(asks),
		Processed:                prev.Processed + 1,
		UpdatedAt:                book.ReceivedAt,
	}, nil
}

func truncate(levels []models.PriceLevel, depth int) []models.PriceLevel {
	if depth > 0 && len(levels) > depth {
		return levels[:depth]
	}
	return levels
}
