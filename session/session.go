package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tradesim/config"
	"tradesim/internal/channel"
	"tradesim/internal/symbols"
	"tradesim/logger"
	"tradesim/models"
	"tradesim/processor"
	"tradesim/reader/okx"
)

// ErrUnsupportedSymbol is returned by Start for symbols outside symbols.supported.
var ErrUnsupportedSymbol = errors.New("unsupported symbol")

// Feed is the part of okx.FeedClient the session drives.
type Feed interface {
	Start(ctx context.Context) error
	Stop()
	State() okx.State
	Reconnects() int64
}

type FeedFactory func(cfg config.FeedConfig, symbol string, out okx.Sink) Feed

type Option func(*Session)

// WithFeedFactory replaces the websocket feed, mainly for tests.
func WithFeedFactory(f FeedFactory) Option {
	return func(s *Session) {
		s.newFeed = f
	}
}

func defaultFeedFactory(cfg config.FeedConfig, symbol string, out okx.Sink) Feed {
	return okx.NewFeedClient(cfg, symbol, out)
}

// Status describes the running session for the control surface.
type Status struct {
	ID         string                  `json:"id"`
	Active     bool                    `json:"active"`
	Config     models.SimulationConfig `json:"config"`
	FeedState  string                  `json:"feed_state"`
	Reconnects int64                   `json:"reconnects"`
	Queue      channel.HandoffStats    `json:"queue"`
	StartedAt  time.Time               `json:"started_at"`
}

// Session owns one feed, its hand-off queue and the latest cost result.
// The feed goroutine only enqueues; folding happens on the caller of
// LatestResult.
type Session struct {
	cfg     *config.Config
	engine  *processor.Engine
	newFeed FeedFactory
	log     *logger.Log

	// processing is held while folding and for a whole start or stop; mu
	// only guards the fields below and is never held across feed.Stop.
	// Lock order: processing, then mu.
	processing sync.Mutex
	mu         sync.Mutex
	active     bool
	id         string
	sim        models.SimulationConfig
	feed       Feed
	queue      *channel.Handoff
	startedAt  time.Time

	result atomic.Pointer[models.ResultSnapshot]
}

func New(cfg *config.Config, opts ...Option) *Session {
	s := &Session{
		cfg:     cfg,
		engine:  processor.NewEngine(cfg.Engine),
		newFeed: defaultFeedFactory,
		log:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	def := models.DefaultResult()
	s.result.Store(&def)
	return s
}

// DefaultSimulation builds the simulation parameters from the session section
// of the config.
func DefaultSimulation(cfg *config.Config) models.SimulationConfig {
	sim := models.SimulationConfig{
		Symbol:      cfg.Session.Symbol,
		QuantityUSD: cfg.Session.QuantityUSD,
		Volatility:  cfg.Session.Volatility,
		FeeRate:     cfg.Session.FeeRate,
		FeeTier:     cfg.Session.FeeTier,
	}
	if sim.Symbol == "" {
		sim.Symbol = cfg.Symbols.Default
	}
	if sim.FeeRate == 0 && sim.FeeTier == "" {
		sim.FeeTier = cfg.Fees.DefaultTier
	}
	return sim
}

// Start validates sim, stops any running feed, resets the result to its
// defaults and connects a new feed for sim.Symbol. Only configuration errors
// are returned; connection problems are retried by the feed.
func (s *Session) Start(ctx context.Context, sim models.SimulationConfig) error {
	sim, err := s.resolve(sim)
	if err != nil {
		return err
	}

	s.processing.Lock()
	defer s.processing.Unlock()
	s.stopFeed()

	queue := channel.NewHandoff(s.cfg.Queue.Capacity)
	feed := s.newFeed(s.cfg.Feed, sim.Symbol, queue)

	def := models.DefaultResult()
	def.Symbol = sim.Symbol
	s.result.Store(&def)

	if err := feed.Start(ctx); err != nil {
		return fmt.Errorf("start feed for %s: %w", sim.Symbol, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.id = uuid.NewString()
	s.sim = sim
	s.feed = feed
	s.queue = queue
	s.startedAt = time.Now()

	s.log.WithComponent("session").WithFields(logger.Fields{
		"session_id":   s.id,
		"symbol":       sim.Symbol,
		"quantity_usd": sim.QuantityUSD,
		"volatility":   sim.Volatility,
		"fee_rate":     sim.FeeRate,
		"fee_tier":     sim.FeeTier,
	}).Info("simulation session started")
	return nil
}

func (s *Session) resolve(sim models.SimulationConfig) (models.SimulationConfig, error) {
	if sim.Symbol == "" {
		sim.Symbol = s.cfg.Symbols.Default
	}
	if !s.cfg.Symbols.IsSupported(sim.Symbol) {
		sim.Symbol = symbols.ToOKXSwap(sim.Symbol)
	}
	if !s.cfg.Symbols.IsSupported(sim.Symbol) {
		return sim, fmt.Errorf("%w: %s", ErrUnsupportedSymbol, sim.Symbol)
	}
	// a tier is only consulted when no rate was given; an empty tier keeps
	// FeeRate as is, zero included
	if sim.FeeTier != "" && sim.FeeRate == 0 {
		rate, err := s.cfg.Fees.TakerRate(sim.FeeTier)
		if err != nil {
			return sim, fmt.Errorf("resolve fee rate: %w", err)
		}
		sim.FeeRate = rate
	}
	if err := sim.Validate(); err != nil {
		return sim, fmt.Errorf("invalid simulation config: %w", err)
	}
	return sim, nil
}

// Stop halts the feed. The last published result stays readable and calling
// Stop on an inactive session is a no-op.
func (s *Session) Stop() {
	s.processing.Lock()
	defer s.processing.Unlock()
	s.stopFeed()
}

// stopFeed marks the session inactive under mu and stops the feed after
// releasing it, so readers of Status are not held for the feed's stop timeout.
// The caller holds processing.
func (s *Session) stopFeed() {
	s.mu.Lock()
	feed := s.detachLocked()
	s.mu.Unlock()
	if feed != nil {
		feed.Stop()
	}
}

func (s *Session) detachLocked() Feed {
	if !s.active {
		return nil
	}
	s.active = false

	stats := s.queue.Stats()
	s.log.WithComponent("session").WithFields(logger.Fields{
		"session_id": s.id,
		"symbol":     s.sim.Symbol,
		"enqueued":   stats.Enqueued,
		"dropped":    stats.Dropped,
		"discarded":  s.queue.Len(),
	}).Info("simulation session stopped")
	return s.feed
}

// LatestResult folds every queued snapshot in arrival order and returns a copy
// of the newest result. Snapshots that fail to fold are logged and skipped.
func (s *Session) LatestResult() models.ResultSnapshot {
	s.processing.Lock()
	defer s.processing.Unlock()

	s.mu.Lock()
	active, queue, sim, id := s.active, s.queue, s.sim, s.id
	s.mu.Unlock()

	current := *s.result.Load()
	if !active {
		return current
	}

	batch := queue.DrainAll()
	if len(batch) == 0 {
		return current
	}

	start := time.Now()
	applied := 0
	for _, book := range batch {
		next, err := s.engine.Fold(book, sim, current)
		if err != nil {
			logger.IncrementFold(false)
			s.log.WithComponent("cost_engine").WithFields(logger.Fields{
				"session_id": id,
				"symbol":     book.Symbol,
			}).WithError(err).Warn("skipping snapshot")
			continue
		}
		logger.IncrementFold(true)
		current = next
		applied++
	}

	if applied > 0 {
		published := current
		s.result.Store(&published)
	}
	logger.LogPerformanceEntry(s.log.WithComponent("session"), "session", "fold_batch", time.Since(start), logger.Fields{
		"snapshots": len(batch),
		"applied":   applied,
	})
	return current
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Config returns the parameters of the current or most recent session.
func (s *Session) Config() models.SimulationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ID:        s.id,
		Active:    s.active,
		Config:    s.sim,
		FeedState: okx.Disconnected.String(),
		StartedAt: s.startedAt,
	}
	if s.feed != nil {
		st.Reconnects = s.feed.Reconnects()
		if s.active {
			st.FeedState = s.feed.State().String()
		}
	}
	if s.queue != nil {
		st.Queue = s.queue.Stats()
	}
	return st
}
