package okx

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"tradesim/config"
	"tradesim/logger"
	"tradesim/models"
)

// Sink receives decoded snapshots. It must not block.
type Sink interface {
	Enqueue(models.BookSnapshot) bool
}

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
	Errored
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Errored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FeedClient streams L2 snapshots for one symbol from the relay websocket and
// hands every decoded snapshot to its sink. Connection loss is retried after
// a fixed delay until Stop is called or the start context ends.
type FeedClient struct {
	cfg     config.FeedConfig
	symbol  string
	url     string
	out     Sink
	log     *logger.Log
	limiter *rate.Limiter

	state      atomic.Int32
	reconnects atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	conn    *websocket.Conn
	done    chan struct{}
}

func NewFeedClient(cfg config.FeedConfig, symbol string, out Sink) *FeedClient {
	cfg = withFeedDefaults(cfg)

	limit := rate.Inf
	if cfg.DecodeWarnPerSecond > 0 {
		limit = rate.Limit(cfg.DecodeWarnPerSecond)
	}
	burst := cfg.DecodeWarnBurst
	if burst <= 0 {
		burst = 1
	}

	return &FeedClient{
		cfg:     cfg,
		symbol:  symbol,
		url:     strings.TrimRight(cfg.URL, "/") + "/" + symbol,
		out:     out,
		log:     logger.GetLogger(),
		limiter: rate.NewLimiter(limit, burst),
	}
}

func withFeedDefaults(cfg config.FeedConfig) config.FeedConfig {
	def := config.Default().Feed
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	return cfg
}

// Start launches the stream goroutine and returns immediately.
func (c *FeedClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("feed client for %s already running", c.symbol)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})

	c.log.WithComponent("okx_feed").WithFields(logger.Fields{
		"symbol": c.symbol,
		"url":    c.url,
	}).Info("starting feed client")

	go c.stream(runCtx, c.done)
	return nil
}

// Stop closes the connection and waits up to the configured stop timeout for
// the stream goroutine to exit. Calling Stop more than once is harmless.
func (c *FeedClient) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	conn := c.conn
	c.conn = nil
	done := c.done
	c.mu.Unlock()

	log := c.log.WithComponent("okx_feed").WithFields(logger.Fields{"symbol": c.symbol})
	c.setState(Closing)

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}

	select {
	case <-done:
		log.Info("feed client stopped")
	case <-time.After(c.cfg.StopTimeout):
		log.WithFields(logger.Fields{"timeout": c.cfg.StopTimeout.String()}).Warn("feed client did not stop in time")
	}
	c.setState(Disconnected)
}

func (c *FeedClient) State() State {
	return State(c.state.Load())
}

func (c *FeedClient) Reconnects() int64 {
	return c.reconnects.Load()
}

func (c *FeedClient) setState(s State) {
	c.state.Store(int32(s))
}

func (c *FeedClient) stream(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.setState(Disconnected)
	log := c.log.WithComponent("okx_feed").WithFields(logger.Fields{"symbol": c.symbol, "worker": "book_stream"})

	for {
		if ctx.Err() != nil {
			return
		}

		c.setState(Connecting)
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.setState(Errored)
			log.WithError(err).Warn("failed to connect websocket, retrying")
		} else {
			c.setState(Connected)
			log.Info("websocket connected")
			err = c.read(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			c.setState(Errored)
			log.WithError(err).Warn("websocket read error, reconnecting")
		}

		if !c.waitReconnect(ctx) {
			return
		}
		c.reconnects.Add(1)
		logger.IncrementReconnect()
	}
}

func (c *FeedClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		ReadBufferSize:   c.cfg.ReadBufferSize,
	}
	header := http.Header{}
	if c.cfg.UserAgent != "" {
		header.Set("User-Agent", c.cfg.UserAgent)
	}

	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return nil, ctx.Err()
	}
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// read pumps frames until the connection fails. A missing pong lets the read
// deadline expire, which surfaces here as an error.
func (c *FeedClient) read(ctx context.Context, conn *websocket.Conn) error {
	deadline := c.cfg.PingInterval + c.cfg.PongTimeout
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	stop := make(chan struct{})
	defer func() {
		close(stop)
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
	}()
	go c.keepAlive(ctx, conn, stop)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		receivedAt := time.Now()
		_ = conn.SetReadDeadline(receivedAt.Add(deadline))
		logger.IncrementFeedMessage(len(payload))

		snap, err := Decode(payload, c.symbol, receivedAt)
		if err != nil {
			logger.IncrementDecodeError()
			if c.limiter.Allow() {
				c.log.WithComponent("okx_feed").WithFields(logger.Fields{
					"symbol": c.symbol,
					"size":   len(payload),
				}).WithError(err).Warn("dropping undecodable message")
			}
			continue
		}
		c.out.Enqueue(snap)
		logger.RecordChannelMessage("okx_handoff", len(payload))
	}
}

func (c *FeedClient) keepAlive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.PongTimeout)); err != nil {
				c.log.WithComponent("okx_feed").WithError(err).Debug("ping failed")
				conn.Close()
				return
			}
		}
	}
}

func (c *FeedClient) waitReconnect(ctx context.Context) bool {
	timer := time.NewTimer(c.cfg.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
