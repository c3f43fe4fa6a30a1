package dashboard

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tradesim/config"
	"tradesim/internal/metrics"
	"tradesim/logger"
	"tradesim/models"
	"tradesim/session"
)

// Controller is the session surface driven over HTTP.
type Controller interface {
	Start(ctx context.Context, sim models.SimulationConfig) error
	Stop()
	LatestResult() models.ResultSnapshot
	Status() session.Status
}

// Server hosts the gin control surface: session start/stop, the latest cost
// result, and monitoring data (metrics, logs, host resources).
type Server struct {
	cfg     config.DashboardConfig
	app     *config.Config
	ctrl    Controller
	log     *logger.Log
	baseCtx context.Context
	prom    bool
	appName string
	started time.Time

	metricStore     *metricStore
	logStore        *logStore
	metricHandler   metrics.MetricHandlerID
	resourceSampler *resourceSampler
	httpServer      *http.Server
}

// NewServer returns nil when the dashboard is disabled.
func NewServer(cfg *config.Config, ctrl Controller, log *logger.Log) (*Server, error) {
	dc := cfg.Dashboard
	if !dc.Enabled {
		return nil, nil
	}
	if ctrl == nil {
		return nil, errors.New("dashboard requires a session controller")
	}

	dc.Address = normalizeAddress(dc.Address)
	if dc.RefreshInterval <= 0 {
		dc.RefreshInterval = 5 * time.Second
	}
	if dc.LogHistory <= 0 {
		dc.LogHistory = defaultHistory
	}
	if dc.MetricsHistory <= 0 {
		dc.MetricsHistory = defaultHistory
	}

	ms := newMetricStore(dc.MetricsHistory)
	ls := newLogStore(dc.LogHistory, logrus.InfoLevel)
	log.AddHook(ls)

	return &Server{
		cfg:             dc,
		app:             cfg,
		ctrl:            ctrl,
		log:             log,
		baseCtx:         context.Background(),
		prom:            cfg.Metrics.Prometheus,
		appName:         cfg.Tradesim.Name,
		started:         time.Now(),
		metricStore:     ms,
		logStore:        ls,
		metricHandler:   metrics.RegisterMetricHandler(ms.handle),
		resourceSampler: newResourceSampler(dc.MetricsHistory, dc.RefreshInterval, "/", log),
	}, nil
}

// Run serves until ctx is cancelled. Sessions started over HTTP live under
// ctx rather than the request context.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	s.baseCtx = ctx
	router, err := s.buildRouter()
	if err != nil {
		return err
	}
	s.resourceSampler.start(ctx)

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	s.logStore.close()
	s.resourceSampler.stop()
}

func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"app": s.appName, "uptime_seconds": time.Since(s.started).Seconds()})
	})

	api := router.Group("/api")
	api.GET("/result", s.handleResult)
	api.POST("/session", s.handleStart)
	api.DELETE("/session", s.handleStop)
	api.GET("/symbols", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"default": s.app.Symbols.Default, "supported": s.app.Symbols.Supported})
	})
	api.GET("/fee-tiers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"default": s.app.Fees.DefaultTier, "tiers": s.app.Fees.Tiers})
	})
	api.GET("/metrics", s.handleMetrics)
	api.GET("/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})
	api.GET("/resources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"resources": s.resourceSampler.snapshot()})
	})

	if s.prom {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return router, nil
}

func (s *Server) handleResult(c *gin.Context) {
	res := s.ctrl.LatestResult()
	c.JSON(http.StatusOK, gin.H{
		"result":  res,
		"session": s.ctrl.Status(),
	})
}

// sessionRequest distinguishes absent fields from zero values so defaults can
// fill the gaps.
type sessionRequest struct {
	Symbol      *string  `json:"symbol"`
	QuantityUSD *float64 `json:"quantity_usd"`
	Volatility  *float64 `json:"volatility"`
	FeeRate     *float64 `json:"fee_rate"`
	FeeTier     *string  `json:"fee_tier"`
}

func (r sessionRequest) apply(sim models.SimulationConfig) models.SimulationConfig {
	if r.Symbol != nil {
		sim.Symbol = strings.TrimSpace(*r.Symbol)
	}
	if r.QuantityUSD != nil {
		sim.QuantityUSD = *r.QuantityUSD
	}
	if r.Volatility != nil {
		sim.Volatility = *r.Volatility
	}
	if r.FeeTier != nil {
		sim.FeeTier = *r.FeeTier
		sim.FeeRate = 0
	}
	// an explicit rate, zero included, always wins over any tier
	if r.FeeRate != nil {
		sim.FeeRate = *r.FeeRate
		sim.FeeTier = ""
	}
	return sim
}

func (s *Server) handleStart(c *gin.Context) {
	var req sessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	sim := req.apply(session.DefaultSimulation(s.app))

	if err := s.ctrl.Start(s.baseCtx, sim); err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("session start rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s.ctrl.Status()})
}

func (s *Server) handleStop(c *gin.Context) {
	s.ctrl.Stop()
	c.JSON(http.StatusOK, gin.H{"session": s.ctrl.Status()})
}

func (s *Server) handleMetrics(c *gin.Context) {
	if name := c.Query("name"); name != "" {
		m, ok := s.metricStore.latest(name, c.Query("symbol"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no samples for " + name})
			return
		}
		c.JSON(http.StatusOK, gin.H{"metric": metricPayload(m)})
		return
	}
	items := s.metricStore.snapshot()
	payload := make([]gin.H, 0, len(items))
	for _, m := range items {
		payload = append(payload, metricPayload(m))
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}

func metricPayload(m metrics.Metric) gin.H {
	return gin.H{
		"timestamp": m.Timestamp.Format(time.RFC3339Nano),
		"component": m.Component,
		"name":      m.Name,
		"value":     jsonSafe(m.Value),
		"type":      m.Type,
		"fields":    m.Fields,
	}
}

// jsonSafe maps non-finite floats to nil; encoding/json rejects them.
func jsonSafe(v interface{}) interface{} {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if parsed.Host != "" {
				addr = parsed.Host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") && len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
		return "0.0.0.0" + addr
	}

	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if !strings.Contains(addr, ":") || net.ParseIP(addr) != nil {
		return net.JoinHostPort(addr, "8080")
	}
	return addr
}
