package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tradesim/config"
	"tradesim/internal/metrics"
	"tradesim/logger"
	"tradesim/models"
	"tradesim/session"
)

type fakeController struct {
	mu      sync.Mutex
	started []models.SimulationConfig
	stopped int
	result  models.ResultSnapshot
	err     error
}

func (f *fakeController) Start(_ context.Context, sim models.SimulationConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, sim)
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeController) LatestResult() models.ResultSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

func (f *fakeController) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := session.Status{Active: len(f.started) > f.stopped}
	if n := len(f.started); n > 0 {
		st.Config = f.started[n-1]
	}
	return st
}

func newTestServer(t *testing.T, ctrl Controller) (*Server, *gin.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Dashboard.Enabled = true
	cfg.Dashboard.Address = ":9000"
	cfg.Dashboard.MetricsHistory = 10
	cfg.Dashboard.LogHistory = 10

	srv, err := NewServer(cfg, ctrl, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv == nil {
		t.Fatal("expected dashboard server, got nil")
	}
	t.Cleanup(srv.cleanup)

	router, err := srv.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}
	return srv, router
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                               "0.0.0.0:8080",
		"  :9090  ":                      "0.0.0.0:9090",
		"localhost":                      "localhost:8080",
		"0.0.0.0:80":                     "0.0.0.0:80",
		"[::1]:443":                      "[::1]:443",
		"::1":                            "[::1]:8080",
		"*:8080":                         "0.0.0.0:8080",
		"http://10.1.2.3:8080":           "10.1.2.3:8080",
		"https://10.1.2.3":               "10.1.2.3:8080",
		"http://:7070":                   "0.0.0.0:7070",
		"tcp://localhost:5050":           "localhost:5050",
		"https://dashboard.example.com/": "dashboard.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerDisabledReturnsNil(t *testing.T) {
	srv, err := NewServer(config.Default(), &fakeController{}, logger.Logger())
	if err != nil || srv != nil {
		t.Fatalf("disabled dashboard: srv=%v err=%v", srv, err)
	}
	if srv.Address() != "" {
		t.Fatal("nil server should report an empty address")
	}
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
}

func TestStartSessionAppliesDefaults(t *testing.T) {
	ctrl := &fakeController{}
	_, router := newTestServer(t, ctrl)

	rec := serve(router, http.MethodPost, "/api/session", `{"symbol":"ETH-USDT-SWAP","quantity_usd":250,"fee_tier":"VIP2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(ctrl.started) != 1 {
		t.Fatalf("expected one start, got %d", len(ctrl.started))
	}
	sim := ctrl.started[0]
	if sim.Symbol != "ETH-USDT-SWAP" || sim.QuantityUSD != 250 || sim.Volatility != 0.5 {
		t.Fatalf("unexpected simulation: %+v", sim)
	}
	if sim.FeeTier != "VIP2" || sim.FeeRate != 0 {
		t.Fatalf("fee tier must be left for the session to resolve: %+v", sim)
	}

	rec = serve(router, http.MethodPost, "/api/session", "")
	if rec.Code != http.StatusOK || len(ctrl.started) != 2 || ctrl.started[1].Symbol != "BTC-USDT-SWAP" {
		t.Fatalf("empty body should start with defaults: %d %+v", rec.Code, ctrl.started)
	}
}

func TestStartSessionExplicitZeroRateClearsTier(t *testing.T) {
	ctrl := &fakeController{}
	_, router := newTestServer(t, ctrl)

	rec := serve(router, http.MethodPost, "/api/session", `{"fee_tier":"VIP1","fee_rate":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if sim := ctrl.started[0]; sim.FeeRate != 0 || sim.FeeTier != "" {
		t.Fatalf("explicit zero rate must not fall back to a tier: %+v", sim)
	}
}

func TestStartSessionRejectsBadInput(t *testing.T) {
	ctrl := &fakeController{}
	_, router := newTestServer(t, ctrl)

	if rec := serve(router, http.MethodPost, "/api/session", `{"quantity_usd":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json status = %d", rec.Code)
	}

	ctrl.err = errors.New("unsupported symbol")
	rec := serve(router, http.MethodPost, "/api/session", `{"symbol":"DOGE"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "unsupported symbol") {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestStopSession(t *testing.T) {
	ctrl := &fakeController{}
	_, router := newTestServer(t, ctrl)
	serve(router, http.MethodPost, "/api/session", "")

	rec := serve(router, http.MethodDelete, "/api/session", "")
	if rec.Code != http.StatusOK || ctrl.stopped != 1 {
		t.Fatalf("status = %d stopped=%d", rec.Code, ctrl.stopped)
	}
	if !strings.Contains(rec.Body.String(), `"active":false`) {
		t.Fatalf("stop response should report an inactive session: %s", rec.Body.String())
	}
}

func TestResultEndpointRendersInfiniteAsNull(t *testing.T) {
	ctrl := &fakeController{result: models.ResultSnapshot{
		Symbol:           "BTC-USDT-SWAP",
		SlippagePct:      math.Inf(1),
		FeesUSD:          5,
		MakerProbability: 0.4,
		Processed:        3,
		UpdatedAt:        time.Unix(1700000000, 0).UTC(),
	}}
	_, router := newTestServer(t, ctrl)

	rec := serve(router, http.MethodGet, "/api/result", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Result map[string]interface{} `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Result["slippage_pct"] != nil {
		t.Fatalf("slippage_pct = %v, want null", body.Result["slippage_pct"])
	}
	if body.Result["fees_usd"] != 5.0 || body.Result["processed"] != 3.0 {
		t.Fatalf("unexpected result: %+v", body.Result)
	}
}

func TestSymbolsAndFeeTiers(t *testing.T) {
	_, router := newTestServer(t, &fakeController{})

	rec := serve(router, http.MethodGet, "/api/symbols", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "SOL-USDT-SWAP") {
		t.Fatalf("symbols: %d %s", rec.Code, rec.Body.String())
	}
	rec = serve(router, http.MethodGet, "/api/fee-tiers", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "VIP0") {
		t.Fatalf("fee tiers: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpointEmitsStoredMetrics(t *testing.T) {
	srv, router := newTestServer(t, &fakeController{})

	metrics.EmitResult(logger.Logger(), models.ResultSnapshot{Symbol: "BTC-USDT-SWAP", NetCostUSD: math.Inf(1), FeesUSD: 5})

	rec := serve(router, http.MethodGet, "/api/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d body=%s", rec.Code, rec.Body.String())
	}
	if len(srv.metricStore.snapshot()) == 0 {
		t.Fatal("metrics store empty")
	}

	rec = serve(router, http.MethodGet, "/api/metrics?name=fees_usd&symbol=BTC-USDT-SWAP", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"value":5`) {
		t.Fatalf("latest fees_usd: %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(router, http.MethodGet, "/api/metrics?name=fees_usd&symbol=ETH-USDT-SWAP", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing symbol status = %d", rec.Code)
	}
}

func TestLogsEndpointCapturesWarnings(t *testing.T) {
	srv, router := newTestServer(t, &fakeController{})
	srv.log.WithComponent("feed").Warn("connection lost")

	rec := serve(router, http.MethodGet, "/api/logs", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "connection lost") {
		t.Fatalf("logs: %d %s", rec.Code, rec.Body.String())
	}
}

func TestPrometheusRouteMounted(t *testing.T) {
	metrics.Init()
	_, router := newTestServer(t, &fakeController{})
	rec := serve(router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "tradesim_feed_messages_total") {
		t.Fatalf("/metrics: %d", rec.Code)
	}
}
