package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulsewave/internal/backtest"
	"pulsewave/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("handler-test")

type stubMarket struct {
	snapshot *domain.PriceSnapshot
	candles  []domain.Candle
	err      error

	lastSymbol   string
	lastInterval string
	lastLimit    int
}

func (s *stubMarket) GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	s.lastSymbol = symbol
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

func (s *stubMarket) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	s.lastSymbol = symbol
	s.lastInterval = interval
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.candles, nil
}

type stubAnalyzer struct {
	levels    domain.SRResult
	mtfLevels map[string]domain.SRResult
	regime    domain.RegimeResult
	signal    domain.TradingSignal
	result    domain.BacktestResult
	err       error

	lastTimeframes []string
	lastCfg        backtest.Config
	lastFrom       time.Time
	lastTo         time.Time
}

func (s *stubAnalyzer) Levels(ctx context.Context, symbol, interval string) (domain.SRResult, error) {
	if s.err != nil {
		return domain.SRResult{}, s.err
	}
	return s.levels, nil
}

func (s *stubAnalyzer) MultiTimeframeLevels(ctx context.Context, symbol string, timeframes []string) (map[string]domain.SRResult, error) {
	s.lastTimeframes = timeframes
	if s.err != nil {
		return nil, s.err
	}
	return s.mtfLevels, nil
}

func (s *stubAnalyzer) Regime(ctx context.Context, symbol, interval string) (domain.RegimeResult, error) {
	if s.err != nil {
		return domain.RegimeResult{}, s.err
	}
	return s.regime, nil
}

func (s *stubAnalyzer) LatestSignal(ctx context.Context, symbol string, timeframes []string) (domain.TradingSignal, error) {
	s.lastTimeframes = timeframes
	if s.err != nil {
		return domain.TradingSignal{}, s.err
	}
	return s.signal, nil
}

func (s *stubAnalyzer) Backtest(ctx context.Context, symbol, interval string, from, to time.Time, cfg backtest.Config) (domain.BacktestResult, error) {
	s.lastFrom = from
	s.lastTo = to
	s.lastCfg = cfg
	if s.err != nil {
		return domain.BacktestResult{}, s.err
	}
	return s.result, nil
}

func newTestRouter(market MarketData, analysis Analyzer, apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(testTracer, market, analysis).RegisterRoutes(r, apiKey)
	return r
}

func TestHealth(t *testing.T) {
	r := newTestRouter(&stubMarket{}, &stubAnalyzer{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if body != "{\"status\":\"healthy\"}\n" && body != "{\"status\":\"healthy\"}" {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestGetPrice(t *testing.T) {
	market := &stubMarket{snapshot: &domain.PriceSnapshot{Symbol: "BTC", PriceUSD: 50000}}
	r := newTestRouter(market, &stubAnalyzer{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/prices/btc", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if market.lastSymbol != "BTC" {
		t.Fatalf("expected symbol upcased to BTC, got %s", market.lastSymbol)
	}

	var snap domain.PriceSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if snap.PriceUSD != 50000 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestGetPriceUnsupportedSymbol(t *testing.T) {
	r := newTestRouter(&stubMarket{}, &stubAnalyzer{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/prices/DOGE2THEMOON", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetCandlesDefaultsAndLimit(t *testing.T) {
	market := &stubMarket{candles: []domain.Candle{{Symbol: "ETH", Interval: "1h"}}}
	r := newTestRouter(market, &stubAnalyzer{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/candles/ETH?limit=250", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if market.lastInterval != "1h" || market.lastLimit != 250 {
		t.Fatalf("unexpected args: interval=%s limit=%d", market.lastInterval, market.lastLimit)
	}
}

func TestGetCandlesRejectsBadInterval(t *testing.T) {
	r := newTestRouter(&stubMarket{}, &stubAnalyzer{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/candles/BTC?interval=7m", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetLevelsSingleTimeframe(t *testing.T) {
	analysis := &stubAnalyzer{levels: domain.SRResult{Timeframe: "4h", PivotCount: 12}}
	r := newTestRouter(&stubMarket{}, analysis, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/levels/BTC?interval=4h", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Symbol string          `json:"symbol"`
		Levels domain.SRResult `json:"levels"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if body.Symbol != "BTC" || body.Levels.PivotCount != 12 {
		t.Fatalf("unexpected payload: %+v", body)
	}
}

func TestGetLevelsMultiTimeframe(t *testing.T) {
	analysis := &stubAnalyzer{mtfLevels: map[string]domain.SRResult{
		"1h": {Timeframe: "1h"},
		"4h": {Timeframe: "4h"},
	}}
	r := newTestRouter(&stubMarket{}, analysis, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/levels/BTC?timeframes=1h,4h", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(analysis.lastTimeframes) != 2 || analysis.lastTimeframes[0] != "1h" {
		t.Fatalf("unexpected timeframes: %v", analysis.lastTimeframes)
	}
}

func TestGetRegime(t *testing.T) {
	analysis := &stubAnalyzer{regime: domain.RegimeResult{Regime: domain.RegimeTrendingUp, Confidence: 80}}
	r := newTestRouter(&stubMarket{}, analysis, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/regime/SOL", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Regime domain.RegimeResult `json:"regime"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if body.Regime.Regime != domain.RegimeTrendingUp {
		t.Fatalf("unexpected regime: %+v", body.Regime)
	}
}

func TestGetSignal(t *testing.T) {
	analysis := &stubAnalyzer{signal: domain.TradingSignal{
		Direction:  domain.DirectionLong,
		EntryPrice: 42000,
		Confidence: 71,
	}}
	r := newTestRouter(&stubMarket{}, analysis, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/signal/BTC?timeframes=4h,1d", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(analysis.lastTimeframes) != 2 || analysis.lastTimeframes[0] != "4h" {
		t.Fatalf("unexpected timeframes: %v", analysis.lastTimeframes)
	}

	var signal domain.TradingSignal
	if err := json.Unmarshal(w.Body.Bytes(), &signal); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if signal.Direction != domain.DirectionLong || signal.EntryPrice != 42000 {
		t.Fatalf("unexpected signal: %+v", signal)
	}
}

func TestRunBacktest(t *testing.T) {
	analysis := &stubAnalyzer{result: domain.BacktestResult{TotalTrades: 7, WinRate: 57.1}}
	r := newTestRouter(&stubMarket{}, analysis, "")

	payload := map[string]interface{}{
		"symbol":          "eth",
		"interval":        "4h",
		"sizing_method":   "kelly",
		"initial_capital": 25000,
		"from":            "2024-01-01T00:00:00Z",
	}
	body, _ := json.Marshal(payload)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if analysis.lastCfg.Sizing != domain.SizingKelly {
		t.Fatalf("expected kelly sizing, got %s", analysis.lastCfg.Sizing)
	}
	if analysis.lastCfg.InitialCapital != 25000 {
		t.Fatalf("expected capital override, got %f", analysis.lastCfg.InitialCapital)
	}
	if analysis.lastFrom.IsZero() || !analysis.lastTo.IsZero() {
		t.Fatalf("unexpected range: from=%v to=%v", analysis.lastFrom, analysis.lastTo)
	}

	var result domain.BacktestResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if result.TotalTrades != 7 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunBacktestRejectsBadSizing(t *testing.T) {
	r := newTestRouter(&stubMarket{}, &stubAnalyzer{}, "")

	body, _ := json.Marshal(map[string]string{"symbol": "BTC", "sizing_method": "martingale"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRunBacktestInsufficientData(t *testing.T) {
	analysis := &stubAnalyzer{err: backtest.ErrInsufficientData}
	r := newTestRouter(&stubMarket{}, analysis, "")

	body, _ := json.Marshal(map[string]string{"symbol": "BTC"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	market := &stubMarket{snapshot: &domain.PriceSnapshot{Symbol: "BTC"}}
	r := newTestRouter(market, &stubAnalyzer{}, "sekret")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/prices/BTC", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/prices/BTC", nil)
	req.Header.Set("X-API-Key", "wrong")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with wrong key, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/prices/BTC", nil)
	req.Header.Set("X-API-Key", "sekret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with correct key, got %d", w.Code)
	}

	// health stays open
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", w.Code)
	}
}

func TestServiceErrorsReturn500(t *testing.T) {
	market := &stubMarket{err: errors.New("provider down")}
	r := newTestRouter(market, &stubAnalyzer{}, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/prices/BTC", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
