package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pulsewave/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func TestMarketService_GetCurrentPriceCacheHit(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	snap := &domain.PriceSnapshot{Symbol: "BTC", PriceUSD: 123.45}
	data, _ := json.Marshal(snap)
	_ = fake.Set(context.Background(), "price:BTC", data, 0)

	provider := &mockProvider{}
	svc := NewMarketService(testTracer, provider, &mockCandleRepo{}, fake)

	got, err := svc.GetCurrentPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PriceUSD != snap.PriceUSD {
		t.Fatalf("expected %.2f, got %.2f", snap.PriceUSD, got.PriceUSD)
	}
	if provider.fetchPriceCalls != 0 {
		t.Fatalf("cache hit must not hit the provider, got %d calls", provider.fetchPriceCalls)
	}
}

func TestMarketService_GetCurrentPriceFetchesOnMiss(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		price: &domain.PriceSnapshot{Symbol: "BTC", PriceUSD: 42},
	}
	fake := newFakeRedis()
	svc := NewMarketService(testTracer, provider, &mockCandleRepo{}, fake)

	got, err := svc.GetCurrentPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Symbol != "BTC" || got.PriceUSD != 42 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if provider.fetchPriceCalls != 1 {
		t.Fatalf("expected FetchPrice to be called once, got %d", provider.fetchPriceCalls)
	}
	if _, ok := fake.data["price:BTC"]; !ok {
		t.Fatalf("price not cached")
	}
}

func TestMarketService_GetCurrentPriceUnsupported(t *testing.T) {
	t.Parallel()

	svc := NewMarketService(testTracer, &mockProvider{}, &mockCandleRepo{}, nil)
	if _, err := svc.GetCurrentPrice(context.Background(), "FAKE"); err == nil {
		t.Fatal("expected error for unsupported symbol")
	}
}

func TestMarketService_GetCandlesFromStore(t *testing.T) {
	t.Parallel()

	repo := &mockCandleRepo{
		getResp: []domain.Candle{{Symbol: "BTC", Interval: "1h"}},
	}
	provider := &mockProvider{}
	svc := NewMarketService(testTracer, provider, repo, nil)

	candles, err := svc.GetCandles(context.Background(), "BTC", "1h", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.lastGetSymbol != "BTC" || repo.lastGetInterval != "1h" || repo.lastGetLimit != 5 {
		t.Fatalf("unexpected repo args: %s %s %d", repo.lastGetSymbol, repo.lastGetInterval, repo.lastGetLimit)
	}
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(candles))
	}
	if provider.fetchKlinesCalls != 0 {
		t.Fatalf("stored candles must not trigger a live fetch")
	}
}

func TestMarketService_GetCandlesFallsBackToLiveFetch(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		klines: []domain.Candle{{Symbol: "BTC", Interval: "1h", Close: 100}},
	}
	repo := &mockCandleRepo{}
	svc := NewMarketService(testTracer, provider, repo, nil)

	candles, err := svc.GetCandles(context.Background(), "BTC", "1h", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 1 || candles[0].Close != 100 {
		t.Fatalf("expected live candles, got %+v", candles)
	}
	if provider.fetchKlinesCalls != 1 {
		t.Fatalf("expected one live fetch, got %d", provider.fetchKlinesCalls)
	}
	if repo.upsertCalls != 1 {
		t.Fatalf("live fetch must be persisted, got %d upserts", repo.upsertCalls)
	}
}

func TestMarketService_RefreshCandles(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		klines: []domain.Candle{{Symbol: "ETH", Interval: "4h"}},
	}
	repo := &mockCandleRepo{}
	svc := NewMarketService(testTracer, provider, repo, nil)

	if err := svc.RefreshCandles(context.Background(), "ETH", "4h", 200); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.lastKlinesSymbol != "ETH" || provider.lastKlinesInterval != "4h" || provider.lastKlinesLimit != 200 {
		t.Fatalf("unexpected provider args: %+v", provider)
	}
	if repo.upsertCalls != 1 || len(repo.upsertArg) != 1 {
		t.Fatalf("expected 1 upsert call, got %d", repo.upsertCalls)
	}
}

func TestMarketService_RefreshCandlesProviderError(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{klinesErr: errors.New("boom")}
	repo := &mockCandleRepo{}
	svc := NewMarketService(testTracer, provider, repo, nil)

	if err := svc.RefreshCandles(context.Background(), "BTC", "1h", 100); err == nil {
		t.Fatal("expected provider error to propagate")
	}
	if repo.upsertCalls != 0 {
		t.Fatalf("failed fetch must not upsert")
	}
}

func TestMarketService_SignalCacheRoundTrip(t *testing.T) {
	t.Parallel()

	fake := newFakeRedis()
	svc := NewMarketService(testTracer, &mockProvider{}, &mockCandleRepo{}, fake)

	signal := domain.TradingSignal{
		Direction:  domain.DirectionLong,
		EntryPrice: 100,
		Confidence: 66,
	}
	if err := svc.CacheSignal(context.Background(), "BTC", "1h", signal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.CachedSignal(context.Background(), "BTC", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Direction != domain.DirectionLong || got.Confidence != 66 {
		t.Fatalf("unexpected cached signal: %+v", got)
	}

	miss, err := svc.CachedSignal(context.Background(), "ETH", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if miss != nil {
		t.Fatalf("expected cache miss, got %+v", miss)
	}
}

type mockProvider struct {
	price  *domain.PriceSnapshot
	klines []domain.Candle

	priceErr  error
	klinesErr error

	fetchPriceCalls    int
	fetchKlinesCalls   int
	lastKlinesSymbol   string
	lastKlinesInterval string
	lastKlinesLimit    int
}

func (m *mockProvider) FetchPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	m.fetchPriceCalls++
	if m.priceErr != nil {
		return nil, m.priceErr
	}
	return m.price, nil
}

func (m *mockProvider) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	m.fetchKlinesCalls++
	m.lastKlinesSymbol = symbol
	m.lastKlinesInterval = interval
	m.lastKlinesLimit = limit
	if m.klinesErr != nil {
		return nil, m.klinesErr
	}
	return m.klines, nil
}

type mockCandleRepo struct {
	getResp   []domain.Candle
	rangeResp []domain.Candle
	getErr    error

	lastGetSymbol   string
	lastGetInterval string
	lastGetLimit    int

	upsertArg   []domain.Candle
	upsertErr   error
	upsertCalls int
}

func (m *mockCandleRepo) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	m.lastGetSymbol = symbol
	m.lastGetInterval = interval
	m.lastGetLimit = limit
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getResp, nil
}

func (m *mockCandleRepo) GetCandlesInRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.rangeResp, nil
}

func (m *mockCandleRepo) UpsertCandles(ctx context.Context, candles []domain.Candle) error {
	m.upsertCalls++
	m.upsertArg = candles
	if m.upsertErr != nil {
		return m.upsertErr
	}
	return nil
}

type fakeRedis struct {
	data   map[string][]byte
	setErr error
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte)}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		bytes, _ := json.Marshal(v)
		f.data[key] = bytes
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}
