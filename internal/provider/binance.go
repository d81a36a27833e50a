package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"pulsewave/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const binanceBaseURL = "https://api.binance.com/api/v3"

// BinanceProvider fetches OHLCV klines and 24h ticker data from the Binance
// public spot API.
type BinanceProvider struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewBinanceProvider creates a provider with built-in rate limiting, well
// under Binance's public request-weight budget.
func NewBinanceProvider(tracer trace.Tracer) *BinanceProvider {
	return &BinanceProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: binanceBaseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(10, 200*time.Millisecond),
	}
}

// FetchKlines returns up to limit candles for a symbol and interval, oldest
// first. The series is validated before being returned.
func (p *BinanceProvider) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	_, span := p.tracer.Start(ctx, "binance.fetch-klines")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", symbol),
		attribute.String("interval", interval),
		attribute.Int("limit", limit),
	)

	pair, ok := domain.BinancePair[symbol]
	if !ok {
		return nil, fmt.Errorf("unsupported symbol: %s", symbol)
	}
	if !domain.IsSupportedInterval(interval) {
		return nil, fmt.Errorf("unsupported interval: %s", interval)
	}
	if limit <= 0 || limit > 1000 {
		limit = 500
	}

	url := fmt.Sprintf("%s/klines?symbol=%s&interval=%s&limit=%d", p.baseURL, pair, interval, limit)

	body, err := p.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s/%s: %w", symbol, interval, err)
	}

	candles, err := parseKlines(symbol, interval, body)
	if err != nil {
		return nil, fmt.Errorf("parse klines for %s/%s: %w", symbol, interval, err)
	}
	if err := domain.ValidateSeries(candles); err != nil {
		return nil, fmt.Errorf("invalid klines for %s/%s: %w", symbol, interval, err)
	}
	return candles, nil
}

// FetchPrice returns the latest 24h ticker snapshot for a symbol.
func (p *BinanceProvider) FetchPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	_, span := p.tracer.Start(ctx, "binance.fetch-price")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	pair, ok := domain.BinancePair[symbol]
	if !ok {
		return nil, fmt.Errorf("unsupported symbol: %s", symbol)
	}

	url := fmt.Sprintf("%s/ticker/24hr?symbol=%s", p.baseURL, pair)

	body, err := p.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker for %s: %w", symbol, err)
	}

	var raw struct {
		LastPrice          string `json:"lastPrice"`
		QuoteVolume        string `json:"quoteVolume"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse ticker for %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(raw.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parse ticker price for %s: %w", symbol, err)
	}
	volume, _ := strconv.ParseFloat(raw.QuoteVolume, 64)
	change, _ := strconv.ParseFloat(raw.PriceChangePercent, 64)

	return &domain.PriceSnapshot{
		Symbol:          symbol,
		PriceUSD:        price,
		Volume24h:       volume,
		Change24hPct:    change,
		LastUpdatedUnix: time.Now().Unix(),
	}, nil
}

func (p *BinanceProvider) doRequest(ctx context.Context, url string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("binance API error %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

// parseKlines decodes Binance's kline arrays:
// [openTime, open, high, low, close, volume, closeTime, ...], with prices
// and volumes as decimal strings.
func parseKlines(symbol, interval string, body []byte) ([]domain.Candle, error) {
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(raw))
	for i, k := range raw {
		if len(k) < 6 {
			return nil, fmt.Errorf("kline %d has %d fields", i, len(k))
		}

		var openTimeMs int64
		if err := json.Unmarshal(k[0], &openTimeMs); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}

		fields := make([]float64, 5)
		for j := 1; j <= 5; j++ {
			var s string
			if err := json.Unmarshal(k[j], &s); err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j, err)
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j, err)
			}
			fields[j-1] = f
		}

		candles = append(candles, domain.Candle{
			Symbol:   symbol,
			Interval: interval,
			OpenTime: time.UnixMilli(openTimeMs).UTC(),
			Open:     fields[0],
			High:     fields[1],
			Low:      fields[2],
			Close:    fields[3],
			Volume:   fields[4],
		})
	}

	return candles, nil
}
