package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"pulsewave/internal/cache"
	"pulsewave/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const (
	priceCacheTTL  = 90 * time.Second
	signalCacheTTL = 10 * time.Minute
)

// MarketProvider fetches live market data from the exchange.
type MarketProvider interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	FetchPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error)
}

type CandleRepository interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	GetCandlesInRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error)
	UpsertCandles(ctx context.Context, candles []domain.Candle) error
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// MarketService orchestrates candle and price data: exchange fetching,
// Postgres storage, and Redis caching.
type MarketService struct {
	tracer   trace.Tracer
	provider MarketProvider
	repo     CandleRepository
	redis    RedisClient
}

func NewMarketService(
	tracer trace.Tracer,
	provider MarketProvider,
	repo CandleRepository,
	redisClient RedisClient,
) *MarketService {
	return &MarketService{
		tracer:   tracer,
		provider: provider,
		repo:     repo,
		redis:    redisClient,
	}
}

// GetCurrentPrice returns the latest price for a symbol, served from the
// Redis cache when fresh.
func (s *MarketService) GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.get-current-price")
	defer span.End()

	if _, ok := domain.BinancePair[symbol]; !ok {
		return nil, fmt.Errorf("unsupported symbol: %s", symbol)
	}

	if s.redis != nil {
		cached, err := s.getPriceCache(ctx, symbol)
		if err != nil {
			log.Printf("redis cache read error: %v", err)
		}
		if cached != nil {
			return cached, nil
		}
	}

	snap, err := s.provider.FetchPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if err := s.setPriceCache(ctx, snap); err != nil {
			log.Printf("redis cache write error for %s: %v", symbol, err)
		}
	}
	return snap, nil
}

// GetCandles returns the most recent limit candles, oldest first. Postgres
// is the primary source; an empty store falls back to a live fetch that is
// also persisted.
func (s *MarketService) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.get-candles")
	defer span.End()

	candles, err := s.repo.GetCandles(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(candles) > 0 {
		return candles, nil
	}

	candles, err = s.provider.FetchKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertCandles(ctx, candles); err != nil {
		log.Printf("upsert fetched candles for %s/%s: %v", symbol, interval, err)
	}
	return candles, nil
}

// GetCandlesInRange returns stored candles with open times in [from, to].
func (s *MarketService) GetCandlesInRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.get-candles-in-range")
	defer span.End()

	return s.repo.GetCandlesInRange(ctx, symbol, interval, from, to)
}

// RefreshCandles pulls the latest klines for a series and upserts them.
func (s *MarketService) RefreshCandles(ctx context.Context, symbol, interval string, limit int) error {
	ctx, span := s.tracer.Start(ctx, "market-service.refresh-candles")
	defer span.End()

	candles, err := s.provider.FetchKlines(ctx, symbol, interval, limit)
	if err != nil {
		return fmt.Errorf("refresh candles for %s/%s: %w", symbol, interval, err)
	}

	if err := s.repo.UpsertCandles(ctx, candles); err != nil {
		return fmt.Errorf("upsert candles for %s/%s: %w", symbol, interval, err)
	}

	log.Printf("Refreshed %d candles for %s/%s", len(candles), symbol, interval)
	return nil
}

// CacheSignal stores the latest signal for a symbol/interval pair.
func (s *MarketService) CacheSignal(ctx context.Context, symbol, interval string, signal domain.TradingSignal) error {
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(signal)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, cache.SignalKey(symbol, interval), data, signalCacheTTL).Err()
}

// CachedSignal returns the last cached signal, or nil on a cache miss.
func (s *MarketService) CachedSignal(ctx context.Context, symbol, interval string) (*domain.TradingSignal, error) {
	if s.redis == nil {
		return nil, nil
	}
	data, err := s.redis.Get(ctx, cache.SignalKey(symbol, interval)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var signal domain.TradingSignal
	if err := json.Unmarshal(data, &signal); err != nil {
		return nil, err
	}
	return &signal, nil
}

func (s *MarketService) setPriceCache(ctx context.Context, snapshot *domain.PriceSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, cache.PriceKey(snapshot.Symbol), data, priceCacheTTL).Err()
}

func (s *MarketService) getPriceCache(ctx context.Context, symbol string) (*domain.PriceSnapshot, error) {
	data, err := s.redis.Get(ctx, cache.PriceKey(symbol)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snapshot domain.PriceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
