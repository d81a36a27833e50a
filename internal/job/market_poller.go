package job

import (
	"context"
	"log"
	"time"

	"pulsewave/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// Candle refresh depth per tier. Short intervals move fast and need less
// lookback per poll; long intervals backfill more bars per visit.
const (
	shortRefreshBars = 100
	longRefreshBars  = 200
)

var shortIntervals = []string{"5m", "15m", "1h"}
var longIntervals = []string{"4h", "1d"}

// MarketRefresher is the slice of the market service the poller drives.
type MarketRefresher interface {
	RefreshCandles(ctx context.Context, symbol, interval string, limit int) error
	GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error)
}

// MarketPoller runs background goroutines that keep prices and candles fresh.
type MarketPoller struct {
	tracer       trace.Tracer
	market       MarketRefresher
	pollInterval time.Duration
}

func NewMarketPoller(tracer trace.Tracer, market MarketRefresher, pollIntervalSecs int) *MarketPoller {
	return &MarketPoller{
		tracer:       tracer,
		market:       market,
		pollInterval: time.Duration(pollIntervalSecs) * time.Second,
	}
}

// Start launches background polling goroutines. Blocks until ctx is cancelled.
func (p *MarketPoller) Start(ctx context.Context) {
	log.Println("Market poller starting...")

	// Tier 1: warm the price cache every pollInterval (default 60s)
	go p.pollLoop(ctx, "prices", p.pollInterval, p.warmPrices)

	// Tier 2: short candles (5m, 15m, 1h), 2 coins every 5 minutes, round-robin
	go p.pollShortCandles(ctx)

	// Tier 3: long candles (4h, 1d), 1 coin every 30 minutes, round-robin
	go p.pollLongCandles(ctx)

	<-ctx.Done()
	log.Println("Market poller stopped")
}

func (p *MarketPoller) pollLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	// Run immediately on start
	if err := fn(ctx); err != nil {
		log.Printf("poller %s initial run error: %v", name, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Printf("poller %s error: %v", name, err)
			}
		}
	}
}

func (p *MarketPoller) warmPrices(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "market-poller.warm-prices")
	defer span.End()

	for _, symbol := range domain.SupportedSymbols {
		if _, err := p.market.GetCurrentPrice(ctx, symbol); err != nil {
			log.Printf("price refresh error for %s: %v", symbol, err)
		}
	}
	return nil
}

func (p *MarketPoller) pollShortCandles(ctx context.Context) {
	// Stagger startup so the tiers don't hit the exchange at once
	select {
	case <-ctx.Done():
		return
	case <-time.After(10 * time.Second):
	}

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	coinIndex := 0
	coinsPerTick := 2

	p.fetchShortBatch(ctx, &coinIndex, coinsPerTick)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetchShortBatch(ctx, &coinIndex, coinsPerTick)
		}
	}
}

func (p *MarketPoller) fetchShortBatch(ctx context.Context, coinIndex *int, count int) {
	symbols := domain.SupportedSymbols
	for i := 0; i < count; i++ {
		symbol := symbols[*coinIndex%len(symbols)]
		*coinIndex++

		for _, interval := range shortIntervals {
			if err := p.market.RefreshCandles(ctx, symbol, interval, shortRefreshBars); err != nil {
				log.Printf("short candle refresh error for %s/%s: %v", symbol, interval, err)
			}
		}
	}
}

func (p *MarketPoller) pollLongCandles(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(30 * time.Second):
	}

	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	coinIndex := 0

	p.fetchLongBatch(ctx, &coinIndex)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetchLongBatch(ctx, &coinIndex)
		}
	}
}

func (p *MarketPoller) fetchLongBatch(ctx context.Context, coinIndex *int) {
	symbols := domain.SupportedSymbols
	symbol := symbols[*coinIndex%len(symbols)]
	*coinIndex++

	for _, interval := range longIntervals {
		if err := p.market.RefreshCandles(ctx, symbol, interval, longRefreshBars); err != nil {
			log.Printf("long candle refresh error for %s/%s: %v", symbol, interval, err)
		}
	}
}
