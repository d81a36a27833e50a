package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"pulsewave/internal/backtest"
	"pulsewave/internal/domain"
	"pulsewave/internal/engine"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CandleSource supplies chronological bar series for analysis.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	GetCandlesInRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error)
}

// SignalCache stores and recalls the latest signal per symbol/interval.
type SignalCache interface {
	CacheSignal(ctx context.Context, symbol, interval string, signal domain.TradingSignal) error
	CachedSignal(ctx context.Context, symbol, interval string) (*domain.TradingSignal, error)
}

// AnalysisService is the facade over the analysis engine: S/R levels,
// regime classification, signal synthesis, and backtesting over stored bars.
type AnalysisService struct {
	tracer      trace.Tracer
	source      CandleSource
	signalCache SignalCache

	sr          *engine.SREngine
	regime      *engine.RegimeClassifier
	synthesizer *engine.SignalSynthesizer

	historyBars int
}

func NewAnalysisService(
	tracer trace.Tracer,
	source CandleSource,
	signalCache SignalCache,
	historyBars int,
) *AnalysisService {
	if historyBars <= 0 {
		historyBars = 400
	}
	return &AnalysisService{
		tracer:      tracer,
		source:      source,
		signalCache: signalCache,
		sr:          engine.NewSREngine(engine.DefaultSRConfig()),
		regime:      engine.NewRegimeClassifier(engine.DefaultRegimeConfig()),
		synthesizer: engine.NewSignalSynthesizer(engine.DefaultSignalConfig()),
		historyBars: historyBars,
	}
}

// Levels computes support/resistance levels for one symbol/interval.
func (s *AnalysisService) Levels(ctx context.Context, symbol, interval string) (domain.SRResult, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.levels")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	bars, err := s.source.GetCandles(ctx, symbol, interval, s.historyBars)
	if err != nil {
		return domain.SRResult{}, fmt.Errorf("load candles for %s/%s: %w", symbol, interval, err)
	}
	return s.sr.Calculate(bars, interval), nil
}

// MultiTimeframeLevels computes levels across several intervals at once.
func (s *AnalysisService) MultiTimeframeLevels(ctx context.Context, symbol string, timeframes []string) (map[string]domain.SRResult, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.mtf-levels")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	series := make(map[string][]domain.Candle, len(timeframes))
	for _, tf := range timeframes {
		bars, err := s.source.GetCandles(ctx, symbol, tf, s.historyBars)
		if err != nil {
			log.Printf("load candles for %s/%s: %v", symbol, tf, err)
			continue
		}
		series[tf] = bars
	}
	return s.sr.CalculateMultiTimeframe(series, timeframes), nil
}

// Regime classifies current market behavior for one symbol/interval.
func (s *AnalysisService) Regime(ctx context.Context, symbol, interval string) (domain.RegimeResult, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.regime")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	bars, err := s.source.GetCandles(ctx, symbol, interval, s.historyBars)
	if err != nil {
		return domain.RegimeResult{}, fmt.Errorf("load candles for %s/%s: %w", symbol, interval, err)
	}
	return s.regime.Classify(bars), nil
}

// Signal generates a fresh trading signal from the latest bars at the first
// timeframe and caches it. The timeframe order matters: the first entry is
// the primary series the signal is priced on.
func (s *AnalysisService) Signal(ctx context.Context, symbol string, timeframes []string) (domain.TradingSignal, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.signal")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	if len(timeframes) == 0 {
		timeframes = []string{"1h"}
	}

	bars, err := s.source.GetCandles(ctx, symbol, timeframes[0], s.historyBars)
	if err != nil {
		return domain.TradingSignal{}, fmt.Errorf("load candles for %s/%s: %w", symbol, timeframes[0], err)
	}

	signal, err := s.synthesizer.Generate(bars, timeframes)
	if err != nil {
		return domain.TradingSignal{}, fmt.Errorf("generate signal for %s: %w", symbol, err)
	}

	if s.signalCache != nil {
		if err := s.signalCache.CacheSignal(ctx, symbol, timeframes[0], signal); err != nil {
			log.Printf("cache signal for %s/%s: %v", symbol, timeframes[0], err)
		}
	}
	return signal, nil
}

// LatestSignal serves the cached signal when present and computes a fresh
// one otherwise.
func (s *AnalysisService) LatestSignal(ctx context.Context, symbol string, timeframes []string) (domain.TradingSignal, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.latest-signal")
	defer span.End()

	if len(timeframes) > 0 && s.signalCache != nil {
		cached, err := s.signalCache.CachedSignal(ctx, symbol, timeframes[0])
		if err != nil {
			log.Printf("read cached signal for %s/%s: %v", symbol, timeframes[0], err)
		}
		if cached != nil {
			return *cached, nil
		}
	}
	return s.Signal(ctx, symbol, timeframes)
}

// Backtest replays the signal pipeline over stored bars. A zero from/to
// uses the whole stored series, capped at 1000 bars.
func (s *AnalysisService) Backtest(ctx context.Context, symbol, interval string, from, to time.Time, cfg backtest.Config) (domain.BacktestResult, error) {
	ctx, span := s.tracer.Start(ctx, "analysis-service.backtest")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	var (
		bars []domain.Candle
		err  error
	)
	if from.IsZero() && to.IsZero() {
		bars, err = s.source.GetCandles(ctx, symbol, interval, 1000)
	} else {
		bars, err = s.source.GetCandlesInRange(ctx, symbol, interval, from, to)
	}
	if err != nil {
		return domain.BacktestResult{}, fmt.Errorf("load candles for %s/%s: %w", symbol, interval, err)
	}

	sim := backtest.NewSimulator(s.synthesizer, cfg)
	return sim.Run(ctx, bars, time.Time{}, time.Time{})
}
