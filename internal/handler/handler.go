package handler

import (
	"context"
	"time"

	"pulsewave/internal/backtest"
	"pulsewave/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// MarketData serves prices and candle history.
type MarketData interface {
	GetCurrentPrice(ctx context.Context, symbol string) (*domain.PriceSnapshot, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
}

// Analyzer runs the signal engine over stored history.
type Analyzer interface {
	Levels(ctx context.Context, symbol, interval string) (domain.SRResult, error)
	MultiTimeframeLevels(ctx context.Context, symbol string, timeframes []string) (map[string]domain.SRResult, error)
	Regime(ctx context.Context, symbol, interval string) (domain.RegimeResult, error)
	LatestSignal(ctx context.Context, symbol string, timeframes []string) (domain.TradingSignal, error)
	Backtest(ctx context.Context, symbol, interval string, from, to time.Time, cfg backtest.Config) (domain.BacktestResult, error)
}

type Handler struct {
	tracer   trace.Tracer
	market   MarketData
	analysis Analyzer
}

func New(tracer trace.Tracer, market MarketData, analysis Analyzer) *Handler {
	return &Handler{
		tracer:   tracer,
		market:   market,
		analysis: analysis,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	api := r.Group("/api", APIKeyAuth(apiKey))
	api.GET("/prices/:symbol", h.GetPrice)
	api.GET("/candles/:symbol", h.GetCandles)
	api.GET("/levels/:symbol", h.GetLevels)
	api.GET("/regime/:symbol", h.GetRegime)
	api.GET("/signal/:symbol", h.GetSignal)
	api.POST("/backtest", h.RunBacktest)
}
