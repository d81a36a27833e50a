package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"pulsewave/internal/backtest"
	"pulsewave/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// GetLevels godoc
// @Summary      Get support/resistance levels
// @Description  Returns clustered S/R levels for an asset; pass timeframes for a multi-timeframe view
// @Tags         analysis
// @Produce      json
// @Param        symbol      path   string  true   "Asset symbol (e.g., BTC, ETH)"
// @Param        interval    query  string  false  "Candle interval (5m, 15m, 1h, 4h, 1d)"  default(1h)
// @Param        timeframes  query  string  false  "Comma-separated intervals for a multi-timeframe scan"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/levels/{symbol} [get]
func (h *Handler) GetLevels(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-levels")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	if !validSymbol(c, symbol) {
		return
	}

	if tfs := parseTimeframes(c.Query("timeframes")); len(tfs) > 0 {
		for _, tf := range tfs {
			if !validInterval(c, tf) {
				return
			}
		}
		results, err := h.analysis.MultiTimeframeLevels(ctx, symbol, tfs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"symbol": symbol, "timeframes": results})
		return
	}

	interval := c.DefaultQuery("interval", "1h")
	if !validInterval(c, interval) {
		return
	}

	result, err := h.analysis.Levels(ctx, symbol, interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "levels": result})
}

// GetRegime godoc
// @Summary      Get market regime classification
// @Description  Returns the current regime (trending/ranging/volatile) with component scores
// @Tags         analysis
// @Produce      json
// @Param        symbol    path   string  true   "Asset symbol (e.g., BTC, ETH)"
// @Param        interval  query  string  false  "Candle interval (5m, 15m, 1h, 4h, 1d)"  default(1h)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/regime/{symbol} [get]
func (h *Handler) GetRegime(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-regime")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	if !validSymbol(c, symbol) {
		return
	}

	interval := c.DefaultQuery("interval", "1h")
	if !validInterval(c, interval) {
		return
	}

	result, err := h.analysis.Regime(ctx, symbol, interval)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "regime": result})
}

// GetSignal godoc
// @Summary      Get the latest trading signal
// @Description  Returns the most recent synthesized signal, computing a fresh one on cache miss
// @Tags         analysis
// @Produce      json
// @Param        symbol      path   string  true   "Asset symbol (e.g., BTC, ETH)"
// @Param        timeframes  query  string  false  "Comma-separated intervals, primary first"  default(1h)
// @Success      200  {object}  domain.TradingSignal
// @Failure      400  {object}  map[string]string
// @Router       /api/signal/{symbol} [get]
func (h *Handler) GetSignal(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-signal")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	if !validSymbol(c, symbol) {
		return
	}

	timeframes := parseTimeframes(c.Query("timeframes"))
	for _, tf := range timeframes {
		if !validInterval(c, tf) {
			return
		}
	}

	signal, err := h.analysis.LatestSignal(ctx, symbol, timeframes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, signal)
}

// BacktestRequest is the POST /api/backtest payload. Zero-valued config
// fields fall back to the simulator defaults.
type BacktestRequest struct {
	Symbol         string  `json:"symbol" binding:"required"`
	Interval       string  `json:"interval"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	SizingMethod   string  `json:"sizing_method"`
	PositionSize   float64 `json:"position_size"`
	Commission     float64 `json:"commission"`
	Slippage       float64 `json:"slippage"`
	MaxBarsHeld    int     `json:"max_bars_held"`
	InitialCapital float64 `json:"initial_capital"`
}

// RunBacktest godoc
// @Summary      Run a backtest over stored candles
// @Description  Replays the signal pipeline bar by bar and returns trades plus performance metrics
// @Tags         analysis
// @Accept       json
// @Produce      json
// @Param        request  body  handler.BacktestRequest  true  "Backtest parameters"
// @Success      200  {object}  domain.BacktestResult
// @Failure      400  {object}  map[string]string
// @Router       /api/backtest [post]
func (h *Handler) RunBacktest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.run-backtest")
	defer span.End()

	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := strings.ToUpper(req.Symbol)
	span.SetAttributes(attribute.String("symbol", symbol))
	if !validSymbol(c, symbol) {
		return
	}

	interval := req.Interval
	if interval == "" {
		interval = "1h"
	}
	if !validInterval(c, interval) {
		return
	}

	var from, to time.Time
	var err error
	if req.From != "" {
		if from, err = time.Parse(time.RFC3339, req.From); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from timestamp: " + req.From})
			return
		}
	}
	if req.To != "" {
		if to, err = time.Parse(time.RFC3339, req.To); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to timestamp: " + req.To})
			return
		}
	}

	cfg := backtest.DefaultConfig()
	if req.SizingMethod != "" {
		method := domain.SizingMethod(req.SizingMethod)
		switch method {
		case domain.SizingFixed, domain.SizingPercent, domain.SizingATR, domain.SizingKelly:
			cfg.Sizing = method
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported sizing method: " + req.SizingMethod})
			return
		}
	}
	if req.PositionSize > 0 {
		cfg.PositionSize = req.PositionSize
	}
	if req.Commission > 0 {
		cfg.Commission = req.Commission
	}
	if req.Slippage > 0 {
		cfg.Slippage = req.Slippage
	}
	if req.MaxBarsHeld > 0 {
		cfg.MaxBarsHeld = req.MaxBarsHeld
	}
	if req.InitialCapital > 0 {
		cfg.InitialCapital = req.InitialCapital
	}

	result, err := h.analysis.Backtest(ctx, symbol, interval, from, to, cfg)
	if err != nil {
		if errors.Is(err, backtest.ErrInsufficientData) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func parseTimeframes(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	timeframes := make([]string, 0, len(parts))
	for _, p := range parts {
		if tf := strings.TrimSpace(p); tf != "" {
			timeframes = append(timeframes, tf)
		}
	}
	return timeframes
}
