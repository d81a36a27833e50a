package domain

import "time"

// SignalDirection is the direction of a trading signal.
type SignalDirection string

const (
	DirectionLong    SignalDirection = "LONG"
	DirectionShort   SignalDirection = "SHORT"
	DirectionNeutral SignalDirection = "NEUTRAL"
)

// Regime classifies current market behavior.
type Regime string

const (
	RegimeTrendingUp   Regime = "TRENDING_UP"
	RegimeTrendingDown Regime = "TRENDING_DOWN"
	RegimeRanging      Regime = "RANGING"
	RegimeVolatile     Regime = "VOLATILE"
)

// ExitReason records why a backtest position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "Stop Loss"
	ExitTakeProfit ExitReason = "Take Profit"
	ExitTimeLimit  ExitReason = "Time Limit"
)

// SizingMethod selects the position-sizing rule used by the backtester.
type SizingMethod string

const (
	SizingFixed   SizingMethod = "fixed"
	SizingPercent SizingMethod = "percent"
	SizingATR     SizingMethod = "atr"
	SizingKelly   SizingMethod = "kelly"
)

// SRLevel is a support/resistance price band built from clustered pivots.
type SRLevel struct {
	Mid          float64 `json:"mid"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Strength     int     `json:"strength"`
	IsResistance bool    `json:"is_resistance"`
	DistancePct  float64 `json:"distance_pct"`
}

// SRResult holds all S/R levels computed for one timeframe.
type SRResult struct {
	Levels       []SRLevel `json:"levels"`
	Timeframe    string    `json:"timeframe"`
	CurrentPrice float64   `json:"current_price"`
	ChannelWidth float64   `json:"channel_width"`
	PivotCount   int       `json:"pivot_count"`
}

// Regime component keys exposed for diagnostics. Boolean flags are
// encoded as 0/1 values.
const (
	ComponentATRRatio          = "atr_ratio"
	ComponentADX               = "adx"
	ComponentBBWidth           = "bb_width"
	ComponentTrendStrength     = "trend_strength"
	ComponentVolatilityScore   = "volatility_score"
	ComponentMomentumAlignment = "momentum_alignment"
	ComponentEMATrend          = "ema_trend"
	ComponentIsUptrend         = "is_uptrend"
	ComponentMomentumBullish   = "is_momentum_bullish"
)

// RegimeResult is a market regime classification with confidence 0-100.
// Components is empty when there was not enough history to classify.
type RegimeResult struct {
	Regime     Regime             `json:"regime"`
	Confidence float64            `json:"confidence"`
	Components map[string]float64 `json:"components"`
}

// Confluence factor keys, in scoring order.
const (
	FactorSRProximity    = "sr_proximity"
	FactorSRStrength     = "sr_strength"
	FactorRegime         = "regime_alignment"
	FactorRSI            = "rsi_condition"
	FactorVolume         = "volume_confirmation"
	FactorMTFAgreement   = "mtf_agreement"
	FactorTrendAlignment = "trend_alignment"
)

// ConfluenceResult is the weighted multi-factor score for one direction.
type ConfluenceResult struct {
	TotalScore      float64            `json:"total_score"`
	Direction       SignalDirection    `json:"direction"`
	FactorBreakdown map[string]float64 `json:"factor_breakdown"`
	Reasoning       []string           `json:"reasoning"`
}

// TradingSignal is a complete trade recommendation with risk levels and
// the analysis context that produced it.
type TradingSignal struct {
	Direction       SignalDirection     `json:"direction"`
	EntryPrice      float64             `json:"entry_price"`
	StopLoss        float64             `json:"stop_loss"`
	TakeProfit      float64             `json:"take_profit"`
	Confidence      float64             `json:"confidence"`
	ConfluenceScore float64             `json:"confluence_score"`
	RiskRewardRatio float64             `json:"risk_reward_ratio"`
	Reasoning       []string            `json:"reasoning"`
	SRContext       map[string]SRResult `json:"sr_context,omitempty"`
	RegimeContext   RegimeResult        `json:"regime_context"`
	Confluence      *ConfluenceResult   `json:"confluence_context,omitempty"`
}

// Trade is one closed backtest position.
type Trade struct {
	EntryTime    time.Time       `json:"entry_time"`
	ExitTime     time.Time       `json:"exit_time"`
	Direction    SignalDirection `json:"direction"`
	EntryPrice   float64         `json:"entry_price"`
	ExitPrice    float64         `json:"exit_price"`
	StopLoss     float64         `json:"stop_loss"`
	TakeProfit   float64         `json:"take_profit"`
	PositionSize float64         `json:"position_size"`
	PnL          float64         `json:"pnl"`
	PnLPct       float64         `json:"pnl_pct"`
	ExitReason   ExitReason      `json:"exit_reason"`
	BarsHeld     int             `json:"bars_held"`
	Confidence   float64         `json:"confidence"`
}

// BacktestResult aggregates a full simulation run.
type BacktestResult struct {
	Trades        []Trade `json:"trades"`
	TotalReturn   float64 `json:"total_return"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	Expectancy    float64 `json:"expectancy"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	LargestWin    float64 `json:"largest_win"`
	LargestLoss   float64 `json:"largest_loss"`
	AvgBarsHeld   float64 `json:"avg_bars_held"`
}
