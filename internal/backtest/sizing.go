package backtest

import (
	"math"

	"pulsewave/internal/domain"
	"pulsewave/internal/ta"
)

// positionSize converts a signal into a share count under the configured
// sizing method, then caps the notional at 95% of capital to keep a cash
// buffer.
func (s *Simulator) positionSize(bars []domain.Candle, signal domain.TradingSignal, capital float64) float64 {
	if signal.Direction == domain.DirectionNeutral {
		return 0
	}

	price := signal.EntryPrice
	riskPerShare := math.Abs(signal.EntryPrice - signal.StopLoss)

	var shares float64
	switch s.cfg.Sizing {
	case domain.SizingFixed:
		shares = s.cfg.PositionSize / price

	case domain.SizingPercent:
		if riskPerShare > 0 {
			shares = capital * s.cfg.PositionSize / riskPerShare
		}

	case domain.SizingATR:
		atr := currentATR(bars, s.cfg.ATRPeriod)
		atrMultiple := 1.0
		if atr > 0 {
			atrMultiple = riskPerShare / atr
		}
		baseSize := capital * 0.02
		shares = baseSize / (atr * math.Max(atrMultiple, 1))

	case domain.SizingKelly:
		// Simplified Kelly with an assumed 0.55 win rate and the signal's
		// risk/reward standing in for the average win. Halved and clipped
		// to 5% of capital.
		winRate := 0.55
		avgWin := signal.RiskRewardRatio
		avgLoss := 1.0
		kellyPct := (winRate*avgWin - (1-winRate)*avgLoss) / avgWin
		kellyPct = math.Max(0, math.Min(kellyPct*0.5, 0.05))
		if riskPerShare > 0 {
			shares = capital * kellyPct / riskPerShare
		}
	}

	maxShares := capital * 0.95 / price
	return math.Min(shares, maxShares)
}

// currentATR returns the latest ATR, falling back to the last bar's range
// when the series is too short or the rolling window is not yet defined.
func currentATR(bars []domain.Candle, period int) float64 {
	last := bars[len(bars)-1]
	if len(bars) < period+1 {
		return last.High - last.Low
	}

	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	atr := ta.Last(ta.ATRSeries(highs, lows, closes, period))
	if math.IsNaN(atr) {
		return last.High - last.Low
	}
	return atr
}
