package backtest

import (
	"math"

	"pulsewave/internal/domain"
	"pulsewave/internal/ta"
)

// computeMetrics aggregates the trade ledger and equity curve into a result.
// A run with no trades produces an all-zero result.
func computeMetrics(trades []domain.Trade, equityCurve []float64, initialCapital float64) domain.BacktestResult {
	if len(trades) == 0 {
		return domain.BacktestResult{Trades: []domain.Trade{}}
	}

	var (
		winningTrades, losingTrades int
		winningPnL, losingPnL       float64
		largestWin, largestLoss     float64
		totalBarsHeld               int
	)
	for _, t := range trades {
		totalBarsHeld += t.BarsHeld
		switch {
		case t.PnL > 0:
			winningTrades++
			winningPnL += t.PnL
			if t.PnL > largestWin {
				largestWin = t.PnL
			}
		case t.PnL < 0:
			losingTrades++
			losingPnL += -t.PnL
			if t.PnL < largestLoss {
				largestLoss = t.PnL
			}
		}
	}

	totalTrades := len(trades)
	winRate := float64(winningTrades) / float64(totalTrades) * 100
	totalReturn := (equityCurve[len(equityCurve)-1] - initialCapital) / initialCapital * 100

	profitFactor := math.Inf(1)
	if losingPnL > 0 {
		profitFactor = winningPnL / losingPnL
	}

	avgWin := 0.0
	if winningTrades > 0 {
		avgWin = winningPnL / float64(winningTrades)
	}
	avgLoss := 0.0
	if losingTrades > 0 {
		avgLoss = losingPnL / float64(losingTrades)
	}

	expectancy := winRate/100*avgWin - (100-winRate)/100*avgLoss

	return domain.BacktestResult{
		Trades:        trades,
		TotalReturn:   totalReturn,
		WinRate:       winRate,
		ProfitFactor:  profitFactor,
		MaxDrawdown:   maxDrawdown(equityCurve),
		SharpeRatio:   sharpeRatio(equityCurve),
		Expectancy:    expectancy,
		TotalTrades:   totalTrades,
		WinningTrades: winningTrades,
		LosingTrades:  losingTrades,
		AvgWin:        avgWin,
		AvgLoss:       avgLoss,
		LargestWin:    largestWin,
		LargestLoss:   largestLoss,
		AvgBarsHeld:   float64(totalBarsHeld) / float64(totalTrades),
	}
}

// maxDrawdown is the worst trough-vs-running-peak decline, as a percentage
// less than or equal to zero.
func maxDrawdown(equityCurve []float64) float64 {
	peak := math.Inf(-1)
	worst := 0.0
	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		drawdown := (equity - peak) / peak
		if drawdown < worst {
			worst = drawdown
		}
	}
	return worst * 100
}

// sharpeRatio annualizes the mean over stdev of per-bar equity returns.
func sharpeRatio(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		if equityCurve[i-1] != 0 {
			returns = append(returns, (equityCurve[i]-equityCurve[i-1])/equityCurve[i-1])
		}
	}
	if len(returns) == 0 {
		return 0
	}
	meanRet, stdRet := ta.MeanStd(returns)
	if stdRet <= 0 {
		return 0
	}
	return meanRet / stdRet * math.Sqrt(252)
}
