package main

import (
	"fmt"
	"math"
	"strings"

	"pulsewave/internal/backtest"
	"pulsewave/internal/domain"

	"github.com/charmbracelet/lipgloss"
)

var (
	reportTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	labelStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(16)
	gainStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	lossStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	reportBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
)

func renderReport(symbol, interval string, cfg backtest.Config, result domain.BacktestResult) string {
	var sb strings.Builder

	sb.WriteString(reportTitleStyle.Render(fmt.Sprintf("Backtest %s/%s", symbol, interval)))
	sb.WriteString(dim(fmt.Sprintf("  sizing=%s capital=%.0f\n", cfg.Sizing, cfg.InitialCapital)))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(label) + value + "\n")
	}

	row("Trades", fmt.Sprintf("%d (%d won / %d lost)",
		result.TotalTrades, result.WinningTrades, result.LosingTrades))
	row("Total return", signed(result.TotalReturn, "%"))
	row("Win rate", fmt.Sprintf("%.1f%%", result.WinRate))
	row("Profit factor", formatProfitFactor(result.ProfitFactor))
	row("Max drawdown", fmt.Sprintf("%.2f%%", result.MaxDrawdown))
	row("Sharpe", fmt.Sprintf("%.2f", result.SharpeRatio))
	row("Expectancy", signed(result.Expectancy, ""))
	row("Avg win / loss", fmt.Sprintf("%s / %s", signed(result.AvgWin, ""), signed(result.AvgLoss, "")))
	row("Largest win", signed(result.LargestWin, ""))
	row("Largest loss", signed(result.LargestLoss, ""))
	row("Avg bars held", fmt.Sprintf("%.1f", result.AvgBarsHeld))

	out := reportBoxStyle.Render(strings.TrimRight(sb.String(), "\n")) + "\n"

	if len(result.Trades) > 0 {
		out += renderTrades(result.Trades)
	}
	return out
}

// renderTrades lists the most recent trades, newest last.
func renderTrades(trades []domain.Trade) string {
	const maxRows = 20

	start := 0
	if len(trades) > maxRows {
		start = len(trades) - maxRows
	}

	var sb strings.Builder
	sb.WriteString(dim(fmt.Sprintf("\nLast %d trades:\n", len(trades)-start)))
	for _, trade := range trades[start:] {
		pnl := signed(trade.PnL, "")
		sb.WriteString(fmt.Sprintf("  %s  %-5s  in %9.2f  out %9.2f  %s  %s (%d bars)\n",
			trade.EntryTime.Format("2006-01-02 15:04"),
			trade.Direction,
			trade.EntryPrice,
			trade.ExitPrice,
			pnl,
			trade.ExitReason,
			trade.BarsHeld))
	}
	return sb.String()
}

func signed(v float64, suffix string) string {
	s := fmt.Sprintf("%+.2f%s", v, suffix)
	if v > 0 {
		return gainStyle.Render(s)
	}
	if v < 0 {
		return lossStyle.Render(s)
	}
	return s
}

func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "∞ (no losing trades)"
	}
	return fmt.Sprintf("%.2f", pf)
}

func dim(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(s)
}
