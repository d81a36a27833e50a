// Package backtest replays the signal pipeline bar-by-bar over historical
// data, holding at most one open position, and aggregates a performance
// report.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pulsewave/internal/domain"
)

// ErrInsufficientData is returned when the supplied history is shorter than
// MinBarsForSignal plus the 50-bar warmup margin.
var ErrInsufficientData = errors.New("insufficient data for backtesting")

// SignalGenerator produces a trading signal from the bar history up to and
// including the current bar.
type SignalGenerator interface {
	Generate(bars []domain.Candle, timeframes []string) (domain.TradingSignal, error)
}

// Config holds the execution and sizing parameters of a run.
type Config struct {
	Sizing           domain.SizingMethod
	PositionSize     float64
	Commission       float64
	Slippage         float64
	MaxBarsHeld      int
	InitialCapital   float64
	MinBarsForSignal int
	ATRPeriod        int
}

func DefaultConfig() Config {
	return Config{
		Sizing:           domain.SizingPercent,
		PositionSize:     0.02,
		Commission:       0.001,
		Slippage:         0.0005,
		MaxBarsHeld:      100,
		InitialCapital:   100000,
		MinBarsForSignal: 100,
		ATRPeriod:        14,
	}
}

// Simulator runs a single-position backtest. All run state (capital, open
// position, equity curve, ledger) is scoped to one Run call; a Simulator can
// be reused across runs but not concurrently within one.
type Simulator struct {
	gen  SignalGenerator
	cfg  Config
	logf func(format string, args ...any)
}

func NewSimulator(gen SignalGenerator, cfg Config) *Simulator {
	return &Simulator{gen: gen, cfg: cfg, logf: log.Printf}
}

// SetLogf redirects the simulator's diagnostics. Passing nil silences them;
// logging never changes run outcomes.
func (s *Simulator) SetLogf(logf func(format string, args ...any)) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	s.logf = logf
}

type openPosition struct {
	direction       domain.SignalDirection
	entryPrice      float64
	stopLoss        float64
	takeProfit      float64
	positionSize    float64
	entryTime       time.Time
	entryIndex      int
	confidence      float64
	entryCommission float64
}

// Run replays bars from MinBarsForSignal onward. The optional from/to bounds
// filter bars by open time before the run (zero values disable a bound).
// Cancellation is honored between bar iterations.
func (s *Simulator) Run(ctx context.Context, bars []domain.Candle, from, to time.Time) (domain.BacktestResult, error) {
	bars = filterRange(bars, from, to)

	if len(bars) < s.cfg.MinBarsForSignal+50 {
		return domain.BacktestResult{}, fmt.Errorf("%w: have %d bars, need %d",
			ErrInsufficientData, len(bars), s.cfg.MinBarsForSignal+50)
	}

	var (
		trades      []domain.Trade
		position    *openPosition
		capital     = s.cfg.InitialCapital
		equityCurve = []float64{s.cfg.InitialCapital}
	)

	s.logf("starting backtest over %d bars from %s to %s",
		len(bars), bars[0].OpenTime.Format(time.RFC3339), bars[len(bars)-1].OpenTime.Format(time.RFC3339))

	for i := s.cfg.MinBarsForSignal; i < len(bars); i++ {
		if err := ctx.Err(); err != nil {
			return domain.BacktestResult{}, err
		}

		bar := bars[i]
		history := bars[:i+1]

		if position != nil {
			if exitPrice, reason, ok := s.checkExit(position, bar, i); ok {
				trade := s.closePosition(position, bar, i, exitPrice, reason)
				// Entry commission was already taken out of capital when the
				// position opened but is part of the trade's PnL, so capital
				// moves by the difference.
				capital += trade.PnL + position.entryCommission
				trades = append(trades, trade)
				s.logf("closed %s position: %.2f (%.2f%%) - %s", trade.Direction, trade.PnL, trade.PnLPct, reason)
				position = nil
			}
		} else {
			signal, err := s.gen.Generate(history, nil)
			if err != nil {
				s.logf("signal error at %s: %v", bar.OpenTime.Format(time.RFC3339), err)
			} else if signal.Direction != domain.DirectionNeutral {
				size := s.positionSize(history, signal, capital)
				if size > 0 {
					entryPrice := applySlippage(signal.EntryPrice, signal.Direction == domain.DirectionLong, s.cfg.Slippage)
					entryCommission := signal.EntryPrice * size * s.cfg.Commission
					capital -= entryCommission

					position = &openPosition{
						direction:       signal.Direction,
						entryPrice:      entryPrice,
						stopLoss:        signal.StopLoss,
						takeProfit:      signal.TakeProfit,
						positionSize:    size,
						entryTime:       bar.OpenTime,
						entryIndex:      i,
						confidence:      signal.Confidence,
						entryCommission: entryCommission,
					}
					s.logf("opened %s position at %.4f, size %.4f", signal.Direction, entryPrice, size)
				}
			}
		}

		equity := capital
		if position != nil {
			if position.direction == domain.DirectionLong {
				equity += (bar.Close - position.entryPrice) * position.positionSize
			} else {
				equity += (position.entryPrice - bar.Close) * position.positionSize
			}
		}
		equityCurve = append(equityCurve, equity)
	}

	return computeMetrics(trades, equityCurve, s.cfg.InitialCapital), nil
}

// checkExit evaluates exit conditions in fixed priority: close through stop,
// close through target, intrabar stop breach, intrabar target breach, then
// the bar-count time limit. The first match fixes the exit price.
func (s *Simulator) checkExit(p *openPosition, bar domain.Candle, index int) (float64, domain.ExitReason, bool) {
	if p.direction == domain.DirectionLong {
		switch {
		case bar.Close <= p.stopLoss:
			return p.stopLoss, domain.ExitStopLoss, true
		case bar.Close >= p.takeProfit:
			return p.takeProfit, domain.ExitTakeProfit, true
		case bar.Low <= p.stopLoss:
			return p.stopLoss, domain.ExitStopLoss, true
		case bar.High >= p.takeProfit:
			return p.takeProfit, domain.ExitTakeProfit, true
		}
	} else {
		switch {
		case bar.Close >= p.stopLoss:
			return p.stopLoss, domain.ExitStopLoss, true
		case bar.Close <= p.takeProfit:
			return p.takeProfit, domain.ExitTakeProfit, true
		case bar.High >= p.stopLoss:
			return p.stopLoss, domain.ExitStopLoss, true
		case bar.Low <= p.takeProfit:
			return p.takeProfit, domain.ExitTakeProfit, true
		}
	}
	if index-p.entryIndex >= s.cfg.MaxBarsHeld {
		return bar.Close, domain.ExitTimeLimit, true
	}
	return 0, "", false
}

func (s *Simulator) closePosition(p *openPosition, bar domain.Candle, index int, exitPrice float64, reason domain.ExitReason) domain.Trade {
	// Closing a long sells, closing a short buys back.
	executed := applySlippage(exitPrice, p.direction == domain.DirectionShort, s.cfg.Slippage)
	commission := exitPrice * p.positionSize * s.cfg.Commission

	var pnl float64
	if p.direction == domain.DirectionLong {
		pnl = (executed-p.entryPrice)*p.positionSize - commission - p.entryCommission
	} else {
		pnl = (p.entryPrice-executed)*p.positionSize - commission - p.entryCommission
	}

	return domain.Trade{
		EntryTime:    p.entryTime,
		ExitTime:     bar.OpenTime,
		Direction:    p.direction,
		EntryPrice:   p.entryPrice,
		ExitPrice:    executed,
		StopLoss:     p.stopLoss,
		TakeProfit:   p.takeProfit,
		PositionSize: p.positionSize,
		PnL:          pnl,
		PnLPct:       pnl / (p.entryPrice * p.positionSize) * 100,
		ExitReason:   reason,
		BarsHeld:     index - p.entryIndex,
		Confidence:   p.confidence,
	}
}

// applySlippage moves price adversely: up for buys, down for sells.
func applySlippage(price float64, isBuy bool, slippage float64) float64 {
	if isBuy {
		return price * (1 + slippage)
	}
	return price * (1 - slippage)
}

func filterRange(bars []domain.Candle, from, to time.Time) []domain.Candle {
	lo := 0
	hi := len(bars)
	if !from.IsZero() {
		for lo < hi && bars[lo].OpenTime.Before(from) {
			lo++
		}
	}
	if !to.IsZero() {
		for hi > lo && bars[hi-1].OpenTime.After(to) {
			hi--
		}
	}
	return bars[lo:hi]
}
