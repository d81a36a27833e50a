package engine

import (
	"errors"
	"fmt"
	"math"

	"pulsewave/internal/domain"
	"pulsewave/internal/ta"
)

// ErrNoBars is returned when a signal is requested for an empty series.
var ErrNoBars = errors.New("no bars supplied")

// SignalConfig bundles the pipeline configuration with the quality gates
// applied to a synthesized signal.
type SignalConfig struct {
	SR         SRConfig
	Regime     RegimeConfig
	Confluence ConfluenceConfig

	MinConfluenceScore float64
	MinRiskReward      float64
	MaxStopLossPct     float64
	ATRPeriod          int
}

func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		SR:                 DefaultSRConfig(),
		Regime:             DefaultRegimeConfig(),
		Confluence:         DefaultConfluenceConfig(),
		MinConfluenceScore: 45.0,
		MinRiskReward:      1.5,
		MaxStopLossPct:     3.0,
		ATRPeriod:          14,
	}
}

// SignalSynthesizer turns bar history into a LONG/SHORT/NEUTRAL trading
// signal with entry, stop and target. It is stateless: every call is a pure
// function of the supplied bars and configuration.
type SignalSynthesizer struct {
	cfg        SignalConfig
	sr         *SREngine
	regime     *RegimeClassifier
	confluence *ConfluenceScorer
}

func NewSignalSynthesizer(cfg SignalConfig) *SignalSynthesizer {
	return &SignalSynthesizer{
		cfg:        cfg,
		sr:         NewSREngine(cfg.SR),
		regime:     NewRegimeClassifier(cfg.Regime),
		confluence: NewConfluenceScorer(cfg.Confluence),
	}
}

// Generate analyzes bars and produces a signal. timeframes labels the S/R
// passes to run over the same history; the first label is the primary one.
// Passing nil analyzes a single "current" timeframe.
func (g *SignalSynthesizer) Generate(bars []domain.Candle, timeframes []string) (domain.TradingSignal, error) {
	if len(bars) == 0 {
		return domain.TradingSignal{}, ErrNoBars
	}
	if len(timeframes) == 0 {
		timeframes = []string{"current"}
	}

	currentPrice := bars[len(bars)-1].Close

	srResults := make(map[string]domain.SRResult, len(timeframes))
	for _, tf := range timeframes {
		srResults[tf] = g.sr.Calculate(bars, tf)
	}

	regimeResult := g.regime.Classify(bars)

	opportunities := g.findOpportunities(bars, srResults, timeframes)
	if len(opportunities) == 0 {
		return neutralSignal(currentPrice, 0, 0, 0,
			[]string{"No clear S/R level interaction detected"},
			srResults, regimeResult, nil), nil
	}

	var best *domain.ConfluenceResult
	bestScore := 0.0
	bestDirection := domain.DirectionNeutral
	for _, opp := range opportunities {
		result := g.confluence.Score(bars, srResults, timeframes, regimeResult, opp)
		if result.TotalScore > bestScore {
			bestScore = result.TotalScore
			bestDirection = opp
			r := result
			best = &r
		}
	}

	if bestScore < g.cfg.MinConfluenceScore {
		return neutralSignal(currentPrice, bestScore, bestScore, 0,
			[]string{fmt.Sprintf("Confluence score %.1f below minimum %.1f", bestScore, g.cfg.MinConfluenceScore)},
			srResults, regimeResult, best), nil
	}

	entryPrice := currentPrice
	stopLoss := g.stopLoss(bars, bestDirection, entryPrice, srResults, timeframes)
	takeProfit := g.takeProfit(bestDirection, entryPrice, stopLoss, srResults, timeframes)

	risk := math.Abs(entryPrice - stopLoss)
	reward := math.Abs(takeProfit - entryPrice)
	riskReward := 0.0
	if risk > 0 {
		riskReward = reward / risk
	}

	if riskReward < g.cfg.MinRiskReward {
		return neutralSignal(currentPrice, bestScore*0.5, bestScore, riskReward,
			[]string{fmt.Sprintf("Risk/reward %.2f below minimum %.2f", riskReward, g.cfg.MinRiskReward)},
			srResults, regimeResult, best), nil
	}

	confidence := math.Min(bestScore*0.7+regimeResult.Confidence*0.3, 95)

	reasoning := []string{
		fmt.Sprintf("Signal direction: %s", bestDirection),
		fmt.Sprintf("Confluence score: %.1f/100", bestScore),
		fmt.Sprintf("Risk/reward ratio: %.2f", riskReward),
		fmt.Sprintf("Regime: %s (%.1f%%)", regimeResult.Regime, regimeResult.Confidence),
	}
	for i, r := range best.Reasoning {
		if i >= 3 {
			break
		}
		reasoning = append(reasoning, r)
	}

	return domain.TradingSignal{
		Direction:       bestDirection,
		EntryPrice:      entryPrice,
		StopLoss:        stopLoss,
		TakeProfit:      takeProfit,
		Confidence:      confidence,
		ConfluenceScore: bestScore,
		RiskRewardRatio: riskReward,
		Reasoning:       reasoning,
		SRContext:       srResults,
		RegimeContext:   regimeResult,
		Confluence:      best,
	}, nil
}

// findOpportunities flags candidate directions from price interacting with
// levels within 3% of the close: support bounces and resistance rejections
// first, then anticipated breakouts within 1%. Directions are deduplicated
// in first-seen order so the outcome does not depend on map iteration.
func (g *SignalSynthesizer) findOpportunities(bars []domain.Candle, srResults map[string]domain.SRResult, timeframes []string) []domain.SignalDirection {
	currentPrice := bars[len(bars)-1].Close
	previousClose := currentPrice
	if len(bars) > 1 {
		previousClose = bars[len(bars)-2].Close
	}

	var opportunities []domain.SignalDirection
	seen := make(map[domain.SignalDirection]bool)
	add := func(d domain.SignalDirection) {
		if !seen[d] {
			seen[d] = true
			opportunities = append(opportunities, d)
		}
	}

	for _, tf := range timeframes {
		for _, lvl := range srResults[tf].Levels {
			distancePct := math.Abs(lvl.Mid-currentPrice) / currentPrice * 100
			if distancePct > 3.0 {
				continue
			}

			switch {
			case lvl.Mid < currentPrice && !lvl.IsResistance &&
				previousClose <= lvl.Mid && currentPrice > lvl.Mid:
				add(domain.DirectionLong) // bounce off support

			case lvl.Mid > currentPrice && lvl.IsResistance &&
				previousClose >= lvl.Mid && currentPrice < lvl.Mid:
				add(domain.DirectionShort) // rejection at resistance

			case distancePct <= 1.0:
				if lvl.IsResistance {
					add(domain.DirectionLong) // anticipated breakout
				} else {
					add(domain.DirectionShort) // anticipated breakdown
				}
			}
		}
	}
	return opportunities
}

// stopLoss picks the least-risk candidate among an ATR-based stop and stops
// placed just outside same-side level bands, then clamps the distance to
// MaxStopLossPct of entry.
func (g *SignalSynthesizer) stopLoss(bars []domain.Candle, direction domain.SignalDirection, entryPrice float64, srResults map[string]domain.SRResult, timeframes []string) float64 {
	highs, lows, closes := barColumns(bars)
	atr := ta.Last(ta.ATRSeries(highs, lows, closes, g.cfg.ATRPeriod))
	maxStopDistance := entryPrice * g.cfg.MaxStopLossPct / 100
	primary := srResults[timeframes[0]]

	if direction == domain.DirectionLong {
		stop := entryPrice - atr*1.5
		for _, lvl := range primary.Levels {
			if lvl.Mid < entryPrice && !lvl.IsResistance {
				candidate := lvl.Low - (lvl.High-lvl.Low)*0.1
				stop = math.Max(stop, candidate)
			}
		}
		if entryPrice-stop > maxStopDistance {
			stop = entryPrice - maxStopDistance
		}
		return stop
	}

	stop := entryPrice + atr*1.5
	for _, lvl := range primary.Levels {
		if lvl.Mid > entryPrice && lvl.IsResistance {
			candidate := lvl.High + (lvl.High-lvl.Low)*0.1
			stop = math.Min(stop, candidate)
		}
	}
	if stop-entryPrice > maxStopDistance {
		stop = entryPrice + maxStopDistance
	}
	return stop
}

// takeProfit targets the nearest same-side level that still satisfies the
// minimum risk/reward, falling back to the pure risk/reward-derived target.
func (g *SignalSynthesizer) takeProfit(direction domain.SignalDirection, entryPrice, stopLoss float64, srResults map[string]domain.SRResult, timeframes []string) float64 {
	risk := math.Abs(entryPrice - stopLoss)
	minProfit := risk * g.cfg.MinRiskReward
	primary := srResults[timeframes[0]]

	if direction == domain.DirectionLong {
		minTarget := entryPrice + minProfit
		target := minTarget
		for _, lvl := range primary.Levels {
			if lvl.Mid > entryPrice && lvl.IsResistance && lvl.Mid >= minTarget {
				target = math.Min(target, lvl.Mid)
			}
		}
		return target
	}

	minTarget := entryPrice - minProfit
	target := minTarget
	for _, lvl := range primary.Levels {
		if lvl.Mid < entryPrice && !lvl.IsResistance && lvl.Mid <= minTarget {
			target = math.Max(target, lvl.Mid)
		}
	}
	return target
}

func neutralSignal(
	price, confidence, confluenceScore, riskReward float64,
	reasoning []string,
	srResults map[string]domain.SRResult,
	regime domain.RegimeResult,
	confluence *domain.ConfluenceResult,
) domain.TradingSignal {
	return domain.TradingSignal{
		Direction:       domain.DirectionNeutral,
		EntryPrice:      price,
		StopLoss:        price,
		TakeProfit:      price,
		Confidence:      confidence,
		ConfluenceScore: confluenceScore,
		RiskRewardRatio: riskReward,
		Reasoning:       reasoning,
		SRContext:       srResults,
		RegimeContext:   regime,
		Confluence:      confluence,
	}
}
