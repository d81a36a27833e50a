package engine

import (
	"fmt"
	"math"

	"pulsewave/internal/domain"
	"pulsewave/internal/ta"
)

// ConfluenceConfig controls the indicator inputs of the scorer.
type ConfluenceConfig struct {
	RSIPeriod             int
	VolumeMAPeriod        int
	EMATrendPeriod        int
	ProximityThresholdPct float64
}

func DefaultConfluenceConfig() ConfluenceConfig {
	return ConfluenceConfig{
		RSIPeriod:             14,
		VolumeMAPeriod:        20,
		EMATrendPeriod:        50,
		ProximityThresholdPct: 2.0,
	}
}

// ConfluenceScorer rates a candidate direction 0-100 from seven additive
// factors: S/R proximity (20), S/R strength (15), regime alignment (20),
// RSI condition (15), volume confirmation (10), multi-timeframe agreement
// (10) and EMA trend alignment (10).
type ConfluenceScorer struct {
	cfg ConfluenceConfig
}

func NewConfluenceScorer(cfg ConfluenceConfig) *ConfluenceScorer {
	return &ConfluenceScorer{cfg: cfg}
}

// Score evaluates direction against the bar history, the per-timeframe S/R
// results (timeframes gives their order, first entry is the primary) and the
// regime. Every factor has a documented fallback so the scorer never errors.
func (s *ConfluenceScorer) Score(
	bars []domain.Candle,
	srResults map[string]domain.SRResult,
	timeframes []string,
	regime domain.RegimeResult,
	direction domain.SignalDirection,
) domain.ConfluenceResult {
	currentPrice := bars[len(bars)-1].Close
	primary := srResults[timeframes[0]]

	factors := make(map[string]float64, 7)
	reasoning := make([]string, 0, 7)

	proxScore, proxReason := s.scoreSRProximity(currentPrice, primary, direction)
	factors[domain.FactorSRProximity] = proxScore
	reasoning = append(reasoning, fmt.Sprintf("S/R Proximity (%.1f/20): %s", proxScore, proxReason))

	strengthScore, strengthReason := scoreSRStrength(currentPrice, primary, direction)
	factors[domain.FactorSRStrength] = strengthScore
	reasoning = append(reasoning, fmt.Sprintf("S/R Strength (%.1f/15): %s", strengthScore, strengthReason))

	regimeScore, regimeReason := scoreRegimeAlignment(regime, direction)
	factors[domain.FactorRegime] = regimeScore
	reasoning = append(reasoning, fmt.Sprintf("Regime Alignment (%.1f/20): %s", regimeScore, regimeReason))

	rsiScore, rsiReason := s.scoreRSICondition(bars, direction)
	factors[domain.FactorRSI] = rsiScore
	reasoning = append(reasoning, fmt.Sprintf("RSI Condition (%.1f/15): %s", rsiScore, rsiReason))

	volScore, volReason := s.scoreVolumeConfirmation(bars, direction)
	factors[domain.FactorVolume] = volScore
	reasoning = append(reasoning, fmt.Sprintf("Volume Confirmation (%.1f/10): %s", volScore, volReason))

	mtfScore, mtfReason := scoreMTFAgreement(srResults, timeframes, direction)
	factors[domain.FactorMTFAgreement] = mtfScore
	reasoning = append(reasoning, fmt.Sprintf("MTF Agreement (%.1f/10): %s", mtfScore, mtfReason))

	trendScore, trendReason := s.scoreTrendAlignment(bars, direction)
	factors[domain.FactorTrendAlignment] = trendScore
	reasoning = append(reasoning, fmt.Sprintf("Trend Alignment (%.1f/10): %s", trendScore, trendReason))

	total := 0.0
	for _, v := range factors {
		total += v
	}

	return domain.ConfluenceResult{
		TotalScore:      math.Min(total, 100),
		Direction:       direction,
		FactorBreakdown: factors,
		Reasoning:       reasoning,
	}
}

func (s *ConfluenceScorer) scoreSRProximity(price float64, sr domain.SRResult, direction domain.SignalDirection) (float64, string) {
	if len(sr.Levels) == 0 {
		return 0, "No S/R levels available"
	}

	var closest *domain.SRLevel
	for i := range sr.Levels {
		lvl := &sr.Levels[i]
		relevant := false
		if direction == domain.DirectionLong {
			relevant = lvl.Mid < price && !lvl.IsResistance
		} else {
			relevant = lvl.Mid > price && lvl.IsResistance
		}
		if !relevant {
			continue
		}
		if closest == nil || math.Abs(lvl.Mid-price) < math.Abs(closest.Mid-price) {
			closest = lvl
		}
	}
	if closest == nil {
		return 5, fmt.Sprintf("No relevant S/R levels for %s", direction)
	}

	distancePct := math.Abs(closest.Mid-price) / price * 100
	threshold := s.cfg.ProximityThresholdPct

	switch {
	case distancePct <= threshold:
		score := 20 - distancePct/threshold*10
		return math.Max(score, 0), fmt.Sprintf("Very close to %.4f (%.2f%%)", closest.Mid, distancePct)
	case distancePct <= threshold*2:
		score := 10 - (distancePct-threshold)/threshold*5
		return math.Max(score, 0), fmt.Sprintf("Near %.4f (%.2f%%)", closest.Mid, distancePct)
	default:
		return 2, fmt.Sprintf("Far from S/R levels (closest: %.2f%%)", distancePct)
	}
}

func scoreSRStrength(price float64, sr domain.SRResult, direction domain.SignalDirection) (float64, string) {
	if len(sr.Levels) == 0 {
		return 0, "No S/R levels available"
	}

	var strongest *domain.SRLevel
	for i := range sr.Levels {
		lvl := &sr.Levels[i]
		distancePct := math.Abs(lvl.Mid-price) / price * 100
		if distancePct > 5.0 {
			continue
		}
		if direction == domain.DirectionLong && lvl.Mid > price {
			continue
		}
		if direction == domain.DirectionShort && lvl.Mid < price {
			continue
		}
		if strongest == nil || lvl.Strength > strongest.Strength {
			strongest = lvl
		}
	}
	if strongest == nil {
		return 3, "No relevant strong levels nearby"
	}

	switch {
	case strongest.Strength >= 10:
		return 15, fmt.Sprintf("Very strong level (%d touches)", strongest.Strength)
	case strongest.Strength >= 7:
		return 12, fmt.Sprintf("Strong level (%d touches)", strongest.Strength)
	case strongest.Strength >= 5:
		return 8, fmt.Sprintf("Moderate level (%d touches)", strongest.Strength)
	default:
		return 4, fmt.Sprintf("Weak level (%d touches)", strongest.Strength)
	}
}

func scoreRegimeAlignment(regime domain.RegimeResult, direction domain.SignalDirection) (float64, string) {
	if direction == domain.DirectionLong {
		switch regime.Regime {
		case domain.RegimeTrendingUp:
			return regime.Confidence / 100 * 20, fmt.Sprintf("Strong uptrend alignment (%.1f%%)", regime.Confidence)
		case domain.RegimeRanging:
			return 8, "Ranging market - moderate long opportunity"
		case domain.RegimeVolatile:
			return 5, "Volatile market - risky for longs"
		default:
			return 2, "Against downtrend - high risk"
		}
	}
	switch regime.Regime {
	case domain.RegimeTrendingDown:
		return regime.Confidence / 100 * 20, fmt.Sprintf("Strong downtrend alignment (%.1f%%)", regime.Confidence)
	case domain.RegimeRanging:
		return 8, "Ranging market - moderate short opportunity"
	case domain.RegimeVolatile:
		return 5, "Volatile market - risky for shorts"
	default:
		return 2, "Against uptrend - high risk"
	}
}

func (s *ConfluenceScorer) scoreRSICondition(bars []domain.Candle, direction domain.SignalDirection) (float64, string) {
	if len(bars) < s.cfg.RSIPeriod+5 {
		return 5, "Insufficient data for RSI"
	}
	_, _, closes := barColumns(bars)
	rsi := ta.Last(ta.RSISeries(closes, s.cfg.RSIPeriod))

	if direction == domain.DirectionLong {
		switch {
		case rsi <= 30:
			return 15, fmt.Sprintf("RSI oversold (%.1f) - strong long signal", rsi)
		case rsi <= 40:
			return 10, fmt.Sprintf("RSI below 40 (%.1f) - good long setup", rsi)
		case rsi <= 50:
			return 6, fmt.Sprintf("RSI neutral-bearish (%.1f)", rsi)
		case rsi <= 70:
			return 3, fmt.Sprintf("RSI rising (%.1f) - late to long", rsi)
		default:
			return 1, fmt.Sprintf("RSI overbought (%.1f) - poor long entry", rsi)
		}
	}
	switch {
	case rsi >= 70:
		return 15, fmt.Sprintf("RSI overbought (%.1f) - strong short signal", rsi)
	case rsi >= 60:
		return 10, fmt.Sprintf("RSI above 60 (%.1f) - good short setup", rsi)
	case rsi >= 50:
		return 6, fmt.Sprintf("RSI neutral-bullish (%.1f)", rsi)
	case rsi >= 30:
		return 3, fmt.Sprintf("RSI falling (%.1f) - late to short", rsi)
	default:
		return 1, fmt.Sprintf("RSI oversold (%.1f) - poor short entry", rsi)
	}
}

func (s *ConfluenceScorer) scoreVolumeConfirmation(bars []domain.Candle, direction domain.SignalDirection) (float64, string) {
	if len(bars) < s.cfg.VolumeMAPeriod+5 {
		return 5, "No volume data or insufficient history"
	}

	volumes := make([]float64, len(bars))
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	currentVolume := volumes[len(volumes)-1]
	avgVolume := ta.Last(ta.SMASeries(volumes, s.cfg.VolumeMAPeriod))

	recentAvg := mean(volumes[len(volumes)-3:])
	previousAvg := mean(volumes[len(volumes)-6 : len(volumes)-3])

	volumeRatio := 1.0
	if avgVolume > 0 {
		volumeRatio = currentVolume / avgVolume
	}
	volumeTrend := 1.0
	if previousAvg > 0 {
		volumeTrend = recentAvg / previousAvg
	}

	prevClose := bars[len(bars)-2].Close
	priceChange := (bars[len(bars)-1].Close - prevClose) / prevClose

	priceConfirms := priceChange > 0
	if direction == domain.DirectionShort {
		priceConfirms = priceChange < 0
	}

	switch {
	case volumeRatio > 1.5 && priceConfirms:
		return 10, fmt.Sprintf("Strong volume confirmation (%.1fx avg)", volumeRatio)
	case volumeRatio > 1.2 && volumeTrend > 1.1:
		return 7, fmt.Sprintf("Good volume support (%.1fx avg)", volumeRatio)
	case volumeRatio > 0.8:
		return 5, fmt.Sprintf("Average volume (%.1fx avg)", volumeRatio)
	default:
		return 2, fmt.Sprintf("Low volume concern (%.1fx avg)", volumeRatio)
	}
}

func scoreMTFAgreement(srResults map[string]domain.SRResult, timeframes []string, direction domain.SignalDirection) (float64, string) {
	if len(timeframes) <= 1 {
		return 5, "Single timeframe analysis"
	}

	currentPrice := srResults[timeframes[0]].CurrentPrice
	supporting := 0
	for _, tf := range timeframes {
		sr := srResults[tf]
		for _, lvl := range sr.Levels {
			distancePct := math.Abs(lvl.Mid-currentPrice) / currentPrice * 100
			if distancePct > 3.0 {
				continue
			}
			if direction == domain.DirectionLong && lvl.Mid <= currentPrice ||
				direction == domain.DirectionShort && lvl.Mid >= currentPrice {
				supporting++
				break
			}
		}
	}

	ratio := float64(supporting) / float64(len(timeframes))
	label := fmt.Sprintf("(%d/%d)", supporting, len(timeframes))
	switch {
	case ratio >= 0.8:
		return 10, "Strong MTF agreement " + label
	case ratio >= 0.6:
		return 7, "Good MTF agreement " + label
	case ratio >= 0.4:
		return 5, "Moderate MTF agreement " + label
	default:
		return 2, "Poor MTF agreement " + label
	}
}

func (s *ConfluenceScorer) scoreTrendAlignment(bars []domain.Candle, direction domain.SignalDirection) (float64, string) {
	if len(bars) < s.cfg.EMATrendPeriod+5 {
		return 5, "Insufficient data for trend analysis"
	}

	_, _, closes := barColumns(bars)
	ema := ta.EMASeries(closes, s.cfg.EMATrendPeriod)

	currentPrice := closes[len(closes)-1]
	currentEMA := ema[len(ema)-1]
	emaSlope := (ema[len(ema)-1] - ema[len(ema)-5]) / ema[len(ema)-5] * 100
	priceVsEMA := (currentPrice - currentEMA) / currentEMA * 100

	if direction == domain.DirectionLong {
		switch {
		case priceVsEMA > 1 && emaSlope > 0.1:
			return 10, fmt.Sprintf("Strong uptrend alignment (Price %.1f%% above EMA)", priceVsEMA)
		case priceVsEMA > 0 && emaSlope > 0:
			return 7, "Good uptrend alignment"
		case priceVsEMA > -1:
			return 5, "Near EMA support"
		default:
			return 2, fmt.Sprintf("Below EMA trend (%.1f%%)", priceVsEMA)
		}
	}
	switch {
	case priceVsEMA < -1 && emaSlope < -0.1:
		return 10, fmt.Sprintf("Strong downtrend alignment (Price %.1f%% below EMA)", math.Abs(priceVsEMA))
	case priceVsEMA < 0 && emaSlope < 0:
		return 7, "Good downtrend alignment"
	case priceVsEMA < 1:
		return 5, "Near EMA resistance"
	default:
		return 2, fmt.Sprintf("Above EMA trend (%.1f%%)", priceVsEMA)
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
