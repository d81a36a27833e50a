package engine

import (
	"math"

	"pulsewave/internal/domain"
	"pulsewave/internal/ta"
)

// RegimeConfig controls the indicator periods used for classification.
type RegimeConfig struct {
	ATRPeriod    int
	ADXPeriod    int
	BBPeriod     int
	BBStdDev     float64
	EMAFast      int
	EMASlow      int
	MomentumFast int
	MomentumSlow int
}

func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		ATRPeriod:    14,
		ADXPeriod:    14,
		BBPeriod:     20,
		BBStdDev:     2.0,
		EMAFast:      20,
		EMASlow:      50,
		MomentumFast: 5,
		MomentumSlow: 20,
	}
}

// RegimeClassifier classifies market behavior from volatility, trend
// strength and momentum alignment.
type RegimeClassifier struct {
	cfg RegimeConfig
}

func NewRegimeClassifier(cfg RegimeConfig) *RegimeClassifier {
	return &RegimeClassifier{cfg: cfg}
}

// Classify computes the current market regime with a 0-100 confidence.
// With fewer than longest-period+10 bars it returns RANGING at 50 with no
// component breakdown rather than an error.
func (r *RegimeClassifier) Classify(bars []domain.Candle) domain.RegimeResult {
	minBars := maxInt(r.cfg.ADXPeriod, r.cfg.BBPeriod, r.cfg.EMASlow, r.cfg.MomentumSlow) + 10
	if len(bars) < minBars {
		return domain.RegimeResult{
			Regime:     domain.RegimeRanging,
			Confidence: 50,
			Components: map[string]float64{},
		}
	}

	highs, lows, closes := barColumns(bars)

	atr := ta.ATRSeries(highs, lows, closes, r.cfg.ATRPeriod)
	adx := ta.Last(ta.ADXSeries(highs, lows, atr, r.cfg.ADXPeriod))
	bbWidth := ta.Last(ta.BollingerWidthSeries(closes, r.cfg.BBPeriod, r.cfg.BBStdDev))

	emaFast := ta.EMASeries(closes, r.cfg.EMAFast)
	emaSlow := ta.EMASeries(closes, r.cfg.EMASlow)
	lastClose := closes[len(closes)-1]
	priceVsFast := (lastClose - ta.Last(emaFast)) / ta.Last(emaFast) * 100
	priceVsSlow := (lastClose - ta.Last(emaSlow)) / ta.Last(emaSlow) * 100
	emaTrend := (ta.Last(emaFast) - ta.Last(emaSlow)) / ta.Last(emaSlow) * 100

	momentumFast := ta.Last(ta.MomentumSeries(closes, r.cfg.MomentumFast))
	momentumSlow := ta.Last(ta.MomentumSeries(closes, r.cfg.MomentumSlow))

	// Current ATR relative to its own 20-bar average.
	atrMA := ta.Last(ta.SMASeries(atr, 20))
	atrRatio := 1.0
	if atrMA > 0 {
		atrRatio = ta.Last(atr) / atrMA
	}

	trendStrength, isUptrend := scoreTrendStrength(adx, emaTrend)
	volatilityScore := scoreVolatility(atrRatio, bbWidth)
	momentumAlignment, isMomentumBullish := scoreMomentumAlignment(priceVsFast, priceVsSlow, momentumFast, momentumSlow)

	components := map[string]float64{
		domain.ComponentATRRatio:          atrRatio,
		domain.ComponentADX:               adx,
		domain.ComponentBBWidth:           bbWidth,
		domain.ComponentTrendStrength:     trendStrength,
		domain.ComponentVolatilityScore:   volatilityScore,
		domain.ComponentMomentumAlignment: momentumAlignment,
		domain.ComponentEMATrend:          emaTrend,
		domain.ComponentIsUptrend:         boolToFloat(isUptrend),
		domain.ComponentMomentumBullish:   boolToFloat(isMomentumBullish),
	}

	var regime domain.Regime
	var confidence float64

	switch {
	case volatilityScore > 0.7 && trendStrength > 0.6 && momentumAlignment > 0.7:
		if isUptrend && isMomentumBullish {
			regime = domain.RegimeTrendingUp
		} else {
			regime = domain.RegimeTrendingDown
		}
		confidence = math.Min(85+trendStrength*15, 95)
	case volatilityScore > 0.7:
		regime = domain.RegimeVolatile
		confidence = math.Min(60+volatilityScore*30, 85)
	case trendStrength > 0.5 && momentumAlignment > 0.6:
		if isUptrend == isMomentumBullish {
			if isUptrend {
				regime = domain.RegimeTrendingUp
			} else {
				regime = domain.RegimeTrendingDown
			}
			confidence = math.Min(70+trendStrength*20+momentumAlignment*10, 95)
		} else {
			regime = domain.RegimeRanging
			confidence = 60
		}
	default:
		regime = domain.RegimeRanging
		confidence = math.Min(50+(1-trendStrength)*20+(1-momentumAlignment)*15, 80)
	}

	return domain.RegimeResult{
		Regime:     regime,
		Confidence: confidence,
		Components: components,
	}
}

// scoreTrendStrength maps ADX above 25 onto [0,1]; direction comes from the
// fast/slow EMA spread.
func scoreTrendStrength(adx, emaTrend float64) (float64, bool) {
	strength := 0.0
	if adx >= 25 {
		strength = math.Min((adx-25)/25, 1.0)
	}
	return strength, emaTrend > 0
}

func scoreVolatility(atrRatio, bbWidth float64) float64 {
	atrScore := math.Min(math.Max(atrRatio-1.0, 0)/1.0, 1.0)
	bbScore := math.Min(math.Max(bbWidth-2.0, 0)/8.0, 1.0)
	return (atrScore + bbScore) / 2
}

// scoreMomentumAlignment counts agreeing bullish/bearish momentum signals.
// Three of four agreeing fixes the direction; otherwise it is mixed and the
// fast/slow momentum comparison breaks the tie.
func scoreMomentumAlignment(priceVsFast, priceVsSlow, momentumFast, momentumSlow float64) (float64, bool) {
	signals := []bool{priceVsFast > 0, priceVsSlow > 0, momentumFast > 0, momentumSlow > 0}
	bullish := 0
	for _, s := range signals {
		if s {
			bullish++
		}
	}
	bearish := len(signals) - bullish

	switch {
	case bullish >= 3:
		return float64(bullish) / 4, true
	case bearish >= 3:
		return float64(bearish) / 4, false
	default:
		return 0.5, momentumFast > momentumSlow
	}
}

func barColumns(bars []domain.Candle) (highs, lows, closes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	return highs, lows, closes
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func maxInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
