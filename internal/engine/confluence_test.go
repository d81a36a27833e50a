package engine

import (
	"math"
	"strings"
	"testing"

	"pulsewave/internal/domain"
)

func supportSRResults(currentPrice float64) map[string]domain.SRResult {
	return map[string]domain.SRResult{
		"1h": {
			Levels: []domain.SRLevel{
				{Mid: 98, High: 98.5, Low: 97.5, Strength: 6, IsResistance: false, DistancePct: 2},
			},
			Timeframe:    "1h",
			CurrentPrice: currentPrice,
		},
	}
}

func TestScoreFactorValues(t *testing.T) {
	scorer := NewConfluenceScorer(DefaultConfluenceConfig())
	bars := barsFromCloses(flatCloses(30, 100))
	regime := domain.RegimeResult{Regime: domain.RegimeRanging, Confidence: 70}

	result := scorer.Score(bars, supportSRResults(100), []string{"1h"}, regime, domain.DirectionLong)

	// Support at 98 is exactly on the 2% proximity threshold.
	if got := result.FactorBreakdown[domain.FactorSRProximity]; math.Abs(got-10) > 1e-9 {
		t.Fatalf("expected proximity score 10, got %f", got)
	}
	// Six touches lands in the 5-7 tier.
	if got := result.FactorBreakdown[domain.FactorSRStrength]; got != 8 {
		t.Fatalf("expected strength score 8, got %f", got)
	}
	if got := result.FactorBreakdown[domain.FactorRegime]; got != 8 {
		t.Fatalf("expected ranging regime score 8, got %f", got)
	}
	// Flat closes leave RSI undefined, which falls through to the worst tier.
	if got := result.FactorBreakdown[domain.FactorRSI]; got != 1 {
		t.Fatalf("expected RSI score 1, got %f", got)
	}
	if got := result.FactorBreakdown[domain.FactorVolume]; got != 5 {
		t.Fatalf("expected average-volume score 5, got %f", got)
	}
	if got := result.FactorBreakdown[domain.FactorMTFAgreement]; got != 5 {
		t.Fatalf("expected single-timeframe score 5, got %f", got)
	}
	// 30 bars is under the 50-period trend EMA requirement.
	if got := result.FactorBreakdown[domain.FactorTrendAlignment]; got != 5 {
		t.Fatalf("expected trend fallback score 5, got %f", got)
	}

	if math.Abs(result.TotalScore-42) > 1e-9 {
		t.Fatalf("expected total 42, got %f", result.TotalScore)
	}
	if result.Direction != domain.DirectionLong {
		t.Fatalf("expected LONG result, got %s", result.Direction)
	}
}

func TestScoreFactorCaps(t *testing.T) {
	caps := map[string]float64{
		domain.FactorSRProximity:    20,
		domain.FactorSRStrength:     15,
		domain.FactorRegime:         20,
		domain.FactorRSI:            15,
		domain.FactorVolume:         10,
		domain.FactorMTFAgreement:   10,
		domain.FactorTrendAlignment: 10,
	}

	scorer := NewConfluenceScorer(DefaultConfluenceConfig())
	bars := barsFromCloses(oscillatingCloses(8))
	sr := NewSREngine(DefaultSRConfig())
	srResults := map[string]domain.SRResult{"1h": sr.Calculate(bars, "1h")}
	regime := NewRegimeClassifier(DefaultRegimeConfig()).Classify(bars)

	for _, direction := range []domain.SignalDirection{domain.DirectionLong, domain.DirectionShort} {
		result := scorer.Score(bars, srResults, []string{"1h"}, regime, direction)

		if len(result.FactorBreakdown) != len(caps) {
			t.Fatalf("expected %d factors, got %d", len(caps), len(result.FactorBreakdown))
		}
		sum := 0.0
		for name, cap := range caps {
			score, ok := result.FactorBreakdown[name]
			if !ok {
				t.Fatalf("missing factor %s", name)
			}
			if score < 0 || score > cap {
				t.Fatalf("factor %s out of range: %f (cap %f)", name, score, cap)
			}
			sum += score
		}
		if math.Abs(result.TotalScore-math.Min(sum, 100)) > 1e-9 {
			t.Fatalf("total %f does not match clamped factor sum %f", result.TotalScore, sum)
		}
		if len(result.Reasoning) != len(caps) {
			t.Fatalf("expected one reasoning entry per factor, got %d", len(result.Reasoning))
		}
	}
}

func TestScoreRegimeAlignmentTrendMatch(t *testing.T) {
	up := domain.RegimeResult{Regime: domain.RegimeTrendingUp, Confidence: 90}

	score, _ := scoreRegimeAlignment(up, domain.DirectionLong)
	if math.Abs(score-18) > 1e-9 {
		t.Fatalf("expected 90%% confidence to score 18, got %f", score)
	}
	score, reason := scoreRegimeAlignment(up, domain.DirectionShort)
	if score != 2 || !strings.Contains(reason, "Against uptrend") {
		t.Fatalf("expected counter-trend short to score 2, got %f (%s)", score, reason)
	}
}

func TestScoreNoLevels(t *testing.T) {
	scorer := NewConfluenceScorer(DefaultConfluenceConfig())
	bars := barsFromCloses(flatCloses(30, 100))
	srResults := map[string]domain.SRResult{"1h": {Timeframe: "1h", CurrentPrice: 100}}
	regime := domain.RegimeResult{Regime: domain.RegimeRanging, Confidence: 50}

	result := scorer.Score(bars, srResults, []string{"1h"}, regime, domain.DirectionLong)

	if result.FactorBreakdown[domain.FactorSRProximity] != 0 {
		t.Fatalf("expected zero proximity without levels, got %f", result.FactorBreakdown[domain.FactorSRProximity])
	}
	if result.FactorBreakdown[domain.FactorSRStrength] != 0 {
		t.Fatalf("expected zero strength without levels, got %f", result.FactorBreakdown[domain.FactorSRStrength])
	}
}

func TestScoreMTFAgreement(t *testing.T) {
	srResults := map[string]domain.SRResult{
		"1h": {
			Levels:       []domain.SRLevel{{Mid: 99, IsResistance: false}},
			CurrentPrice: 100,
		},
		"4h": {
			Levels:       []domain.SRLevel{{Mid: 98.5, IsResistance: false}},
			CurrentPrice: 100,
		},
		"1d": {CurrentPrice: 100},
	}

	// 2 of 3 timeframes have a support within 3%.
	score, _ := scoreMTFAgreement(srResults, []string{"1h", "4h", "1d"}, domain.DirectionLong)
	if score != 7 {
		t.Fatalf("expected 7 for 2/3 agreement, got %f", score)
	}
	score, _ = scoreMTFAgreement(srResults, []string{"1h", "4h", "1d"}, domain.DirectionShort)
	if score != 2 {
		t.Fatalf("expected 2 for 0/3 agreement, got %f", score)
	}
}
