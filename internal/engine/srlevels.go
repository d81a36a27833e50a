package engine

import (
	"math"
	"sort"

	"pulsewave/internal/domain"
)

// SRConfig controls pivot detection and level clustering.
type SRConfig struct {
	PivotPeriod     int
	MaxPivots       int
	ChannelWidthPct float64
	MaxLevels       int
	MinStrength     int
	LookbackPeriod  int
	Source          PivotSource
}

// DefaultSRConfig mirrors the Pine Script defaults the algorithm came from.
func DefaultSRConfig() SRConfig {
	return SRConfig{
		PivotPeriod:     10,
		MaxPivots:       60,
		ChannelWidthPct: 10,
		MaxLevels:       8,
		MinStrength:     3,
		LookbackPeriod:  400,
		Source:          SourceHighLow,
	}
}

// SREngine computes support/resistance levels from pivot clusters.
type SREngine struct {
	cfg SRConfig
}

func NewSREngine(cfg SRConfig) *SREngine {
	return &SREngine{cfg: cfg}
}

type cluster struct {
	high     float64
	low      float64
	strength int
}

// Calculate detects pivots, clusters them within the dynamic channel width
// and converts accepted clusters into levels sorted by strength. It degrades
// to an empty level list when there is not enough history or too few pivots.
func (e *SREngine) Calculate(bars []domain.Candle, timeframe string) domain.SRResult {
	if len(bars) == 0 {
		return domain.SRResult{Timeframe: timeframe}
	}
	currentPrice := bars[len(bars)-1].Close
	if len(bars) < e.cfg.PivotPeriod*2+1 {
		return domain.SRResult{Timeframe: timeframe, CurrentPrice: currentPrice}
	}

	pivots := DetectPivots(bars, e.cfg.PivotPeriod, e.cfg.Source)

	// Most recent pivots first; clustering order is part of the algorithm.
	prices := make([]float64, 0, e.cfg.MaxPivots)
	for i := len(pivots) - 1; i >= 0 && len(prices) < e.cfg.MaxPivots; i-- {
		prices = append(prices, pivots[i].Price)
	}

	if len(prices) < e.cfg.MinStrength {
		return domain.SRResult{
			Timeframe:    timeframe,
			CurrentPrice: currentPrice,
			PivotCount:   len(prices),
		}
	}

	channelWidth := e.channelWidth(bars)
	clusters := clusterPivots(prices, channelWidth, e.cfg.MinStrength, e.cfg.MaxLevels)

	levels := make([]domain.SRLevel, 0, len(clusters))
	for _, c := range clusters {
		mid := roundTo((c.high+c.low)/2, 8)
		levels = append(levels, domain.SRLevel{
			Mid:          mid,
			High:         c.high,
			Low:          c.low,
			Strength:     c.strength,
			IsResistance: mid >= currentPrice,
			DistancePct:  math.Abs(mid-currentPrice) / currentPrice * 100,
		})
	}

	return domain.SRResult{
		Levels:       levels,
		Timeframe:    timeframe,
		CurrentPrice: currentPrice,
		ChannelWidth: channelWidth,
		PivotCount:   len(prices),
	}
}

// CalculateMultiTimeframe runs Calculate per timeframe. A panic while
// computing one timeframe yields an empty result for that timeframe only.
func (e *SREngine) CalculateMultiTimeframe(series map[string][]domain.Candle, timeframes []string) map[string]domain.SRResult {
	results := make(map[string]domain.SRResult, len(timeframes))
	for _, tf := range timeframes {
		bars := series[tf]
		results[tf] = e.calculateSafe(bars, tf)
	}
	return results
}

func (e *SREngine) calculateSafe(bars []domain.Candle, tf string) (result domain.SRResult) {
	defer func() {
		if r := recover(); r != nil {
			result = domain.SRResult{Timeframe: tf}
			if len(bars) > 0 {
				result.CurrentPrice = bars[len(bars)-1].Close
			}
		}
	}()
	return e.Calculate(bars, tf)
}

// channelWidth is the trailing high-low range scaled by the configured pct.
func (e *SREngine) channelWidth(bars []domain.Candle) float64 {
	window := bars
	if len(bars) > e.cfg.LookbackPeriod {
		window = bars[len(bars)-e.cfg.LookbackPeriod:]
	}
	highest := window[0].High
	lowest := window[0].Low
	for _, b := range window[1:] {
		if b.High > highest {
			highest = b.High
		}
		if b.Low < lowest {
			lowest = b.Low
		}
	}
	return (highest - lowest) * e.cfg.ChannelWidthPct / 100
}

// clusterPivots greedily grows one band per pivot, in the supplied order,
// then resolves overlaps by touch count. On equal strength the cluster that
// was accepted first wins. The result is sorted by strength descending and
// truncated to maxLevels.
func clusterPivots(pivots []float64, channelWidth float64, minStrength, maxLevels int) []cluster {
	var clusters []cluster

	for _, base := range pivots {
		c := cluster{high: base, low: base}
		numPivots := 0

		for _, p := range pivots {
			var width float64
			if p <= c.low {
				width = c.high - p
			} else {
				width = p - c.low
			}
			if width <= channelWidth {
				if p <= c.high {
					c.low = minFloat(c.low, p)
				} else {
					c.high = maxFloat(c.high, p)
				}
				numPivots++
			}
		}
		c.strength = numPivots

		valid := true
		var losers []int
		for k, existing := range clusters {
			if existing.low <= c.high && c.low <= existing.high {
				if numPivots > existing.strength {
					losers = append(losers, k)
				} else {
					valid = false
					break
				}
			}
		}

		if valid && numPivots >= minStrength {
			for i := len(losers) - 1; i >= 0; i-- {
				clusters = append(clusters[:losers[i]], clusters[losers[i]+1:]...)
			}
			clusters = append(clusters, c)
		}
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].strength > clusters[j].strength
	})
	if len(clusters) > maxLevels {
		clusters = clusters[:maxLevels]
	}
	return clusters
}

// NearestLevels returns the closest support below and resistance above price.
func NearestLevels(result domain.SRResult, price float64) (support, resistance *domain.SRLevel) {
	for i := range result.Levels {
		lvl := &result.Levels[i]
		switch {
		case lvl.Mid < price:
			if support == nil || lvl.Mid > support.Mid {
				support = lvl
			}
		case lvl.Mid > price:
			if resistance == nil || lvl.Mid < resistance.Mid {
				resistance = lvl
			}
		}
	}
	return support, resistance
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
