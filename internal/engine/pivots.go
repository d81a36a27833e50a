// Package engine contains the analysis pipeline: pivot detection, S/R
// clustering, regime classification, confluence scoring and signal synthesis.
package engine

import "pulsewave/internal/domain"

// PivotKind distinguishes local highs from local lows.
type PivotKind int

const (
	PivotHigh PivotKind = iota
	PivotLow
)

// PivotSource selects which bar prices anchor pivot detection.
type PivotSource int

const (
	SourceHighLow PivotSource = iota
	SourceCloseOpen
)

// Pivot is a confirmed local extreme in a bar series.
type Pivot struct {
	Index int
	Price float64
	Kind  PivotKind
}

// DetectPivots scans bars for local extremes confirmed by period bars on
// both sides, using strict inequality. At most one pivot is emitted per
// index; a pivot high takes precedence over a pivot low at the same bar.
func DetectPivots(bars []domain.Candle, period int, source PivotSource) []Pivot {
	n := len(bars)
	if period <= 0 || n < 2*period+1 {
		return nil
	}

	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		switch source {
		case SourceCloseOpen:
			highs[i] = maxFloat(b.Close, b.Open)
			lows[i] = minFloat(b.Close, b.Open)
		default:
			highs[i] = b.High
			lows[i] = b.Low
		}
	}

	var pivots []Pivot
	for i := period; i < n-period; i++ {
		if isPivotHigh(highs, i, period) {
			pivots = append(pivots, Pivot{Index: i, Price: highs[i], Kind: PivotHigh})
		} else if isPivotLow(lows, i, period) {
			pivots = append(pivots, Pivot{Index: i, Price: lows[i], Kind: PivotLow})
		}
	}
	return pivots
}

func isPivotHigh(highs []float64, i, period int) bool {
	center := highs[i]
	for j := i - period; j < i; j++ {
		if highs[j] >= center {
			return false
		}
	}
	for j := i + 1; j <= i+period; j++ {
		if highs[j] >= center {
			return false
		}
	}
	return true
}

func isPivotLow(lows []float64, i, period int) bool {
	center := lows[i]
	for j := i - period; j < i; j++ {
		if lows[j] <= center {
			return false
		}
	}
	for j := i + 1; j <= i+period; j++ {
		if lows[j] <= center {
			return false
		}
	}
	return true
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
