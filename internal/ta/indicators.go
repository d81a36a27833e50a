// Package ta provides the indicator series the analysis engine is built on.
// All series functions return slices aligned with their input, padded with
// NaN where a value is not yet defined, so callers can index by bar.
package ta

import "math"

// MeanStd returns the mean and sample standard deviation of values.
func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if len(values) < 2 {
		return mean, 0
	}
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values) - 1)
	return mean, math.Sqrt(variance)
}

// SMASeries is a rolling mean over period values. Windows that are
// incomplete or contain NaN yield NaN.
func SMASeries(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		valid := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMASeries is an exponential moving average seeded with the first value.
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if period <= 1 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSISeries computes RSI from simple rolling averages of gains and losses.
func RSISeries(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}
	gains := nanSlice(len(closes))
	losses := nanSlice(len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gains[i] = math.Max(delta, 0)
		losses[i] = math.Max(-delta, 0)
	}
	avgGain := SMASeries(gains, period)
	avgLoss := SMASeries(losses, period)
	for i := range closes {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		if avgLoss[i] == 0 {
			if avgGain[i] > 0 {
				out[i] = 100
			}
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - (100 / (1 + rs))
	}
	return out
}

// TrueRangeSeries is max(high-low, |high-prevClose|, |low-prevClose|).
// The first element has no previous close and is NaN.
func TrueRangeSeries(highs, lows, closes []float64) []float64 {
	out := nanSlice(len(closes))
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATRSeries is a rolling mean of the true range.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	return SMASeries(TrueRangeSeries(highs, lows, closes), period)
}

// ADXSeries derives directional strength from smoothed +DM/-DM against a
// precomputed ATR series, then smooths the resulting DX.
func ADXSeries(highs, lows, atr []float64, period int) []float64 {
	n := len(highs)
	plusDM := nanSlice(n)
	minusDM := nanSlice(n)
	for i := 1; i < n; i++ {
		plusDM[i] = math.Max(highs[i]-highs[i-1], 0)
		minusDM[i] = math.Max(lows[i-1]-lows[i], 0)
	}
	plusMA := SMASeries(plusDM, period)
	minusMA := SMASeries(minusDM, period)

	dx := nanSlice(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(plusMA[i]) || math.IsNaN(minusMA[i]) || math.IsNaN(atr[i]) || atr[i] == 0 {
			continue
		}
		plusDI := 100 * plusMA[i] / atr[i]
		minusDI := 100 * minusMA[i] / atr[i]
		if plusDI+minusDI == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}
	return SMASeries(dx, period)
}

// BollingerWidthSeries is the band width as a percentage of the middle band.
func BollingerWidthSeries(closes []float64, period int, stdDevs float64) []float64 {
	out := nanSlice(len(closes))
	if period <= 1 {
		return out
	}
	for i := period - 1; i < len(closes); i++ {
		mean, std := MeanStd(closes[i-period+1 : i+1])
		if mean == 0 {
			continue
		}
		out[i] = (2 * stdDevs * std / mean) * 100
	}
	return out
}

// MomentumSeries is the percent change over lag bars.
func MomentumSeries(closes []float64, lag int) []float64 {
	out := nanSlice(len(closes))
	if lag <= 0 {
		return out
	}
	for i := lag; i < len(closes); i++ {
		base := closes[i-lag]
		if base == 0 {
			continue
		}
		out[i] = (closes[i] - base) / base * 100
	}
	return out
}

// Last returns the final value of a series, or NaN for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
