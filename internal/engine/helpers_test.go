package engine

import (
	"time"

	"pulsewave/internal/domain"
)

// barsFromCloses builds a synthetic hourly series with a fixed 0.1 wick on
// both sides of each close.
func barsFromCloses(closes []float64) []domain.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Candle, len(closes))
	for i, c := range closes {
		bars[i] = domain.Candle{
			Symbol:   "BTC",
			Interval: "1h",
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c + 0.1,
			Low:      c - 0.1,
			Close:    c,
			Volume:   1000,
		}
	}
	return bars
}

func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

// oscillatingCloses sweeps between a trough near 100 and a peak near 110 in
// 20-bar triangle cycles. Small per-cycle offsets keep every local extreme
// strict so pivot detection sees one pivot per trough and peak.
func oscillatingCloses(cycles int) []float64 {
	var closes []float64
	for c := 0; c < cycles; c++ {
		trough := 100 + 0.05*float64(c%3)
		peak := 110 + 0.05*float64((c+1)%3)
		for i := 10; i >= 0; i-- {
			closes = append(closes, trough+(peak-trough)*float64(i)/10)
		}
		for i := 1; i <= 9; i++ {
			closes = append(closes, trough+(peak-trough)*float64(i)/10)
		}
	}
	return closes
}
