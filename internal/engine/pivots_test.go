package engine

import (
	"testing"

	"pulsewave/internal/domain"
)

func spikedBars(n, spikeAt int, spikeHigh float64) []domain.Candle {
	bars := barsFromCloses(flatCloses(n, 100))
	bars[spikeAt].High = spikeHigh
	return bars
}

func TestDetectPivotsFindsSingleHigh(t *testing.T) {
	bars := spikedBars(30, 12, 110)

	pivots := DetectPivots(bars, 5, SourceHighLow)
	if len(pivots) != 1 {
		t.Fatalf("expected 1 pivot, got %d", len(pivots))
	}
	p := pivots[0]
	if p.Index != 12 || p.Kind != PivotHigh || p.Price != 110 {
		t.Fatalf("unexpected pivot %+v", p)
	}
}

func TestDetectPivotsFindsLow(t *testing.T) {
	bars := barsFromCloses(flatCloses(30, 100))
	bars[15].Low = 90

	pivots := DetectPivots(bars, 5, SourceHighLow)
	if len(pivots) != 1 {
		t.Fatalf("expected 1 pivot, got %d", len(pivots))
	}
	if pivots[0].Kind != PivotLow || pivots[0].Price != 90 {
		t.Fatalf("unexpected pivot %+v", pivots[0])
	}
}

func TestDetectPivotsRespectsBoundaries(t *testing.T) {
	// Spike too close to the start: no full left window.
	bars := spikedBars(30, 3, 110)
	if pivots := DetectPivots(bars, 5, SourceHighLow); len(pivots) != 0 {
		t.Fatalf("expected no pivots near the boundary, got %d", len(pivots))
	}
}

func TestDetectPivotsStrictInequality(t *testing.T) {
	// Two equal highs inside each other's window cancel out.
	bars := barsFromCloses(flatCloses(30, 100))
	bars[12].High = 110
	bars[15].High = 110

	if pivots := DetectPivots(bars, 5, SourceHighLow); len(pivots) != 0 {
		t.Fatalf("expected ties to produce no pivots, got %d", len(pivots))
	}
}

func TestDetectPivotsHighWinsOverLowAtSameIndex(t *testing.T) {
	bars := barsFromCloses(flatCloses(30, 100))
	bars[12].High = 110
	bars[12].Low = 90

	pivots := DetectPivots(bars, 5, SourceHighLow)
	if len(pivots) != 1 {
		t.Fatalf("expected 1 pivot, got %d", len(pivots))
	}
	if pivots[0].Kind != PivotHigh {
		t.Fatalf("expected the high to win at a shared index, got %+v", pivots[0])
	}
}

func TestDetectPivotsCloseOpenSourceIgnoresWicks(t *testing.T) {
	// The spike lives only in the wick, so the Close/Open source skips it.
	bars := spikedBars(30, 12, 110)

	if pivots := DetectPivots(bars, 5, SourceCloseOpen); len(pivots) != 0 {
		t.Fatalf("expected no pivots from body prices, got %d", len(pivots))
	}
}

func TestDetectPivotsInsufficientBars(t *testing.T) {
	bars := barsFromCloses(flatCloses(10, 100))
	if pivots := DetectPivots(bars, 5, SourceHighLow); pivots != nil {
		t.Fatalf("expected nil for short series, got %v", pivots)
	}
}
