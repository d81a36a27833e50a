package domain

import (
	"fmt"
	"time"
)

// Candle represents a single OHLCV bar for an asset at a given interval.
type Candle struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Validate checks the structural invariants of a single candle.
func (c Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle %s/%s at %s: non-positive price", c.Symbol, c.Interval, c.OpenTime)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle %s/%s at %s: negative volume", c.Symbol, c.Interval, c.OpenTime)
	}
	if c.High < c.Open || c.High < c.Close {
		return fmt.Errorf("candle %s/%s at %s: high below body", c.Symbol, c.Interval, c.OpenTime)
	}
	if c.Low > c.Open || c.Low > c.Close {
		return fmt.Errorf("candle %s/%s at %s: low above body", c.Symbol, c.Interval, c.OpenTime)
	}
	return nil
}

// ValidateSeries checks per-candle invariants plus strictly increasing open times.
func ValidateSeries(candles []Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && !candles[i-1].OpenTime.Before(c.OpenTime) {
			return fmt.Errorf("candle series not strictly increasing at index %d (%s)", i, c.OpenTime)
		}
	}
	return nil
}

// PriceSnapshot represents the latest price data for an asset.
type PriceSnapshot struct {
	Symbol          string  `json:"symbol"`
	PriceUSD        float64 `json:"price_usd"`
	Volume24h       float64 `json:"volume_24h"`
	Change24hPct    float64 `json:"change_24h_pct"`
	LastUpdatedUnix int64   `json:"last_updated_unix"`
}

// BinancePair maps internal symbols to Binance spot trading pairs.
var BinancePair = map[string]string{
	"BTC":  "BTCUSDT",
	"ETH":  "ETHUSDT",
	"SOL":  "SOLUSDT",
	"XRP":  "XRPUSDT",
	"ADA":  "ADAUSDT",
	"DOGE": "DOGEUSDT",
	"DOT":  "DOTUSDT",
	"AVAX": "AVAXUSDT",
	"LINK": "LINKUSDT",
	"BNB":  "BNBUSDT",
}

// SupportedSymbols lists all tracked crypto symbols.
var SupportedSymbols = []string{
	"BTC", "ETH", "SOL", "XRP", "ADA",
	"DOGE", "DOT", "AVAX", "LINK", "BNB",
}

// SupportedIntervals defines the candle intervals we store and analyze.
var SupportedIntervals = []string{"5m", "15m", "1h", "4h", "1d"}

// IsSupportedInterval reports whether interval is one of SupportedIntervals.
func IsSupportedInterval(interval string) bool {
	for _, si := range SupportedIntervals {
		if interval == si {
			return true
		}
	}
	return false
}
