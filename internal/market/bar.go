package market

import (
	"sort"
	"time"
)

// Bar is a single OHLCV candle for one symbol. Bars are immutable inputs;
// every indicator is re-derived from a bar window on demand.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SortBars orders bars by timestamp ascending, in place. Indicator math
// assumes chronological order; feeds paginating backwards deliver bars
// newest-first, so callers sort before computing.
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})
}

// Closes extracts the close-price series from a bar slice.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high-price series.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low-price series.
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volume series.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// LastClose returns the most recent close, or 0 when the slice is empty.
func LastClose(bars []Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	return bars[len(bars)-1].Close
}

// BarSet groups the two timeframes the generator consumes per symbol:
// Fast is the trading timeframe (1-minute), Slow the confirmation
// timeframe (5-minute).
type BarSet struct {
	Fast []Bar
	Slow []Bar
}
