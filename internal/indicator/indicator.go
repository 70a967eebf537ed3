// Package indicator derives technical indicators from OHLCV bar windows.
// All functions are pure: the same bars always produce the same Set, and
// nothing here keeps state between calls.
package indicator

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"tradewind/internal/market"
)

const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerDev    = 2.0
	VolumeMAPeriod  = 20
	StochPeriod     = 14
	TrendEMAPeriod  = 10
	VolPeriod       = 20
)

// MinBars is the shortest fast-timeframe window for which every field of a
// Set is defined. MACD(12,26,9) dominates.
const MinBars = MACDSlow + MACDSignal

// Set holds one symbol's indicator values at the most recent bar.
type Set struct {
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	BBUpper       float64 `json:"bb_upper"`
	BBMiddle      float64 `json:"bb_middle"`
	BBLower       float64 `json:"bb_lower"`
	BBWidth       float64 `json:"bb_width"`
	BBPosition    float64 `json:"bb_position"`
	VolumeMA      float64 `json:"volume_ma"`
	VolumeRatio   float64 `json:"volume_ratio"`
	Stochastic    float64 `json:"stochastic"`
	EMAFast       float64 `json:"ema10_fast"`
	EMASlow       float64 `json:"ema10_slow"`
	EMATrend      int     `json:"ema_trend"`
	PriceChange1  float64 `json:"price_change_1d"`
	PriceChange5  float64 `json:"price_change_5d"`
	PriceChange10 float64 `json:"price_change_10d"`
	Volatility20  float64 `json:"volatility_20"`
}

// Compute derives the full Set from a two-timeframe bar window.
// Fast bars drive every indicator except EMATrend, which compares EMA10 on
// the slow timeframe against EMA10 on the fast one.
func Compute(bars market.BarSet) (Set, error) {
	var s Set
	if len(bars.Fast) < MinBars {
		return s, fmt.Errorf("indicator: need at least %d bars, got %d", MinBars, len(bars.Fast))
	}
	market.SortBars(bars.Fast)
	market.SortBars(bars.Slow)

	closes := market.Closes(bars.Fast)
	highs := market.Highs(bars.Fast)
	lows := market.Lows(bars.Fast)
	volumes := market.Volumes(bars.Fast)
	last := closes[len(closes)-1]

	s.RSI = RSI(closes, RSIPeriod)

	macd, signal, hist := talib.Macd(closes, MACDFast, MACDSlow, MACDSignal)
	s.MACD = lastValid(macd)
	s.MACDSignal = lastValid(signal)
	s.MACDHistogram = lastValid(hist)

	upper, middle, lower := talib.BBands(closes, BollingerPeriod, BollingerDev, BollingerDev, talib.EMA)
	s.BBUpper = lastValid(upper)
	s.BBMiddle = lastValid(middle)
	s.BBLower = lastValid(lower)
	if s.BBMiddle != 0 {
		s.BBWidth = (s.BBUpper - s.BBLower) / s.BBMiddle
	}
	s.BBPosition = bandPosition(last, s.BBUpper, s.BBLower)

	k, _ := talib.Stoch(highs, lows, closes, StochPeriod, 3, talib.SMA, 3, talib.SMA)
	s.Stochastic = lastValid(k)

	s.VolumeMA = lastValid(talib.Sma(volumes, VolumeMAPeriod))
	if s.VolumeMA > 0 {
		s.VolumeRatio = volumes[len(volumes)-1] / s.VolumeMA
	}

	s.EMAFast = EMA(closes, TrendEMAPeriod)
	s.EMASlow = EMA(market.Closes(bars.Slow), TrendEMAPeriod)
	if s.EMASlow > s.EMAFast {
		s.EMATrend = 1
	}

	s.PriceChange1 = pctChange(closes, 1)
	s.PriceChange5 = pctChange(closes, 5)
	s.PriceChange10 = pctChange(closes, 10)
	s.Volatility20 = Volatility(closes, VolPeriod)

	return s, nil
}

// RSI computes the Wilder relative strength index over the trailing window.
// An all-gains window has zero average loss and saturates at 100 rather
// than dividing by zero.
func RSI(prices []float64, period int) float64 {
	n := len(prices)
	if period <= 0 || n <= period {
		return 0
	}
	gains := 0.0
	losses := 0.0
	for i := n - period; i < n; i++ {
		diff := prices[i] - prices[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// EMA returns the latest exponential moving average, seeded with the SMA of
// the first period values and advanced with k = 2/(period+1).
func EMA(prices []float64, period int) float64 {
	n := len(prices)
	if period <= 0 || n < period {
		return 0
	}
	ema := 0.0
	for i := 0; i < period; i++ {
		ema += prices[i]
	}
	ema /= float64(period)
	k := 2.0 / float64(period+1)
	for i := period; i < n; i++ {
		ema = (prices[i]-ema)*k + ema
	}
	return ema
}

// Volatility is the standard deviation of one-bar percentage returns over
// the trailing window.
func Volatility(prices []float64, period int) float64 {
	n := len(prices)
	if period <= 1 || n < period+1 {
		return 0
	}
	returns := make([]float64, 0, period)
	for i := n - period; i < n; i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	return math.Sqrt(variance)
}

func pctChange(prices []float64, lag int) float64 {
	n := len(prices)
	if lag <= 0 || n <= lag {
		return 0
	}
	prev := prices[n-1-lag]
	if prev == 0 {
		return 0
	}
	return (prices[n-1] - prev) / prev * 100
}

func bandPosition(price, upper, lower float64) float64 {
	span := upper - lower
	if span <= 0 {
		return 0.5
	}
	pos := (price - lower) / span
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) && series[i] != 0 {
			return series[i]
		}
	}
	return 0
}
