package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewind/internal/market"
)

func barsFromCloses(closes []float64) []market.Bar {
	bars := make([]market.Bar, len(closes))
	ts := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = market.Bar{
			Symbol:    "TEST",
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}

func TestRSI(t *testing.T) {
	t.Run("all gains saturates at 100", func(t *testing.T) {
		assert.Equal(t, 100.0, RSI(risingCloses(20), 14))
	})

	t.Run("known mixed window", func(t *testing.T) {
		// Diffs over the window: +1, -0.5, +1 -> gains 2, losses 0.5, RS 4.
		got := RSI([]float64{10, 11, 10.5, 11.5}, 3)
		assert.InDelta(t, 80.0, got, 1e-9)
	})

	t.Run("too short returns zero", func(t *testing.T) {
		assert.Equal(t, 0.0, RSI([]float64{1, 2}, 14))
	})
}

func TestEMA(t *testing.T) {
	// Seed SMA(1,2)=1.5, k=2/3: (3-1.5)*2/3 + 1.5 = 2.5.
	assert.InDelta(t, 2.5, EMA([]float64{1, 2, 3}, 2), 1e-9)
	assert.Equal(t, 0.0, EMA([]float64{1}, 2))
}

func TestVolatility(t *testing.T) {
	assert.Equal(t, 0.0, Volatility([]float64{100, 100, 100, 100, 100}, 4),
		"constant prices have zero volatility")
	assert.Greater(t, Volatility([]float64{100, 105, 95, 110, 90, 100}, 5), 0.0)
}

func TestComputeRejectsShortWindow(t *testing.T) {
	bars := market.BarSet{
		Fast: barsFromCloses(risingCloses(MinBars - 1)),
		Slow: barsFromCloses(risingCloses(MinBars - 1)),
	}
	_, err := Compute(bars)
	require.Error(t, err)
}

func TestComputeOnTrendingSeries(t *testing.T) {
	fast := barsFromCloses(risingCloses(60))
	slow := barsFromCloses(risingCloses(60))
	for i := range slow {
		slow[i].Close += 20
	}

	set, err := Compute(market.BarSet{Fast: fast, Slow: slow})
	require.NoError(t, err)

	assert.Equal(t, 100.0, set.RSI)
	assert.Equal(t, 1, set.EMATrend, "higher slow-timeframe EMA flags the uptrend")
	assert.GreaterOrEqual(t, set.BBPosition, 0.0)
	assert.LessOrEqual(t, set.BBPosition, 1.0)
	assert.InDelta(t, 1.0, set.VolumeRatio, 1e-9)

	// Monotonic +1 closes ending at 159.
	assert.InDelta(t, 1.0/158.0*100, set.PriceChange1, 1e-9)
	assert.InDelta(t, 5.0/154.0*100, set.PriceChange5, 1e-9)
	assert.Positive(t, set.MACD)
}

func TestComputeDowntrendFlag(t *testing.T) {
	fast := barsFromCloses(risingCloses(60))
	slow := barsFromCloses(risingCloses(60))
	for i := range slow {
		slow[i].Close -= 20
	}

	set, err := Compute(market.BarSet{Fast: fast, Slow: slow})
	require.NoError(t, err)
	assert.Equal(t, 0, set.EMATrend)
}
