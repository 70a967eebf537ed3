package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradewind/internal/ledger"
)

func closed(pl float64, held time.Duration) ledger.TradeLogModel {
	bought := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	sold := bought.Add(held)
	return ledger.TradeLogModel{
		Status:        ledger.TradeStatusClosed,
		ProfitLoss:    pl,
		BuyTimestamp:  bought,
		SellTimestamp: &sold,
	}
}

func TestComputeEmptyLedger(t *testing.T) {
	s := Compute(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.WinRate, "no closed trades must not divide by zero")
	assert.Zero(t, s.AvgPL)
	assert.Empty(t, s.AvgHoldingDuration)
}

func TestComputeAggregates(t *testing.T) {
	rows := []ledger.TradeLogModel{
		closed(50, 2*time.Hour),
		closed(-20, 4*time.Hour),
		closed(30, 6*time.Hour),
		closed(0, time.Hour), // break-even counts neither winning nor losing
		{Status: ledger.TradeStatusOpen, ProfitLoss: 15},
	}

	s := Compute(rows)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.Open)
	assert.Equal(t, 4, s.Closed)
	assert.Equal(t, 2, s.Winning)
	assert.Equal(t, 1, s.Losing)
	assert.InDelta(t, 60.0, s.TotalPL, 1e-9)
	assert.InDelta(t, 15.0, s.AvgPL, 1e-9)
	assert.InDelta(t, 0.5, s.WinRate, 1e-9)
	assert.Equal(t, 50.0, s.BestTrade)
	assert.Equal(t, -20.0, s.WorstTrade)
	assert.Equal(t, "03:15:00", s.AvgHoldingDuration)
}

func TestComputeAllLosers(t *testing.T) {
	s := Compute([]ledger.TradeLogModel{closed(-5, time.Hour), closed(-2, time.Hour)})
	assert.Equal(t, -2.0, s.BestTrade, "best trade of an all-loss ledger is the smallest loss")
	assert.Equal(t, -5.0, s.WorstTrade)
	assert.Zero(t, s.WinRate)
}

func TestRound(t *testing.T) {
	s := Summary{TotalPL: 10.005, AvgPL: 3.3349, WinRate: 0.66667, BestTrade: 1.999, WorstTrade: -2.001}
	r := s.Round()
	assert.Equal(t, 10.01, r.TotalPL)
	assert.Equal(t, 3.33, r.AvgPL)
	assert.Equal(t, 0.6667, r.WinRate)
	assert.Equal(t, 2.0, r.BestTrade)
	assert.Equal(t, -2.0, r.WorstTrade)
}
