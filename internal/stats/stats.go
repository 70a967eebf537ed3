// Package stats derives trade statistics from a ledger snapshot. There is
// no accumulator state: every call recomputes from rows, so the output can
// never drift from the ledger.
package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"tradewind/internal/ledger"
	"tradewind/internal/reconcile"
)

// Summary is the aggregate view over one user's ledger.
type Summary struct {
	Total              int     `json:"total"`
	Open               int     `json:"open"`
	Closed             int     `json:"closed"`
	Winning            int     `json:"winning"`
	Losing             int     `json:"losing"`
	TotalPL            float64 `json:"total_pl"`
	AvgPL              float64 `json:"avg_pl"`
	WinRate            float64 `json:"win_rate"`
	AvgHoldingDuration string  `json:"avg_holding_duration"`
	BestTrade          float64 `json:"best_trade"`
	WorstTrade         float64 `json:"worst_trade"`
}

// Compute aggregates rows into a Summary. Closed==0 yields zero rates, not
// NaN. Currency values keep full precision; Round only rounds for display.
func Compute(rows []ledger.TradeLogModel) Summary {
	var s Summary
	s.Total = len(rows)

	var holdingTotal time.Duration
	var holdingCount int
	first := true
	for _, row := range rows {
		switch row.Status {
		case ledger.TradeStatusOpen:
			s.Open++
		case ledger.TradeStatusClosed:
			s.Closed++
			pl := row.ProfitLoss
			s.TotalPL += pl
			if pl > 0 {
				s.Winning++
			} else if pl < 0 {
				s.Losing++
			}
			if first {
				s.BestTrade = pl
				s.WorstTrade = pl
				first = false
			} else {
				if pl > s.BestTrade {
					s.BestTrade = pl
				}
				if pl < s.WorstTrade {
					s.WorstTrade = pl
				}
			}
			if row.SellTimestamp != nil && !row.BuyTimestamp.IsZero() {
				holdingTotal += row.SellTimestamp.Sub(row.BuyTimestamp)
				holdingCount++
			}
		}
	}
	if s.Closed > 0 {
		s.AvgPL = s.TotalPL / float64(s.Closed)
		s.WinRate = float64(s.Winning) / float64(s.Closed)
	}
	if holdingCount > 0 {
		s.AvgHoldingDuration = reconcile.FormatHoldingDuration(holdingTotal / time.Duration(holdingCount))
	}
	return s
}

// Round returns a copy with currency fields rounded to cents and the win
// rate to four places, for presentation only.
func (s Summary) Round() Summary {
	s.TotalPL = round2(s.TotalPL)
	s.AvgPL = round2(s.AvgPL)
	s.BestTrade = round2(s.BestTrade)
	s.WorstTrade = round2(s.WorstTrade)
	s.WinRate = decimal.NewFromFloat(s.WinRate).Round(4).InexactFloat64()
	return s
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
