package broker

import (
	"fmt"
	"strings"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type AccountType string

const (
	AccountPaper AccountType = "paper"
	AccountLive  AccountType = "live"
)

// Fill is a broker-reported execution. The same OrderID may be observed
// repeatedly with evolving status and quantity as a partial fill completes;
// ingestion treats OrderID as the idempotency key.
type Fill struct {
	OrderID        string      `json:"order_id"`
	Symbol         string      `json:"symbol"`
	Side           Side        `json:"side"`
	FilledQty      float64     `json:"filled_qty"`
	FilledAvgPrice float64     `json:"filled_avg_price"`
	Status         string      `json:"status"`
	FilledAt       time.Time   `json:"filled_at"`
	CreatedAt      time.Time   `json:"created_at"`
	AccountType    AccountType `json:"account_type"`
}

// Validate rejects malformed fills at the boundary instead of letting
// half-empty records propagate into matching.
func (f Fill) Validate() error {
	if strings.TrimSpace(f.OrderID) == "" {
		return fmt.Errorf("fill missing order_id")
	}
	if strings.TrimSpace(f.Symbol) == "" {
		return fmt.Errorf("fill %s missing symbol", f.OrderID)
	}
	if f.Side != SideBuy && f.Side != SideSell {
		return fmt.Errorf("fill %s has invalid side %q", f.OrderID, f.Side)
	}
	if f.FilledQty <= 0 {
		return fmt.Errorf("fill %s has non-positive qty %v", f.OrderID, f.FilledQty)
	}
	if f.FilledAvgPrice < 0 {
		return fmt.Errorf("fill %s has negative price %v", f.OrderID, f.FilledAvgPrice)
	}
	return nil
}

// EffectiveTime orders fills for FIFO matching: filled_at when present,
// created_at otherwise.
func (f Fill) EffectiveTime() time.Time {
	if !f.FilledAt.IsZero() {
		return f.FilledAt
	}
	return f.CreatedAt
}

// Position is a broker-reported holding, ground truth for "what is
// actually held".
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
}

// OrderResult is the acknowledgement returned by PlaceOrder.
type OrderResult struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Qty       float64   `json:"qty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Quote is the latest bid/ask for a symbol.
type Quote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// OrderRequest describes an order to submit.
type OrderRequest struct {
	Symbol      string
	Qty         float64
	Side        Side
	Type        string // "market" | "limit"
	TimeInForce string // "day" | "gtc"
	LimitPrice  float64
}
