package signal

import (
	"time"

	"tradewind/internal/indicator"
)

const (
	ActionBuy  = "buy"
	ActionSell = "sell"
	ActionHold = "hold"
)

// Signal is one tick's decision for one symbol. Ephemeral: produced,
// optionally logged and acted on, never mutated.
type Signal struct {
	Symbol        string             `json:"symbol"`
	Action        string             `json:"action"`
	Confidence    float64            `json:"confidence"`
	Price         float64            `json:"price"`
	Timestamp     time.Time          `json:"timestamp"`
	Reasoning     string             `json:"reasoning"`
	Indicators    indicator.Set      `json:"indicators"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
	NewsSentiment float64            `json:"news_sentiment"`
	MarketRisk    float64            `json:"market_risk"`
}

// Actionable reports whether the signal should reach the broker.
func (s Signal) Actionable() bool {
	return s.Action == ActionBuy || s.Action == ActionSell
}
