package classifier

import "context"

// Features is the per-symbol input vector. Field order and names follow
// the inference service contract exactly; adding a field here without a
// retrained model breaks prediction.
type Features struct {
	Symbol        string  `json:"symbol"`
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDHistogram float64 `json:"macd_histogram"`
	BBWidth       float64 `json:"bb_width"`
	BBPosition    float64 `json:"bb_position"`
	EMATrend      int     `json:"ema_trend"`
	VolumeRatio   float64 `json:"volume_ratio"`
	Stochastic    float64 `json:"stochastic"`
	PriceChange1  float64 `json:"price_change_1d"`
	PriceChange5  float64 `json:"price_change_5d"`
	PriceChange10 float64 `json:"price_change_10d"`
	Volatility20  float64 `json:"volatility_20"`
	NewsSentiment float64 `json:"news_sentiment"`
	Price         float64 `json:"price"`
}

// Prediction is one classified symbol. Probabilities carry the full
// buy/sell/hold distribution when the service includes it.
type Prediction struct {
	Symbol        string             `json:"symbol"`
	Action        string             `json:"action"`
	Confidence    float64            `json:"confidence"`
	Price         float64            `json:"price"`
	Reasoning     string             `json:"reasoning"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Predictor is the engine-facing contract for the external model.
type Predictor interface {
	Predict(ctx context.Context, features []Features) ([]Prediction, error)
}
