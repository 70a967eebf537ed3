// Package signal turns indicator snapshots into trade decisions. The
// classifier proposes; the gates here dispose. Every downgrade is recorded
// in the signal's reasoning so a rejected trade can be explained later.
package signal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradewind/internal/classifier"
	"tradewind/internal/config"
	"tradewind/internal/indicator"
	"tradewind/internal/logger"
	"tradewind/internal/market"
)

// Input is one symbol's raw material for a tick: bars for both timeframes
// plus the news sentiment score already fetched for it.
type Input struct {
	Symbol    string
	Bars      market.BarSet
	Sentiment float64
}

// Generator runs the per-tick decision pipeline: indicators, one batched
// classifier call, then the local gates.
type Generator struct {
	predictor classifier.Predictor
	policy    BuyPolicy
	cfg       config.TradingConfig
	now       func() time.Time
}

func NewGenerator(predictor classifier.Predictor, policy BuyPolicy, cfg config.TradingConfig) *Generator {
	return &Generator{predictor: predictor, policy: policy, cfg: cfg, now: time.Now}
}

// Generate produces at most one signal per input symbol. Symbols with too
// few bars are skipped, not failed; a classifier transport error fails the
// whole tick since no symbol got a prediction.
func (g *Generator) Generate(ctx context.Context, userID string, inputs []Input, marketRisk float64) ([]Signal, error) {
	type candidate struct {
		symbol string
		ind    indicator.Set
		price  float64
	}

	features := make([]classifier.Features, 0, len(inputs))
	candidates := make([]candidate, 0, len(inputs))
	for _, in := range inputs {
		ind, err := indicator.Compute(in.Bars)
		if err != nil {
			logger.Warnf("signal: skipping %s: %v", in.Symbol, err)
			continue
		}
		price := market.LastClose(in.Bars.Fast)
		features = append(features, classifier.Features{
			Symbol:        in.Symbol,
			RSI:           ind.RSI,
			MACD:          ind.MACD,
			MACDHistogram: ind.MACDHistogram,
			BBWidth:       ind.BBWidth,
			BBPosition:    ind.BBPosition,
			EMATrend:      ind.EMATrend,
			VolumeRatio:   ind.VolumeRatio,
			Stochastic:    ind.Stochastic,
			PriceChange1:  ind.PriceChange1,
			PriceChange5:  ind.PriceChange5,
			PriceChange10: ind.PriceChange10,
			Volatility20:  ind.Volatility20,
			NewsSentiment: in.Sentiment,
			Price:         price,
		})
		candidates = append(candidates, candidate{symbol: in.Symbol, ind: ind, price: price})
	}
	if len(features) == 0 {
		return nil, nil
	}

	predictions, err := g.predictor.Predict(ctx, features)
	if err != nil {
		return nil, fmt.Errorf("signal: predict: %w", err)
	}
	bySymbol := make(map[string]classifier.Prediction, len(predictions))
	for _, p := range predictions {
		bySymbol[p.Symbol] = p
	}

	sentiments := make(map[string]float64, len(inputs))
	for _, in := range inputs {
		sentiments[in.Symbol] = in.Sentiment
	}

	signals := make([]Signal, 0, len(candidates))
	for _, c := range candidates {
		pred, ok := bySymbol[c.symbol]
		if !ok {
			logger.Warnf("signal: classifier returned no prediction for %s", c.symbol)
			continue
		}
		sig := Signal{
			Symbol:        c.symbol,
			Action:        resolveAction(pred),
			Confidence:    pred.Confidence,
			Price:         pred.Price,
			Timestamp:     g.now(),
			Reasoning:     pred.Reasoning,
			Indicators:    c.ind,
			Probabilities: pred.Probabilities,
			NewsSentiment: sentiments[c.symbol],
			MarketRisk:    marketRisk,
		}
		if sig.Price == 0 {
			sig.Price = c.price
		}
		if err := g.applyGates(ctx, userID, &sig); err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

// classOrder is the model's class ordering. Probability ties resolve to the
// earliest class, so an exact buy/sell tie reads as sell; the trend and
// policy gates still have to clear it before anything trades.
var classOrder = [...]string{ActionSell, ActionHold, ActionBuy}

// resolveAction trusts the probability distribution over the service's
// action string when both are present.
func resolveAction(p classifier.Prediction) string {
	action := strings.ToLower(strings.TrimSpace(p.Action))
	if len(p.Probabilities) == 0 {
		return action
	}
	best := action
	bestProb := -1.0
	for _, class := range classOrder {
		if prob, ok := p.Probabilities[class]; ok && prob > bestProb {
			best = class
			bestProb = prob
		}
	}
	return best
}

// applyGates downgrades a signal to hold when any local check refuses it.
// Gate order matters: the cheap checks run before the ledger queries, and a
// signal already at hold skips the rest.
func (g *Generator) applyGates(ctx context.Context, userID string, sig *Signal) error {
	if !sig.Actionable() {
		return nil
	}

	if sig.Confidence < g.cfg.ConfidenceThreshold {
		downgrade(sig, fmt.Sprintf("confidence %.2f below threshold %.2f", sig.Confidence, g.cfg.ConfidenceThreshold))
		return nil
	}

	switch sig.Action {
	case ActionBuy:
		if sig.Indicators.EMATrend != 1 {
			downgrade(sig, "trend filter: slow EMA not above fast EMA")
			return nil
		}
	case ActionSell:
		if sig.Indicators.EMATrend == 1 {
			downgrade(sig, "trend filter: uptrend intact")
			return nil
		}
	}

	if sig.Action == ActionBuy {
		verdict, err := g.policy.AllowBuy(ctx, userID, g.cfg.AccountType)
		if err != nil {
			return err
		}
		if !verdict.Allowed {
			downgrade(sig, verdict.Reason)
			return nil
		}
	}
	return nil
}

func downgrade(sig *Signal, reason string) {
	logger.Infof("signal: %s %s -> hold: %s", sig.Symbol, sig.Action, reason)
	sig.Action = ActionHold
	if sig.Reasoning != "" {
		sig.Reasoning += "; "
	}
	sig.Reasoning += reason
}
