// Package classifier talks to the external inference service that scores
// candidate symbols. The model is a pre-trained black box; this package
// owns only transport, validation, and error classification.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tradewind/internal/logger"
	"tradewind/internal/pkg/circuit"
	"tradewind/internal/pkg/retry"
	"tradewind/internal/traderr"
)

type Client struct {
	BaseURL string
	Timeout time.Duration

	httpc   *http.Client
	breaker *circuit.Breaker
	policy  retry.Policy
}

var _ Predictor = (*Client)(nil)

// NewClient builds a Predictor for the inference service at baseURL.
// The 30s default timeout covers the service's cold-start latency.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Timeout: timeout,
		httpc:   &http.Client{Timeout: timeout},
		breaker: circuit.New("classifier", 5, time.Minute),
		policy:  retry.Default(),
	}
}

// Predict scores a feature batch. A timeout or unavailable service surfaces
// as UpstreamUnavailable so callers never mistake it for a hold decision.
func (c *Client) Predict(ctx context.Context, features []Features) ([]Prediction, error) {
	if len(features) == 0 {
		return nil, nil
	}
	if !c.breaker.Allow() {
		return nil, traderr.New(traderr.UpstreamUnavailable, "classifier.Predict", "circuit open")
	}
	var preds []Prediction
	err := c.policy.Do(ctx, "classifier.Predict", func(ctx context.Context) error {
		var err error
		preds, err = c.predictOnce(ctx, features)
		return err
	})
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return preds, nil
}

func (c *Client) predictOnce(ctx context.Context, features []Features) ([]Prediction, error) {
	body, err := json.Marshal(map[string]any{
		"features":              features,
		"include_probabilities": true,
	})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, traderr.Wrap(traderr.UpstreamUnavailable, "classifier.Predict", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, traderr.Wrap(traderr.UpstreamUnavailable, "classifier.Predict", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, traderr.New(traderr.RateLimited, "classifier.Predict", "status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusServiceUnavailable:
		// The service returns 503 until its model is loaded.
		return nil, traderr.New(traderr.UpstreamUnavailable, "classifier.Predict", "model not loaded (status 503)")
	case resp.StatusCode/100 != 2:
		return nil, traderr.New(traderr.Unknown, "classifier.Predict", "status %d: %s", resp.StatusCode, truncate(raw, 200))
	}
	return parsePredictions(raw)
}

func parsePredictions(raw []byte) ([]Prediction, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, traderr.Wrap(traderr.Unknown, "classifier.Predict", fmt.Errorf("invalid json: %w", err))
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, traderr.Wrap(traderr.Unknown, "classifier.Predict", fmt.Errorf("response failed schema validation: %w", err))
	}
	if !gjson.GetBytes(raw, "success").Bool() {
		return nil, traderr.New(traderr.UpstreamUnavailable, "classifier.Predict", "service reported success=false")
	}
	var preds []Prediction
	gjson.GetBytes(raw, "signals").ForEach(func(_, sig gjson.Result) bool {
		p := Prediction{
			Symbol:     sig.Get("symbol").String(),
			Action:     sig.Get("action").String(),
			Confidence: sig.Get("confidence").Float(),
			Price:      sig.Get("price").Float(),
			Reasoning:  sig.Get("reasoning").String(),
		}
		if probs := sig.Get("probabilities"); probs.IsObject() {
			p.Probabilities = make(map[string]float64, 3)
			probs.ForEach(func(k, v gjson.Result) bool {
				p.Probabilities[k.String()] = v.Float()
				return true
			})
		}
		preds = append(preds, p)
		return true
	})
	return preds, nil
}

// Healthy probes the service's readiness endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		logger.Debugf("classifier: health probe failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode == http.StatusOK && gjson.GetBytes(raw, "model_loaded").Bool()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
