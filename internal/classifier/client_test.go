package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewind/internal/traderr"
)

func fastClient(url string) *Client {
	c := NewClient(url, 5*time.Second)
	c.policy.MaxAttempts = 1
	return c
}

func TestPredictParsesSignals(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/predict", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"model_version": "1.0.0",
			"signals": [{
				"symbol": "AAPL",
				"action": "buy",
				"confidence": 0.82,
				"price": 182.5,
				"reasoning": "RSI oversold; MACD bullish crossover",
				"probabilities": {"buy": 0.82, "hold": 0.12, "sell": 0.06}
			}]
		}`))
	}))
	defer srv.Close()

	preds, err := fastClient(srv.URL).Predict(context.Background(), []Features{{Symbol: "AAPL", RSI: 28}})
	require.NoError(t, err)
	require.Len(t, preds, 1)

	p := preds[0]
	assert.Equal(t, "AAPL", p.Symbol)
	assert.Equal(t, "buy", p.Action)
	assert.Equal(t, 0.82, p.Confidence)
	assert.Equal(t, 182.5, p.Price)
	assert.Equal(t, 0.12, p.Probabilities["hold"])

	assert.Equal(t, true, gotReq["include_probabilities"])
	features, ok := gotReq["features"].([]any)
	require.True(t, ok)
	require.Len(t, features, 1)
}

func TestPredictModelNotLoaded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"Model not loaded"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Predict(context.Background(), []Features{{Symbol: "AAPL"}})
	require.Error(t, err)
	assert.Equal(t, traderr.UpstreamUnavailable, traderr.KindOf(err))
}

func TestPredictRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).Predict(context.Background(), []Features{{Symbol: "AAPL"}})
	require.Error(t, err)
	assert.Equal(t, traderr.RateLimited, traderr.KindOf(err))
}

func TestPredictRejectsMalformedResponse(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing success", `{"signals": []}`},
		{"signal without symbol", `{"success": true, "signals": [{"action": "buy", "confidence": 0.9}]}`},
		{"confidence out of range", `{"success": true, "signals": [{"symbol": "AAPL", "action": "buy", "confidence": 7}]}`},
		{"not json", `<html>gateway error</html>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := fastClient(srv.URL).Predict(context.Background(), []Features{{Symbol: "AAPL"}})
			require.Error(t, err)
		})
	}
}

func TestPredictEmptyBatch(t *testing.T) {
	preds, err := fastClient("http://localhost:1").Predict(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, preds, "empty batch never hits the wire")
}

func TestPredictCircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := fastClient(srv.URL)
	for i := 0; i < 5; i++ {
		_, err := c.Predict(context.Background(), []Features{{Symbol: "AAPL"}})
		require.Error(t, err)
	}
	_, err := c.Predict(context.Background(), []Features{{Symbol: "AAPL"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestHealthy(t *testing.T) {
	loaded := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "healthy", "model_loaded": loaded})
	}))
	defer srv.Close()

	c := fastClient(srv.URL)
	assert.True(t, c.Healthy(context.Background()))
	loaded = false
	assert.False(t, c.Healthy(context.Background()))
}
