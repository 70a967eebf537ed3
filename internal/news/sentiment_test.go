package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewind/internal/pkg/cache"
)

func TestSentimentForSymbols(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/sentiment", r.URL.Path)
		assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbols"))
		assert.Equal(t, "3", r.URL.Query().Get("days"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{
			"sentiment": {
				"aapl": {"score": 0.35, "confidence": 0.8, "headlines": ["Apple beats estimates"]},
				"msft": {"score": -2.5, "confidence": 1.7}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Minute, cache.NewMemory())
	scores, err := c.SentimentForSymbols(context.Background(), []string{"aapl", "MSFT"}, 3)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	assert.Equal(t, 0.35, scores["AAPL"].Score)
	assert.Equal(t, []string{"Apple beats estimates"}, scores["AAPL"].Headlines)
	assert.Equal(t, -1.0, scores["MSFT"].Score, "scores clamp to [-1,1]")
	assert.Equal(t, 1.0, scores["MSFT"].Confidence)

	// Second call within the TTL is served from cache.
	_, err = c.SentimentForSymbols(context.Background(), []string{"AAPL", "MSFT"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestSentimentEmptySymbolList(t *testing.T) {
	c := NewClient("http://localhost:1", "", time.Minute, cache.NewMemory())
	scores, err := c.SentimentForSymbols(context.Background(), []string{" ", ""}, 1)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestParseScoresIgnoresJunk(t *testing.T) {
	scores := parseScores([]byte(`{"sentiment": {"": {"score": 0.5}, "AAPL": {"score": 0.1, "confidence": 0.4}}}`))
	require.Len(t, scores, 1)
	assert.Contains(t, scores, "AAPL")
}
