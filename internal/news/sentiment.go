// Package news supplies point-in-time sentiment scores from the external
// news provider. Scores are inputs to a single tick, not historical state
// owned by the engine.
package news

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tradewind/internal/logger"
	"tradewind/internal/pkg/cache"
	"tradewind/internal/pkg/retry"
	"tradewind/internal/pkg/symbol"
	"tradewind/internal/traderr"
)

// SentimentScore is the aggregated news signal for one symbol.
type SentimentScore struct {
	Symbol     string   `json:"symbol"`
	Score      float64  `json:"score"`      // [-1, 1]
	Confidence float64  `json:"confidence"` // [0, 1]
	Headlines  []string `json:"headlines,omitempty"`
}

// Provider is the engine-facing contract for the sentiment service.
type Provider interface {
	SentimentForSymbols(ctx context.Context, symbols []string, lookbackDays int) (map[string]SentimentScore, error)
}

type Client struct {
	BaseURL string
	APIKey  string
	TTL     time.Duration

	httpc  *http.Client
	cache  cache.Cache
	policy retry.Policy
}

var _ Provider = (*Client)(nil)

func NewClient(baseURL, apiKey string, ttl time.Duration, c cache.Cache) *Client {
	if c == nil {
		c = cache.NewMemory()
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  apiKey,
		TTL:     ttl,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		cache:   c,
		policy:  retry.Default(),
	}
}

// SentimentForSymbols returns scores for the requested symbols. Symbols the
// provider has no coverage for are simply absent from the result; callers
// treat absence as neutral sentiment.
func (c *Client) SentimentForSymbols(ctx context.Context, symbols []string, lookbackDays int) (map[string]SentimentScore, error) {
	symbols = symbol.NormalizeAll(symbols)
	if len(symbols) == 0 {
		return map[string]SentimentScore{}, nil
	}
	if lookbackDays <= 0 {
		lookbackDays = 1
	}
	key := "sentiment:" + strconv.Itoa(lookbackDays) + ":" + strings.Join(symbols, ",")
	if raw, ok := c.cache.Get(ctx, key); ok {
		var cached map[string]SentimentScore
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	var raw []byte
	err := c.policy.Do(ctx, "news.SentimentForSymbols", func(ctx context.Context) error {
		var err error
		raw, err = c.fetch(ctx, symbols, lookbackDays)
		return err
	})
	if err != nil {
		return nil, err
	}
	scores := parseScores(raw)
	if encoded, merr := json.Marshal(scores); merr == nil {
		c.cache.Set(ctx, key, encoded, c.TTL)
	}
	return scores, nil
}

func (c *Client) fetch(ctx context.Context, symbols []string, lookbackDays int) ([]byte, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	q.Set("days", strconv.Itoa(lookbackDays))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/sentiment?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, traderr.Wrap(traderr.UpstreamUnavailable, "news.SentimentForSymbols", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, traderr.Wrap(traderr.UpstreamUnavailable, "news.SentimentForSymbols", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, traderr.New(traderr.RateLimited, "news.SentimentForSymbols", "status %d", resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return nil, traderr.New(traderr.UpstreamUnavailable, "news.SentimentForSymbols", "status %d", resp.StatusCode)
	}
	return body, nil
}

func parseScores(raw []byte) map[string]SentimentScore {
	scores := make(map[string]SentimentScore)
	gjson.GetBytes(raw, "sentiment").ForEach(func(k, v gjson.Result) bool {
		sym := symbol.Normalize(k.String())
		if sym == "" {
			return true
		}
		s := SentimentScore{
			Symbol:     sym,
			Score:      clamp(v.Get("score").Float(), -1, 1),
			Confidence: clamp(v.Get("confidence").Float(), 0, 1),
		}
		v.Get("headlines").ForEach(func(_, h gjson.Result) bool {
			s.Headlines = append(s.Headlines, h.String())
			return true
		})
		scores[sym] = s
		return true
	})
	if len(scores) == 0 {
		logger.Debugf("news: provider returned no sentiment entries")
	}
	return scores
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
