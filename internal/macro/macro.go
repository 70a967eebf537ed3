// Package macro consumes the external macro-data provider and condenses a
// snapshot into a single market-risk score the signal policy can gate on.
package macro

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tradewind/internal/pkg/cache"
	"tradewind/internal/pkg/retry"
	"tradewind/internal/traderr"
)

// Snapshot is the globally shared macro picture; it is not per-symbol and
// refreshes on a slow cadence (24h TTL by default).
type Snapshot struct {
	VIX              float64   `json:"vix"`
	YieldCurve       float64   `json:"yield_curve"` // 10y-2y spread, negative = inverted
	FedFundsRate     float64   `json:"fed_funds_rate"`
	UnemploymentRate float64   `json:"unemployment_rate"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// Provider is the engine-facing contract for macro data.
type Provider interface {
	Indicators(ctx context.Context) (Snapshot, error)
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
	if ttl <= 0 {
		ttl = 24 * time.Hour
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

const cacheKey = "macro:snapshot"

func (c *Client) Indicators(ctx context.Context) (Snapshot, error) {
	if raw, ok := c.cache.Get(ctx, cacheKey); ok {
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return snap, nil
		}
	}
	var raw []byte
	err := c.policy.Do(ctx, "macro.Indicators", func(ctx context.Context) error {
		var err error
		raw, err = c.fetch(ctx)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		VIX:              gjson.GetBytes(raw, "vix").Float(),
		YieldCurve:       gjson.GetBytes(raw, "yield_curve").Float(),
		FedFundsRate:     gjson.GetBytes(raw, "fed_funds_rate").Float(),
		UnemploymentRate: gjson.GetBytes(raw, "unemployment_rate").Float(),
		FetchedAt:        time.Now().UTC(),
	}
	if encoded, merr := json.Marshal(snap); merr == nil {
		c.cache.Set(ctx, cacheKey, encoded, c.TTL)
	}
	return snap, nil
}

func (c *Client) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/indicators", nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, traderr.Wrap(traderr.UpstreamUnavailable, "macro.Indicators", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, traderr.Wrap(traderr.UpstreamUnavailable, "macro.Indicators", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, traderr.New(traderr.RateLimited, "macro.Indicators", "status %d", resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return nil, traderr.New(traderr.UpstreamUnavailable, "macro.Indicators", "status %d", resp.StatusCode)
	}
	return body, nil
}
