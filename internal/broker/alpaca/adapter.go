// Package alpaca implements broker.Adapter against the Alpaca trading API.
// Paper and live accounts are separate adapter instances pointed at the
// respective base URL.
package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"tradewind/internal/broker"
	"tradewind/internal/market"
	"tradewind/internal/pkg/symbol"
	"tradewind/internal/scheduler"
	"tradewind/internal/traderr"
)

const (
	PaperBaseURL = "https://paper-api.alpaca.markets"
	LiveBaseURL  = "https://api.alpaca.markets"

	// Spacing between consecutive broker requests when iterating many
	// symbols/orders, to stay under the API rate limit.
	requestSpacing = 150 * time.Millisecond
)

type Adapter struct {
	tradeClient *alpaca.Client
	mdClient    *marketdata.Client
	account     broker.AccountType
}

type Credentials struct {
	APIKey    string
	APISecret string
}

var _ broker.Adapter = (*Adapter)(nil)
var _ broker.DataProvider = (*Adapter)(nil)

// New builds an adapter for one account type. Credentials may also come
// from the APCA_API_KEY_ID / APCA_API_SECRET_KEY environment, in which
// case creds fields are left empty.
func New(account broker.AccountType, creds Credentials) *Adapter {
	baseURL := PaperBaseURL
	if account == broker.AccountLive {
		baseURL = LiveBaseURL
	}
	httpc := &http.Client{Timeout: 30 * time.Second}
	return &Adapter{
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:     creds.APIKey,
			APISecret:  creds.APISecret,
			BaseURL:    baseURL,
			HTTPClient: httpc,
		}),
		mdClient: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     creds.APIKey,
			APISecret:  creds.APISecret,
			HTTPClient: httpc,
		}),
		account: account,
	}
}

func (a *Adapter) PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return broker.OrderResult{}, err
	}
	qty := decimal.NewFromFloat(req.Qty)
	orderType := alpaca.Market
	if req.Type == "limit" {
		orderType = alpaca.Limit
	}
	tif := alpaca.Day
	if req.TimeInForce == "gtc" {
		tif = alpaca.GTC
	}
	placeReq := alpaca.PlaceOrderRequest{
		Symbol:      symbol.Normalize(req.Symbol),
		Qty:         &qty,
		Side:        alpaca.Side(req.Side),
		Type:        orderType,
		TimeInForce: tif,
	}
	if orderType == alpaca.Limit && req.LimitPrice > 0 {
		limit := decimal.NewFromFloat(req.LimitPrice)
		placeReq.LimitPrice = &limit
	}
	o, err := a.tradeClient.PlaceOrder(placeReq)
	if err != nil {
		return broker.OrderResult{}, classify("broker.PlaceOrder", err)
	}
	return broker.OrderResult{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Side:      broker.Side(o.Side),
		Qty:       decimalFloat(o.Qty),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]broker.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	positions, err := a.tradeClient.GetPositions()
	if err != nil {
		return nil, classify("broker.GetPositions", err)
	}
	out := make([]broker.Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, broker.Position{
			Symbol:        p.Symbol,
			Qty:           p.Qty.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
			CurrentPrice:  decimalFloat(p.CurrentPrice),
			MarketValue:   decimalFloat(p.MarketValue),
		})
	}
	return out, nil
}

// GetOrderHistory returns recently closed orders as fills, oldest first.
// Only orders with executed quantity are reported.
func (a *Adapter) GetOrderHistory(ctx context.Context, limit int) ([]broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	orders, err := a.tradeClient.GetOrders(alpaca.GetOrdersRequest{
		Status:    "closed",
		Limit:     limit,
		Direction: "asc",
	})
	if err != nil {
		return nil, classify("broker.GetOrderHistory", err)
	}
	fills := make([]broker.Fill, 0, len(orders))
	for _, o := range orders {
		f := a.toFill(&o)
		if f.FilledQty <= 0 {
			continue
		}
		fills = append(fills, f)
	}
	return fills, nil
}

func (a *Adapter) GetOrder(ctx context.Context, orderID string) (broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, err
	}
	o, err := a.tradeClient.GetOrder(orderID)
	if err != nil {
		return broker.Fill{}, classify("broker.GetOrder", err)
	}
	return a.toFill(o), nil
}

func (a *Adapter) GetLatestQuote(ctx context.Context, sym string) (broker.Quote, error) {
	if err := ctx.Err(); err != nil {
		return broker.Quote{}, err
	}
	q, err := a.mdClient.GetLatestQuote(symbol.Normalize(sym), marketdata.GetLatestQuoteRequest{})
	if err != nil {
		return broker.Quote{}, classify("broker.GetLatestQuote", err)
	}
	if q == nil {
		return broker.Quote{}, traderr.New(traderr.Unknown, "broker.GetLatestQuote", "no quote for %s", sym)
	}
	return broker.Quote{Symbol: symbol.Normalize(sym), Bid: q.BidPrice, Ask: q.AskPrice}, nil
}

// GetAccountEquity returns current account equity, the base for position
// sizing.
func (a *Adapter) GetAccountEquity(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	acct, err := a.tradeClient.GetAccount()
	if err != nil {
		return 0, classify("broker.GetAccountEquity", err)
	}
	return acct.Equity.InexactFloat64(), nil
}

func (a *Adapter) IsMarketOpen(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	clock, err := a.tradeClient.GetClock()
	if err != nil {
		return false, classify("broker.IsMarketOpen", err)
	}
	return clock.IsOpen, nil
}

// GetBars fetches OHLCV history. Interval strings follow the config format
// ("1m", "5m"); only minute granularities are used by the engine.
func (a *Adapter) GetBars(ctx context.Context, sym, interval string, limit int) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, ok := scheduler.ParseIntervalDuration(interval)
	if !ok || d < time.Minute {
		return nil, traderr.New(traderr.InvalidOrder, "broker.GetBars", "unsupported interval %q", interval)
	}
	if limit <= 0 {
		limit = 100
	}
	// Rate-limit consideration: callers iterate symbols sequentially, so
	// each request is spaced rather than fired concurrently.
	time.Sleep(requestSpacing)
	tf := marketdata.NewTimeFrame(int(d/time.Minute), marketdata.Min)
	bars, err := a.mdClient.GetBars(symbol.Normalize(sym), marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Start:      time.Now().Add(-time.Duration(limit*4) * d),
		TotalLimit: limit,
	})
	if err != nil {
		return nil, classify("broker.GetBars", err)
	}
	out := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, market.Bar{
			Symbol:    symbol.Normalize(sym),
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	market.SortBars(out)
	return out, nil
}

func (a *Adapter) toFill(o *alpaca.Order) broker.Fill {
	f := broker.Fill{
		OrderID:        o.ID,
		Symbol:         o.Symbol,
		Side:           broker.Side(o.Side),
		FilledQty:      o.FilledQty.InexactFloat64(),
		FilledAvgPrice: decimalFloat(o.FilledAvgPrice),
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		AccountType:    a.account,
	}
	if o.FilledAt != nil {
		f.FilledAt = *o.FilledAt
	}
	return f
}

func decimalFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}

// classify maps SDK errors onto the retry taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *alpaca.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return traderr.Wrap(traderr.RateLimited, op, err)
		case apiErr.StatusCode == http.StatusForbidden:
			return traderr.Wrap(traderr.InsufficientFunds, op, err)
		case apiErr.StatusCode == http.StatusUnprocessableEntity:
			return traderr.Wrap(traderr.InvalidOrder, op, err)
		case apiErr.StatusCode >= 500:
			return traderr.Wrap(traderr.UpstreamUnavailable, op, err)
		}
		return traderr.Wrap(traderr.Unknown, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return traderr.Wrap(traderr.UpstreamUnavailable, op, err)
	}
	return traderr.Wrap(traderr.UpstreamUnavailable, op, fmt.Errorf("transport: %w", err))
}
