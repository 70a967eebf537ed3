package broker

import (
	"context"

	"tradewind/internal/market"
)

// Adapter is the trading-side contract against the broker. Implementations
// wrap a specific broker API; the engine only depends on this interface.
type Adapter interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetOrderHistory(ctx context.Context, limit int) ([]Fill, error)
	GetOrder(ctx context.Context, orderID string) (Fill, error)
	GetLatestQuote(ctx context.Context, symbol string) (Quote, error)
	GetAccountEquity(ctx context.Context) (float64, error)
	IsMarketOpen(ctx context.Context) (bool, error)
}

// DataProvider serves OHLCV history for indicator computation.
type DataProvider interface {
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error)
}
