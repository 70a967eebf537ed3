package bot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewind/internal/broker"
	"tradewind/internal/config"
	"tradewind/internal/ledger"
	"tradewind/internal/macro"
	"tradewind/internal/market"
	"tradewind/internal/news"
	"tradewind/internal/signal"
)

type stubBroker struct {
	marketOpen bool
	clockErr   error
	equity     float64
	quote      broker.Quote
	quoteErr   error
	placed     []broker.OrderRequest
	placeErr   error
	bars       []market.Bar
	barsErr    error
}

func (s *stubBroker) PlaceOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	if s.placeErr != nil {
		return broker.OrderResult{}, s.placeErr
	}
	s.placed = append(s.placed, req)
	return broker.OrderResult{OrderID: "order-1", Symbol: req.Symbol, Side: req.Side, Qty: req.Qty}, nil
}

func (s *stubBroker) GetPositions(context.Context) ([]broker.Position, error) { return nil, nil }

func (s *stubBroker) GetOrderHistory(context.Context, int) ([]broker.Fill, error) { return nil, nil }

func (s *stubBroker) GetOrder(context.Context, string) (broker.Fill, error) {
	return broker.Fill{}, errors.New("not implemented")
}

func (s *stubBroker) GetLatestQuote(context.Context, string) (broker.Quote, error) {
	return s.quote, s.quoteErr
}

func (s *stubBroker) GetAccountEquity(context.Context) (float64, error) { return s.equity, nil }

func (s *stubBroker) IsMarketOpen(context.Context) (bool, error) { return s.marketOpen, s.clockErr }

func (s *stubBroker) GetBars(context.Context, string, string, int) ([]market.Bar, error) {
	return s.bars, s.barsErr
}

type stubSignals struct {
	signals []signal.Signal
	err     error
	calls   int
	inputs  []signal.Input
}

func (s *stubSignals) Generate(_ context.Context, _ string, inputs []signal.Input, _ float64) ([]signal.Signal, error) {
	s.calls++
	s.inputs = inputs
	return s.signals, s.err
}

type stubFills struct{ calls int }

func (s *stubFills) SyncFills(context.Context, string, int) error {
	s.calls++
	return nil
}

type stubNews struct{}

func (stubNews) SentimentForSymbols(context.Context, []string, int) (map[string]news.SentimentScore, error) {
	return map[string]news.SentimentScore{"AAPL": {Symbol: "AAPL", Score: 0.2}}, nil
}

type stubMacro struct{ err error }

func (s stubMacro) Indicators(context.Context) (macro.Snapshot, error) {
	return macro.Snapshot{VIX: 15}, s.err
}

func someBars(n int) []market.Bar {
	bars := make([]market.Bar, n)
	ts := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = market.Bar{Symbol: "AAPL", Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open: 50, High: 51, Low: 49, Close: 50, Volume: 1000}
	}
	return bars
}

func testCfg() config.Config {
	return config.Config{
		Market: config.MarketConfig{
			Symbols:      []string{"AAPL"},
			FastInterval: "1m",
			SlowInterval: "5m",
			LookbackBars: 60,
		},
		Trading: config.TradingConfig{
			Strategy:            config.StrategyCash,
			ConfidenceThreshold: 0.6,
			CashPositionPct:     0.01,
			MarginPositionPct:   0.05,
			AccountType:         "paper",
		},
		Bot: config.BotConfig{
			Interval:          "1m",
			StaleAfterMinutes: 5,
		},
		News: config.NewsConfig{LookbackDays: 3},
	}
}

type harness struct {
	store   *ledger.Store
	broker  *stubBroker
	signals *stubSignals
	fills   *stubFills
	manager *Manager
	bot     *Bot
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	br := &stubBroker{marketOpen: true, equity: 10000, bars: someBars(60),
		quote: broker.Quote{Symbol: "AAPL", Bid: 49.9, Ask: 50}}
	sigs := &stubSignals{}
	fills := &stubFills{}
	m := NewManager(cfg, Deps{
		Store:   store,
		Broker:  br,
		Data:    br,
		News:    stubNews{},
		Macro:   stubMacro{},
		Signals: sigs,
		Fills:   fills,
	})
	return &harness{store: store, broker: br, signals: sigs, fills: fills, manager: m, bot: m.Bot("u1")}
}

func TestTickSkipsWhenMarketClosed(t *testing.T) {
	h := newHarness(t, testCfg())
	h.broker.marketOpen = false

	require.NoError(t, h.bot.Tick(context.Background()))
	assert.Zero(t, h.signals.calls)
	assert.Zero(t, h.fills.calls)

	state, err := h.store.GetBotState(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.NotNil(t, state.LastRun, "a skipped tick still stamps last_run")
}

func TestTickAlwaysOnBypassesMarketClock(t *testing.T) {
	cfg := testCfg()
	cfg.Bot.AlwaysOn = true
	h := newHarness(t, cfg)
	h.broker.marketOpen = false

	require.NoError(t, h.bot.Tick(context.Background()))
	assert.Equal(t, 1, h.signals.calls)
	assert.Equal(t, 1, h.fills.calls)
	require.Len(t, h.signals.inputs, 1)
	assert.Equal(t, 0.2, h.signals.inputs[0].Sentiment)
}

func TestTickExecutesBuyWithSizing(t *testing.T) {
	h := newHarness(t, testCfg())
	h.signals.signals = []signal.Signal{
		{Symbol: "AAPL", Action: signal.ActionBuy, Confidence: 0.8, Price: 50},
	}

	require.NoError(t, h.bot.Tick(context.Background()))
	require.Len(t, h.broker.placed, 1)

	order := h.broker.placed[0]
	assert.Equal(t, broker.SideBuy, order.Side)
	// 1% of 10000 equity at ask 50.
	assert.InDelta(t, 2.0, order.Qty, 1e-9)
	assert.Equal(t, "market", order.Type)
}

func TestTickBuyCappedByMaxTradeSize(t *testing.T) {
	cfg := testCfg()
	cfg.Trading.Strategy = config.Strategy25KPlus
	cfg.Trading.MaxTradeSize = 200
	h := newHarness(t, cfg)
	h.signals.signals = []signal.Signal{
		{Symbol: "AAPL", Action: signal.ActionBuy, Confidence: 0.8, Price: 50},
	}

	require.NoError(t, h.bot.Tick(context.Background()))
	require.Len(t, h.broker.placed, 1)
	// 5% of 10000 is 500; the 200 cap wins, so 200/50 shares.
	assert.InDelta(t, 4.0, h.broker.placed[0].Qty, 1e-9)
}

func TestTickBuyRefusedPastDailyLossLimit(t *testing.T) {
	cfg := testCfg()
	cfg.Trading.DailyLossLimit = 500
	h := newHarness(t, cfg)
	h.signals.signals = []signal.Signal{
		{Symbol: "AAPL", Action: signal.ActionBuy, Confidence: 0.8, Price: 50},
	}

	soldAt := time.Now().Add(-time.Hour)
	require.NoError(t, h.store.Create(context.Background(), &ledger.TradeLogModel{
		UserID:        "u1",
		AlpacaOrderID: "loss-1",
		Symbol:        "TSLA",
		Action:        "buy",
		Qty:           10,
		Status:        ledger.TradeStatusClosed,
		SellTimestamp: &soldAt,
		ProfitLoss:    -600,
		AccountType:   "paper",
	}))

	require.NoError(t, h.bot.Tick(context.Background()))
	assert.Empty(t, h.broker.placed)
}

func TestTickSellUsesLedgerQuantity(t *testing.T) {
	h := newHarness(t, testCfg())
	h.signals.signals = []signal.Signal{
		{Symbol: "AAPL", Action: signal.ActionSell, Confidence: 0.9, Price: 55},
	}

	ctx := context.Background()
	for i, qty := range []float64{3, 4.5} {
		require.NoError(t, h.store.Create(ctx, &ledger.TradeLogModel{
			UserID:        "u1",
			AlpacaOrderID: "buy-" + string(rune('a'+i)),
			Symbol:        "AAPL",
			Action:        "buy",
			Qty:           qty,
			RemainingQty:  qty,
			BuyTimestamp:  time.Now().Add(-48 * time.Hour),
			Status:        ledger.TradeStatusOpen,
			AccountType:   "paper",
		}))
	}

	require.NoError(t, h.bot.Tick(ctx))
	require.Len(t, h.broker.placed, 1)
	order := h.broker.placed[0]
	assert.Equal(t, broker.SideSell, order.Side)
	assert.InDelta(t, 7.5, order.Qty, 1e-9)
}

func TestTickSellWithoutPositionPlacesNothing(t *testing.T) {
	h := newHarness(t, testCfg())
	h.signals.signals = []signal.Signal{
		{Symbol: "AAPL", Action: signal.ActionSell, Confidence: 0.9, Price: 55},
	}

	require.NoError(t, h.bot.Tick(context.Background()))
	assert.Empty(t, h.broker.placed)
}

func TestTickRecordsGenerateError(t *testing.T) {
	h := newHarness(t, testCfg())
	h.signals.err = errors.New("classifier down")

	err := h.bot.Tick(context.Background())
	require.Error(t, err)

	state, serr := h.store.GetBotState(context.Background(), "u1")
	require.NoError(t, serr)
	require.NotNil(t, state)
	assert.Contains(t, state.Error, "classifier down")
	assert.Contains(t, h.bot.Status().Error, "classifier down")
}

func TestCheckAndResume(t *testing.T) {
	cfg := testCfg()
	cfg.Bot.AlwaysOn = true
	h := newHarness(t, cfg)
	ctx := context.Background()

	t.Run("no state is a no-op", func(t *testing.T) {
		require.NoError(t, h.manager.CheckAndResume(ctx, "u1"))
		assert.Zero(t, h.signals.calls)
	})

	t.Run("stale state triggers a tick", func(t *testing.T) {
		stale := time.Now().Add(-10 * time.Minute)
		require.NoError(t, h.store.SaveBotState(ctx, &ledger.BotStateModel{
			UserID: "u1", IsRunning: true, AlwaysOn: true, LastRun: &stale,
		}))
		require.NoError(t, h.manager.CheckAndResume(ctx, "u1"))
		assert.Equal(t, 1, h.signals.calls)
	})

	t.Run("fresh state does not", func(t *testing.T) {
		fresh := time.Now()
		require.NoError(t, h.store.SaveBotState(ctx, &ledger.BotStateModel{
			UserID: "u1", IsRunning: true, AlwaysOn: true, LastRun: &fresh,
		}))
		require.NoError(t, h.manager.CheckAndResume(ctx, "u1"))
		assert.Equal(t, 1, h.signals.calls)
	})
}

func TestStartStop(t *testing.T) {
	cfg := testCfg()
	cfg.Bot.RunImmediately = false
	h := newHarness(t, cfg)
	ctx := context.Background()

	require.NoError(t, h.bot.Start(ctx))
	assert.Error(t, h.bot.Start(ctx), "double start must fail")
	assert.True(t, h.bot.Status().Running)

	require.NoError(t, h.bot.Stop(ctx))
	assert.False(t, h.bot.Status().Running)
	assert.Error(t, h.bot.Stop(ctx), "double stop must fail")

	state, err := h.store.GetBotState(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.IsRunning)
}
