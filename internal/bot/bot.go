// Package bot runs the per-user trading loop: on every tick it gathers
// market context, asks the signal pipeline for decisions, places the orders
// that survive the gates, and reconciles fills back into the ledger. A tick
// that fails records its error and waits for the next interval; the loop
// itself never dies with it.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradewind/internal/broker"
	"tradewind/internal/config"
	"tradewind/internal/ledger"
	"tradewind/internal/logger"
	"tradewind/internal/macro"
	"tradewind/internal/market"
	"tradewind/internal/news"
	"tradewind/internal/scheduler"
	"tradewind/internal/signal"
)

// orderHistoryLimit bounds how far back each fill sync looks.
const orderHistoryLimit = 100

// neutralRisk is assumed when the macro provider is unreachable: neither a
// reason to pile in nor to stand down.
const neutralRisk = 0.5

// SignalSource produces the tick's decisions.
type SignalSource interface {
	Generate(ctx context.Context, userID string, inputs []signal.Input, marketRisk float64) ([]signal.Signal, error)
}

// FillSyncer pulls executed orders into the ledger after the tick trades.
type FillSyncer interface {
	SyncFills(ctx context.Context, userID string, limit int) error
}

// Deps are the collaborators one bot needs. Broker and Data are usually the
// same adapter instance; they are separate fields because tests swap them
// independently.
type Deps struct {
	Store   *ledger.Store
	Broker  broker.Adapter
	Data    broker.DataProvider
	News    news.Provider
	Macro   macro.Provider
	Signals SignalSource
	Fills   FillSyncer
}

// Status is the externally visible bot state.
type Status struct {
	UserID   string     `json:"user_id"`
	Running  bool       `json:"running"`
	AlwaysOn bool       `json:"always_on"`
	Interval string     `json:"interval"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Bot is the per-user trading loop. All mutable state sits behind mu; the
// tick pipeline itself is serialized by the shared keyed mutex so that a
// scheduler tick and a keep-alive tick never overlap.
type Bot struct {
	userID string
	cfg    config.Config
	deps   Deps
	locks  *keyedMutex
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun *time.Time
	lastErr string
	latest  []signal.Signal
}

func newBot(userID string, cfg config.Config, deps Deps, locks *keyedMutex) *Bot {
	return &Bot{
		userID: userID,
		cfg:    cfg,
		deps:   deps,
		locks:  locks,
		now:    time.Now,
	}
}

// Start launches the interval loop. The loop inherits ctx: cancelling it
// stops the bot without a Stop call, e.g. on process shutdown.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot: %s already running", b.userID)
	}
	interval, ok := scheduler.ParseIntervalDuration(b.cfg.Bot.Interval)
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("bot: invalid interval %q", b.cfg.Bot.Interval)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.done = make(chan struct{})
	b.lastErr = ""
	done := b.done
	b.mu.Unlock()

	if err := b.persistState(ctx, true, ""); err != nil {
		b.mu.Lock()
		b.running = false
		b.cancel = nil
		b.mu.Unlock()
		cancel()
		return err
	}

	sched := scheduler.NewIntervalScheduler(loopCtx, interval)
	sched.RunImmediately = b.cfg.Bot.RunImmediately
	go func() {
		defer close(done)
		sched.Start(func() {
			if err := b.Tick(loopCtx); err != nil {
				logger.Errorf("bot: %s tick: %v", b.userID, err)
			}
		})
	}()
	logger.Infof("bot: %s started interval=%s always_on=%v", b.userID, interval, b.cfg.Bot.AlwaysOn)
	return nil
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot: %s not running", b.userID)
	}
	cancel := b.cancel
	done := b.done
	b.running = false
	b.cancel = nil
	b.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Infof("bot: %s stopped", b.userID)
	return b.persistState(ctx, false, "")
}

// Status reports the current loop state without touching the store.
func (b *Bot) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		UserID:   b.userID,
		Running:  b.running,
		AlwaysOn: b.cfg.Bot.AlwaysOn,
		Interval: b.cfg.Bot.Interval,
		LastRun:  b.lastRun,
		Error:    b.lastErr,
	}
}

// LatestSignals returns the decisions from the most recent completed tick.
func (b *Bot) LatestSignals() []signal.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]signal.Signal, len(b.latest))
	copy(out, b.latest)
	return out
}

// Tick runs one full decision cycle. Panics inside the cycle are contained
// here so a bad tick cannot take the scheduler loop down with it.
func (b *Bot) Tick(ctx context.Context) (err error) {
	unlock := b.locks.Lock(b.userID + "|" + b.cfg.Trading.AccountType)
	defer unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bot: tick panic: %v", r)
		}
		b.recordTick(ctx, err)
	}()

	if !b.cfg.Bot.AlwaysOn {
		open, merr := b.deps.Broker.IsMarketOpen(ctx)
		if merr != nil {
			return fmt.Errorf("bot: market clock: %w", merr)
		}
		if !open {
			logger.Debugf("bot: %s market closed, skipping tick", b.userID)
			return nil
		}
	}

	inputs := b.collectInputs(ctx)
	if len(inputs) == 0 {
		logger.Warnf("bot: %s no symbol produced usable bars", b.userID)
		return nil
	}

	risk := b.marketRisk(ctx)
	signals, err := b.deps.Signals.Generate(ctx, b.userID, inputs, risk)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.latest = signals
	b.mu.Unlock()

	for _, sig := range signals {
		if !sig.Actionable() {
			continue
		}
		if oerr := b.execute(ctx, sig); oerr != nil {
			logger.Errorf("bot: %s %s %s: %v", b.userID, sig.Action, sig.Symbol, oerr)
		}
	}

	if serr := b.deps.Fills.SyncFills(ctx, b.userID, orderHistoryLimit); serr != nil {
		logger.Warnf("bot: %s fill sync: %v", b.userID, serr)
	}
	return nil
}

// collectInputs fetches both timeframes per symbol, attaching sentiment.
// Symbols whose bars cannot be fetched are dropped from this tick only.
func (b *Bot) collectInputs(ctx context.Context) []signal.Input {
	mc := b.cfg.Market
	sentiments := b.sentiment(ctx)

	inputs := make([]signal.Input, 0, len(mc.Symbols))
	for _, sym := range mc.Symbols {
		fast, err := b.deps.Data.GetBars(ctx, sym, mc.FastInterval, mc.LookbackBars)
		if err != nil {
			logger.Warnf("bot: %s bars %s/%s: %v", b.userID, sym, mc.FastInterval, err)
			continue
		}
		slow, err := b.deps.Data.GetBars(ctx, sym, mc.SlowInterval, mc.LookbackBars)
		if err != nil {
			logger.Warnf("bot: %s bars %s/%s: %v", b.userID, sym, mc.SlowInterval, err)
			continue
		}
		in := signal.Input{Symbol: sym, Bars: market.BarSet{Fast: fast, Slow: slow}}
		if s, ok := sentiments[sym]; ok {
			in.Sentiment = s.Score
		}
		inputs = append(inputs, in)
	}
	return inputs
}

func (b *Bot) sentiment(ctx context.Context) map[string]news.SentimentScore {
	scores, err := b.deps.News.SentimentForSymbols(ctx, b.cfg.Market.Symbols, b.cfg.News.LookbackDays)
	if err != nil {
		logger.Warnf("bot: %s sentiment unavailable, assuming neutral: %v", b.userID, err)
		return map[string]news.SentimentScore{}
	}
	return scores
}

func (b *Bot) marketRisk(ctx context.Context) float64 {
	snap, err := b.deps.Macro.Indicators(ctx)
	if err != nil {
		logger.Warnf("bot: %s macro unavailable, assuming neutral risk: %v", b.userID, err)
		return neutralRisk
	}
	return macro.MarketRisk(snap)
}

func (b *Bot) execute(ctx context.Context, sig signal.Signal) error {
	switch sig.Action {
	case signal.ActionBuy:
		return b.executeBuy(ctx, sig)
	case signal.ActionSell:
		return b.executeSell(ctx, sig)
	}
	return nil
}

// executeBuy sizes the order from account equity, bounded by the configured
// per-trade cap, and refuses to trade past the daily loss limit.
func (b *Bot) executeBuy(ctx context.Context, sig signal.Signal) error {
	tc := b.cfg.Trading

	if tc.DailyLossLimit > 0 {
		dayStart := b.startOfDay()
		pl, err := b.deps.Store.RealizedPLSince(ctx, b.userID, tc.AccountType, dayStart)
		if err != nil {
			return fmt.Errorf("daily loss lookup: %w", err)
		}
		if pl <= -tc.DailyLossLimit {
			logger.Warnf("bot: %s daily loss limit hit (%.2f), refusing buy %s", b.userID, pl, sig.Symbol)
			return nil
		}
	}

	equity, err := b.deps.Broker.GetAccountEquity(ctx)
	if err != nil {
		return fmt.Errorf("account equity: %w", err)
	}

	price := sig.Price
	if quote, qerr := b.deps.Broker.GetLatestQuote(ctx, sig.Symbol); qerr == nil && quote.Ask > 0 {
		price = quote.Ask
	}
	if price <= 0 {
		return fmt.Errorf("no usable price for %s", sig.Symbol)
	}

	notional := decimal.NewFromFloat(equity).Mul(decimal.NewFromFloat(tc.PositionPct()))
	if tc.MaxTradeSize > 0 {
		limit := decimal.NewFromFloat(tc.MaxTradeSize)
		if notional.GreaterThan(limit) {
			notional = limit
		}
	}
	qty := notional.Div(decimal.NewFromFloat(price)).Round(4)
	if !qty.IsPositive() {
		logger.Warnf("bot: %s buy %s sized to zero (equity %.2f)", b.userID, sig.Symbol, equity)
		return nil
	}

	result, err := b.deps.Broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:      sig.Symbol,
		Qty:         qty.InexactFloat64(),
		Side:        broker.SideBuy,
		Type:        "market",
		TimeInForce: "day",
	})
	if err != nil {
		return err
	}
	logger.Infof("bot: %s buy %s qty=%s order=%s confidence=%.2f", b.userID, sig.Symbol, qty, result.OrderID, sig.Confidence)
	return nil
}

// executeSell closes the full ledger position for the symbol. Quantity comes
// from the ledger, not the broker, so positions opened outside the system
// are never sold by it.
func (b *Bot) executeSell(ctx context.Context, sig signal.Signal) error {
	buys, err := b.deps.Store.OpenBuys(ctx, b.userID, sig.Symbol, b.cfg.Trading.AccountType)
	if err != nil {
		return fmt.Errorf("open position lookup: %w", err)
	}
	qty := decimal.Zero
	for _, row := range buys {
		qty = qty.Add(decimal.NewFromFloat(row.RemainingQty))
	}
	if !qty.IsPositive() {
		logger.Debugf("bot: %s sell %s skipped, no ledger position", b.userID, sig.Symbol)
		return nil
	}

	result, err := b.deps.Broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:      sig.Symbol,
		Qty:         qty.InexactFloat64(),
		Side:        broker.SideSell,
		Type:        "market",
		TimeInForce: "day",
	})
	if err != nil {
		return err
	}
	logger.Infof("bot: %s sell %s qty=%s order=%s confidence=%.2f", b.userID, sig.Symbol, qty, result.OrderID, sig.Confidence)
	return nil
}

func (b *Bot) startOfDay() time.Time {
	now := b.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// recordTick stamps last_run and the tick's error onto both the in-memory
// status and the persisted bot state.
func (b *Bot) recordTick(ctx context.Context, tickErr error) {
	ranAt := b.now().UTC()
	msg := ""
	if tickErr != nil {
		msg = tickErr.Error()
	}
	b.mu.Lock()
	b.lastRun = &ranAt
	b.lastErr = msg
	running := b.running
	b.mu.Unlock()

	if err := b.persistState(ctx, running, msg); err != nil {
		logger.Errorf("bot: %s persist state: %v", b.userID, err)
	}
}

func (b *Bot) persistState(ctx context.Context, running bool, errMsg string) error {
	cfgJSON, _ := json.Marshal(map[string]any{
		"trading": b.cfg.Trading,
		"bot":     b.cfg.Bot,
		"symbols": b.cfg.Market.Symbols,
	})
	b.mu.Lock()
	lastRun := b.lastRun
	b.mu.Unlock()
	return b.deps.Store.SaveBotState(ctx, &ledger.BotStateModel{
		UserID:    b.userID,
		IsRunning: running,
		AlwaysOn:  b.cfg.Bot.AlwaysOn,
		Config:    cfgJSON,
		LastRun:   lastRun,
		Error:     errMsg,
		UpdatedAt: b.now().UTC(),
	})
}
