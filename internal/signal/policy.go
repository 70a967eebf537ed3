package signal

import (
	"context"
	"fmt"
	"time"

	"tradewind/internal/config"
	"tradewind/internal/ledger"
)

// Verdict is the outcome of a pre-trade policy check. Reason is only set
// when the trade is refused and feeds the signal's reasoning text.
type Verdict struct {
	Allowed bool
	Reason  string
}

// BuyPolicy decides whether a new buy is permitted right now.
type BuyPolicy interface {
	AllowBuy(ctx context.Context, userID, accountType string) (Verdict, error)
}

// LedgerPolicy enforces the cash-account trading rules against the trade
// log: a round-trip frequency cap over a rolling window, and a settlement
// hold that keeps freshly bought positions from being churned. Accounts on
// the 25k_plus strategy are exempt from both.
type LedgerPolicy struct {
	store *ledger.Store
	cfg   config.TradingConfig
	now   func() time.Time
}

func NewLedgerPolicy(store *ledger.Store, cfg config.TradingConfig) *LedgerPolicy {
	return &LedgerPolicy{store: store, cfg: cfg, now: time.Now}
}

func (p *LedgerPolicy) AllowBuy(ctx context.Context, userID, accountType string) (Verdict, error) {
	if p.cfg.Strategy != config.StrategyCash {
		return Verdict{Allowed: true}, nil
	}

	windowStart := tradingDaysAgo(p.now(), p.cfg.RoundTripWindowDays)
	trips, err := p.store.RoundTripsSince(ctx, userID, accountType, windowStart)
	if err != nil {
		return Verdict{}, fmt.Errorf("signal: round trip lookup: %w", err)
	}
	if trips >= int64(p.cfg.MaxRoundTrips) {
		return Verdict{
			Reason: fmt.Sprintf("round trip cap reached (%d in last %d trading days)", trips, p.cfg.RoundTripWindowDays),
		}, nil
	}

	settleStart := tradingDaysAgo(p.now(), p.cfg.SettlementDays)
	unsettled, err := p.store.UnsettledBuysSince(ctx, userID, accountType, settleStart)
	if err != nil {
		return Verdict{}, fmt.Errorf("signal: settlement lookup: %w", err)
	}
	if unsettled > 0 {
		return Verdict{
			Reason: fmt.Sprintf("%d unsettled buys within T+%d", unsettled, p.cfg.SettlementDays),
		}, nil
	}
	return Verdict{Allowed: true}, nil
}

// tradingDaysAgo walks back n trading days from t, skipping weekends. Good
// enough as a settlement proxy; exchange holidays are not modeled.
func tradingDaysAgo(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, -1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t
}
