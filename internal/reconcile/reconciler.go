// Package reconcile turns the broker's stream of fill events into
// FIFO-matched trade pairs in the ledger. It is the only writer of trade
// rows; statistics and views read what it produces.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tradewind/internal/broker"
	"tradewind/internal/ledger"
	"tradewind/internal/logger"
	symutil "tradewind/internal/pkg/symbol"
)

// qtyEpsilon treats fractional-share dust below this as fully consumed.
const qtyEpsilon = 1e-9

// priceTolerance is the drift above which a logged price is corrected
// against the broker's authoritative fill price.
const priceTolerance = 0.01

// interRequestDelay spaces per-order broker lookups during price
// reconciliation to respect the API rate limit.
const interRequestDelay = 150 * time.Millisecond

// Reconciler matches fills into trade pairs. Adapters holds one broker
// connection per account type; a missing entry simply skips that account.
type Reconciler struct {
	store    *ledger.Store
	adapters map[broker.AccountType]broker.Adapter
	now      func() time.Time
}

func New(store *ledger.Store, adapters map[broker.AccountType]broker.Adapter) *Reconciler {
	return &Reconciler{store: store, adapters: adapters, now: time.Now}
}

// PositionView is one open holding as exposed to callers: a ledger row, or
// a broker position the ledger has no record of.
type PositionView struct {
	Symbol       string    `json:"symbol"`
	Qty          float64   `json:"qty"`
	BuyPrice     float64   `json:"buy_price"`
	BuyTimestamp time.Time `json:"buy_timestamp"`
	AccountType  string    `json:"account_type"`
	TradePairID  string    `json:"trade_pair_id,omitempty"`
	Note         string    `json:"note,omitempty"`
}

// SyncFills pulls order history for every configured account and ingests
// each fill. Accounts fail independently: a paper-API outage never blocks
// live reconciliation. The combined error reports every failed account.
func (r *Reconciler) SyncFills(ctx context.Context, userID string, limit int) error {
	// No errgroup.WithContext here: one account's failure must not cancel
	// the other account's fetch.
	var g errgroup.Group
	var mu sync.Mutex
	var errs []error
	for acct, adapter := range r.adapters {
		acct, adapter := acct, adapter
		g.Go(func() error {
			fills, err := adapter.GetOrderHistory(ctx, limit)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("account %s: %w", acct, err))
				mu.Unlock()
				return nil
			}
			// FIFO correctness requires time order regardless of how the
			// broker paginates.
			sort.SliceStable(fills, func(i, j int) bool {
				return fills[i].EffectiveTime().Before(fills[j].EffectiveTime())
			})
			for _, f := range fills {
				if f.AccountType == "" {
					f.AccountType = acct
				}
				if err := r.IngestFill(ctx, userID, f); err != nil {
					logger.Warnf("reconcile: ingest %s fill %s failed: %v", acct, f.OrderID, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// IngestFill upserts one fill into the ledger, keyed by
// (user, alpaca_order_id). Safe to call any number of times with the same
// fill; re-ingestion updates fields in place and never re-runs matching.
func (r *Reconciler) IngestFill(ctx context.Context, userID string, fill broker.Fill) error {
	if err := fill.Validate(); err != nil {
		return err
	}
	fill.Symbol = symutil.Normalize(fill.Symbol)

	return r.store.Transaction(ctx, func(tx *ledger.Store) error {
		if fill.Side == broker.SideBuy {
			return r.ingestBuy(ctx, tx, userID, fill)
		}
		return r.ingestSell(ctx, tx, userID, fill)
	})
}

func (r *Reconciler) ingestBuy(ctx context.Context, tx *ledger.Store, userID string, fill broker.Fill) error {
	existing, err := tx.FindByOrderID(ctx, userID, fill.OrderID)
	if err != nil {
		return err
	}
	if existing != nil {
		// Partial -> full transition: grow remaining by the qty delta so
		// already-matched quantity is preserved.
		matched := existing.Qty - existing.RemainingQty
		existing.Qty = fill.FilledQty
		if existing.Status == ledger.TradeStatusOpen {
			existing.RemainingQty = math.Max(fill.FilledQty-matched, 0)
		}
		existing.Price = fill.FilledAvgPrice
		existing.BuyPrice = fill.FilledAvgPrice
		existing.TotalValue = fill.FilledQty * fill.FilledAvgPrice
		existing.OrderStatus = fill.Status
		existing.UpdatedAt = r.now().UTC()
		return tx.Save(ctx, existing)
	}

	now := r.now().UTC()
	row := &ledger.TradeLogModel{
		UserID:        userID,
		AlpacaOrderID: fill.OrderID,
		TradePairID:   uuid.NewString(),
		Symbol:        fill.Symbol,
		Action:        "buy",
		Qty:           fill.FilledQty,
		RemainingQty:  fill.FilledQty,
		Price:         fill.FilledAvgPrice,
		TotalValue:    fill.FilledQty * fill.FilledAvgPrice,
		Timestamp:     fill.EffectiveTime(),
		Status:        ledger.TradeStatusOpen,
		BuyTimestamp:  fill.EffectiveTime(),
		BuyPrice:      fill.FilledAvgPrice,
		AccountType:   string(fill.AccountType),
		OrderStatus:   fill.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tx.Create(ctx, row)
}

func (r *Reconciler) ingestSell(ctx context.Context, tx *ledger.Store, userID string, fill broker.Fill) error {
	// A sell may already be recorded two ways: matched into buy rows, or
	// as an unmatched legacy row under its own order id.
	matchedRows, err := tx.FindBySellOrderID(ctx, userID, fill.OrderID)
	if err != nil {
		return err
	}
	legacy, err := tx.FindByOrderID(ctx, userID, fill.OrderID)
	if err != nil {
		return err
	}
	if len(matchedRows) > 0 || legacy != nil {
		return r.updateSeenSell(ctx, tx, matchedRows, legacy, fill)
	}

	buys, err := tx.OpenBuys(ctx, userID, fill.Symbol, string(fill.AccountType))
	if err != nil {
		return err
	}
	if len(buys) == 0 {
		return r.recordUnmatchedSell(ctx, tx, userID, fill)
	}

	sellRemaining := fill.FilledQty
	for i := range buys {
		if sellRemaining <= qtyEpsilon {
			break
		}
		buy := &buys[i]
		matched := math.Min(buy.RemainingQty, sellRemaining)
		sellRemaining -= matched
		r.applyMatch(buy, fill, matched)
		if err := tx.Save(ctx, buy); err != nil {
			return err
		}
	}
	if sellRemaining > qtyEpsilon {
		// Sell outran every open buy; log the residual as unmatched so the
		// ledger still accounts for the full executed quantity.
		logger.Warnf("reconcile: sell %s qty %.4f exceeds open buys by %.4f for %s",
			fill.OrderID, fill.FilledQty, sellRemaining, fill.Symbol)
		residual := fill
		residual.FilledQty = sellRemaining
		return r.recordUnmatchedSell(ctx, tx, userID, residual)
	}
	return nil
}

// applyMatch consumes matched quantity from an open buy row. A fully
// consumed buy closes; a partially consumed one stays open with reduced
// remaining quantity but already carries the realized portion of P&L.
func (r *Reconciler) applyMatch(buy *ledger.TradeLogModel, sell broker.Fill, matched float64) {
	buy.RemainingQty -= matched
	if buy.RemainingQty < qtyEpsilon {
		buy.RemainingQty = 0
	}

	buy.ProfitLoss += (sell.FilledAvgPrice - buy.BuyPrice) * matched
	// Percentage always derives from accumulated P&L over matched cost, so
	// it stays consistent when several sells consume the same row.
	buy.ProfitLossPercent = matchedPct(buy)

	sellAt := sell.EffectiveTime()
	buy.SellTimestamp = &sellAt
	buy.SellPrice = sell.FilledAvgPrice
	buy.RecordSellOrder(sell.OrderID)
	buy.HoldingDuration = FormatHoldingDuration(sellAt.Sub(buy.BuyTimestamp))
	buy.OrderStatus = sell.Status
	buy.UpdatedAt = r.now().UTC()

	if buy.RemainingQty == 0 {
		buy.Status = ledger.TradeStatusClosed
	}
}

// updateSeenSell refreshes price/status fields for a sell observed before,
// recomputing P&L on the rows it touched. Matching is never re-run for a
// seen order id; order history reports closed orders, so quantity growth
// here is out of contract and only flagged.
func (r *Reconciler) updateSeenSell(ctx context.Context, tx *ledger.Store, matchedRows []ledger.TradeLogModel, legacy *ledger.TradeLogModel, fill broker.Fill) error {
	for i := range matchedRows {
		row := &matchedRows[i]
		if row.SellOrderID != fill.OrderID {
			// An older sell on a row a newer sell touched since; the row's
			// sell fields belong to the newer sell, nothing to refresh.
			continue
		}
		if math.Abs(row.SellPrice-fill.FilledAvgPrice) > priceTolerance {
			if row.SellOrderCount() > 1 {
				// Per-sell quantities are not persisted, so one sell's price
				// cannot recompute a row several sells consumed.
				logger.Warnf("reconcile: sell %s price drift on multi-sell row %s not auto-corrected",
					fill.OrderID, row.AlpacaOrderID)
			} else {
				recomputeSellSide(row, fill.FilledAvgPrice)
			}
		}
		row.OrderStatus = fill.Status
		row.UpdatedAt = r.now().UTC()
		if err := tx.Save(ctx, row); err != nil {
			return err
		}
	}
	if legacy != nil {
		legacy.Price = fill.FilledAvgPrice
		legacy.SellPrice = fill.FilledAvgPrice
		legacy.TotalValue = fill.FilledQty * fill.FilledAvgPrice
		legacy.Qty = fill.FilledQty
		legacy.OrderStatus = fill.Status
		legacy.UpdatedAt = r.now().UTC()
		if err := tx.Save(ctx, legacy); err != nil {
			return err
		}
	}
	var prevQty float64
	for _, row := range matchedRows {
		prevQty += row.Qty - row.RemainingQty
	}
	if legacy == nil && fill.FilledQty-prevQty > qtyEpsilon {
		logger.Warnf("reconcile: seen sell %s grew from %.4f to %.4f; extra qty not matched",
			fill.OrderID, prevQty, fill.FilledQty)
	}
	return nil
}

func recomputeSellSide(row *ledger.TradeLogModel, sellPrice float64) {
	matched := row.Qty - row.RemainingQty
	row.SellPrice = sellPrice
	row.ProfitLoss = (sellPrice - row.BuyPrice) * matched
	row.ProfitLossPercent = matchedPct(row)
}

// matchedPct is accumulated P&L over matched cost, in percent.
func matchedPct(row *ledger.TradeLogModel) float64 {
	matched := row.Qty - row.RemainingQty
	if row.BuyPrice <= 0 || matched <= 0 {
		return 0
	}
	return row.ProfitLoss / (row.BuyPrice * matched) * 100
}

// recordUnmatchedSell logs a sell that found no open buy. Reported, not
// fatal: typically a position opened outside the system.
func (r *Reconciler) recordUnmatchedSell(ctx context.Context, tx *ledger.Store, userID string, fill broker.Fill) error {
	logger.Warnf("reconcile: sell %s for %s has no open buy, recording as legacy entry", fill.OrderID, fill.Symbol)
	sellAt := fill.EffectiveTime()
	note, _ := json.Marshal(map[string]string{"note": "unmatched sell - no open buy in ledger"})
	now := r.now().UTC()
	row := &ledger.TradeLogModel{
		UserID:              userID,
		AlpacaOrderID:       fill.OrderID,
		TradePairID:         uuid.NewString(),
		Symbol:              fill.Symbol,
		Action:              "sell",
		Qty:                 fill.FilledQty,
		RemainingQty:        0,
		Price:               fill.FilledAvgPrice,
		TotalValue:          fill.FilledQty * fill.FilledAvgPrice,
		Timestamp:           sellAt,
		Status:              ledger.TradeStatusClosed,
		SellTimestamp:       &sellAt,
		SellPrice:           fill.FilledAvgPrice,
		SellDecisionMetrics: note,
		AccountType:         string(fill.AccountType),
		OrderStatus:         fill.Status,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	row.RecordSellOrder(fill.OrderID)
	return tx.Create(ctx, row)
}

// ReconcilePrices re-checks logged prices against the broker's
// authoritative fill prices and corrects drift beyond the tolerance, on the
// buy side and on the sell side (latest sell of matched rows, legacy sell
// rows). Each correction re-reads the row inside a transaction right before
// saving, so a sweep racing a tick's sell match never overwrites it with a
// stale struct. Running it twice with no upstream change is a no-op.
func (r *Reconciler) ReconcilePrices(ctx context.Context, userID string, asOf time.Time) error {
	rows, err := r.store.AllRows(ctx, userID)
	if err != nil {
		return err
	}
	var errs []error
	orders := make(map[string]*broker.Fill)
	// lookup memoizes per order id; a split sell touches several rows but
	// costs one broker call.
	lookup := func(adapter broker.Adapter, orderID string) *broker.Fill {
		if auth, ok := orders[orderID]; ok {
			return auth
		}
		time.Sleep(interRequestDelay)
		auth, err := adapter.GetOrder(ctx, orderID)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", orderID, err))
			orders[orderID] = nil
			return nil
		}
		orders[orderID] = &auth
		return &auth
	}
	for i := range rows {
		row := &rows[i]
		if row.Timestamp.After(asOf) || row.AlpacaOrderID == "" {
			continue
		}
		adapter, ok := r.adapters[broker.AccountType(row.AccountType)]
		if !ok {
			continue
		}
		if row.Action == "buy" {
			if auth := lookup(adapter, row.AlpacaOrderID); auth != nil && auth.FilledAvgPrice > 0 {
				if err := r.correctRow(ctx, userID, row.AlpacaOrderID, func(fresh *ledger.TradeLogModel) bool {
					return applyBuyCorrection(fresh, auth.FilledAvgPrice)
				}); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if row.SellOrderID == "" {
			continue
		}
		if auth := lookup(adapter, row.SellOrderID); auth != nil && auth.FilledAvgPrice > 0 {
			if err := r.correctRow(ctx, userID, row.AlpacaOrderID, func(fresh *ledger.TradeLogModel) bool {
				return applySellCorrection(fresh, auth.FilledAvgPrice)
			}); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		parts := make([]string, len(errs))
		for i, e := range errs {
			parts[i] = e.Error()
		}
		return fmt.Errorf("price reconciliation: %s", strings.Join(parts, "; "))
	}
	return nil
}

// correctRow re-reads the row by order id inside a transaction and saves it
// only if mutate reports a change. Drift checks run against the fresh row,
// not the sweep's snapshot.
func (r *Reconciler) correctRow(ctx context.Context, userID, orderID string, mutate func(*ledger.TradeLogModel) bool) error {
	return r.store.Transaction(ctx, func(tx *ledger.Store) error {
		fresh, err := tx.FindByOrderID(ctx, userID, orderID)
		if err != nil || fresh == nil {
			return err
		}
		if !mutate(fresh) {
			return nil
		}
		fresh.UpdatedAt = r.now().UTC()
		return tx.Save(ctx, fresh)
	})
}

func applyBuyCorrection(row *ledger.TradeLogModel, price float64) bool {
	if row.Action != "buy" || math.Abs(price-row.BuyPrice) <= priceTolerance {
		return false
	}
	logger.Infof("reconcile: buy price correction %s %s logged=%.4f broker=%.4f",
		row.Symbol, row.AlpacaOrderID, row.BuyPrice, price)
	matched := row.Qty - row.RemainingQty
	// P&L depends on the buy price only through matched cost, so the delta
	// adjustment is exact even when several sells consumed the row.
	row.ProfitLoss += (row.BuyPrice - price) * matched
	row.BuyPrice = price
	row.Price = price
	row.TotalValue = row.Qty * price
	row.ProfitLossPercent = matchedPct(row)
	return true
}

func applySellCorrection(row *ledger.TradeLogModel, price float64) bool {
	if row.SellOrderID == "" || math.Abs(price-row.SellPrice) <= priceTolerance {
		return false
	}
	if row.Action != "sell" && row.SellOrderCount() > 1 {
		logger.Warnf("reconcile: sell price drift on multi-sell row %s not auto-corrected", row.AlpacaOrderID)
		return false
	}
	logger.Infof("reconcile: sell price correction %s %s logged=%.4f broker=%.4f",
		row.Symbol, row.SellOrderID, row.SellPrice, price)
	if row.Action == "sell" {
		// Legacy unmatched sell: no buy side, price fields only.
		row.SellPrice = price
		row.Price = price
		row.TotalValue = row.Qty * price
		return true
	}
	recomputeSellSide(row, price)
	return true
}

// CurrentPositions merges the ledger's open rows with broker positions the
// ledger has never seen. The broker is ground truth for what is held, so
// unknown positions surface as placeholder views.
func (r *Reconciler) CurrentPositions(ctx context.Context, userID string) ([]PositionView, error) {
	rows, err := r.store.OpenRows(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]PositionView, 0, len(rows))
	known := make(map[string]bool)
	for _, row := range rows {
		if row.Action != "buy" {
			continue
		}
		views = append(views, PositionView{
			Symbol:       row.Symbol,
			Qty:          row.RemainingQty,
			BuyPrice:     row.BuyPrice,
			BuyTimestamp: row.BuyTimestamp,
			AccountType:  row.AccountType,
			TradePairID:  row.TradePairID,
		})
		known[row.AccountType+"|"+row.Symbol] = true
	}
	for acct, adapter := range r.adapters {
		positions, err := adapter.GetPositions(ctx)
		if err != nil {
			logger.Warnf("reconcile: positions for %s unavailable: %v", acct, err)
			continue
		}
		for _, p := range positions {
			if known[string(acct)+"|"+symutil.Normalize(p.Symbol)] {
				continue
			}
			views = append(views, PositionView{
				Symbol:      symutil.Normalize(p.Symbol),
				Qty:         p.Qty,
				BuyPrice:    p.AvgEntryPrice,
				AccountType: string(acct),
				Note:        "not logged in system",
			})
		}
	}
	return views, nil
}

// CompletedTrades pages closed rows, most recent first.
func (r *Reconciler) CompletedTrades(ctx context.Context, userID string, limit, offset int) ([]ledger.TradeLogModel, error) {
	return r.store.ClosedRows(ctx, userID, limit, offset)
}
