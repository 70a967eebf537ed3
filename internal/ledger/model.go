package ledger

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// TradeLogModel is the durable ledger row: one buy fill and, once matched,
// the sell that closed it. AlpacaOrderID is the idempotency key for
// ingestion; TradePairID groups a buy with the sell that consumed it.
type TradeLogModel struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        string `gorm:"column:user_id;uniqueIndex:idx_user_order,priority:1;index:idx_user_status"`
	AlpacaOrderID string `gorm:"column:alpaca_order_id;uniqueIndex:idx_user_order,priority:2"`
	TradePairID   string `gorm:"column:trade_pair_id;index"`

	Symbol string  `gorm:"column:symbol;index"`
	Action string  `gorm:"column:action"`
	Qty    float64 `gorm:"column:qty"`
	// RemainingQty is the buy quantity not yet consumed by sells. Persisted
	// explicitly so a restart mid-match cannot double-count.
	RemainingQty float64     `gorm:"column:remaining_qty"`
	Price        float64     `gorm:"column:price"`
	TotalValue   float64     `gorm:"column:total_value"`
	Timestamp    time.Time   `gorm:"column:timestamp"`
	Status       TradeStatus `gorm:"column:status;index:idx_user_status"`

	BuyTimestamp       time.Time      `gorm:"column:buy_timestamp"`
	BuyPrice           float64        `gorm:"column:buy_price"`
	BuyDecisionMetrics datatypes.JSON `gorm:"column:buy_decision_metrics;type:TEXT"`

	SellTimestamp *time.Time `gorm:"column:sell_timestamp"`
	SellPrice     float64    `gorm:"column:sell_price"`
	// SellOrderID is the latest sell matched into this row; SellOrderIDs
	// keeps every one, comma-bounded (",s1,s2,") so re-delivered old sells
	// are still recognized as seen.
	SellOrderID         string         `gorm:"column:sell_order_id;index"`
	SellOrderIDs        string         `gorm:"column:sell_order_ids"`
	SellDecisionMetrics datatypes.JSON `gorm:"column:sell_decision_metrics;type:TEXT"`

	ProfitLoss        float64 `gorm:"column:profit_loss"`
	ProfitLossPercent float64 `gorm:"column:profit_loss_percent"`
	HoldingDuration   string  `gorm:"column:holding_duration"`

	Strategy    string `gorm:"column:strategy"`
	AccountType string `gorm:"column:account_type;index"`
	OrderStatus string `gorm:"column:order_status"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (TradeLogModel) TableName() string { return "trade_logs" }

// RecordSellOrder marks orderID as matched into this row. SellOrderID tracks
// the latest; SellOrderIDs accumulates all of them.
func (m *TradeLogModel) RecordSellOrder(orderID string) {
	m.SellOrderID = orderID
	if m.HasSellOrder(orderID) {
		return
	}
	if m.SellOrderIDs == "" {
		m.SellOrderIDs = ","
	}
	m.SellOrderIDs += orderID + ","
}

func (m *TradeLogModel) HasSellOrder(orderID string) bool {
	return strings.Contains(m.SellOrderIDs, ","+orderID+",")
}

// SellOrderCount reports how many distinct sells consumed this row.
func (m *TradeLogModel) SellOrderCount() int {
	trimmed := strings.Trim(m.SellOrderIDs, ",")
	if trimmed == "" {
		return 0
	}
	return strings.Count(trimmed, ",") + 1
}

// BotStateModel is one row per user, mutated on every scheduler tick and
// read by the keep-alive check.
type BotStateModel struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string         `gorm:"column:user_id;uniqueIndex"`
	IsRunning bool           `gorm:"column:is_running"`
	AlwaysOn  bool           `gorm:"column:always_on"`
	Config    datatypes.JSON `gorm:"column:config;type:TEXT"`
	LastRun   *time.Time     `gorm:"column:last_run"`
	Error     string         `gorm:"column:error"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (BotStateModel) TableName() string { return "bot_states" }
