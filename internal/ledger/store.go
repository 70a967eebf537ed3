// Package ledger owns the persistent trade log and bot state. Every trade
// mutation flows through here; no other package writes trade rows.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Store wraps Gorm + SQLite with the query surface the reconciler and
// scheduler need.
type Store struct {
	db *gorm.DB
}

// Open initializes the store at path, creating the schema when absent.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger: store path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// The cgo-free driver registers as "sqlite"; it is the one that
	// understands the _pragma DSN parameters.
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&TradeLogModel{}, &BotStateModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP reads while ticks write.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn against a transactional view of the store. Matching
// a sell across several buy rows must commit atomically.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// FindByOrderID returns the row for (user, orderID), or nil when unseen.
func (s *Store) FindByOrderID(ctx context.Context, userID, orderID string) (*TradeLogModel, error) {
	var row TradeLogModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND alpaca_order_id = ?", userID, orderID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindBySellOrderID returns rows a sell order has already been matched
// into, used to keep re-ingested sells idempotent. A row consumed by
// several sells records them all, so an older sell still matches here
// after a newer one overwrote sell_order_id.
func (s *Store) FindBySellOrderID(ctx context.Context, userID, sellOrderID string) ([]TradeLogModel, error) {
	var rows []TradeLogModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND (sell_order_id = ? OR sell_order_ids LIKE ?)",
			userID, sellOrderID, "%,"+sellOrderID+",%").
		Find(&rows).Error
	return rows, err
}

func (s *Store) Create(ctx context.Context, row *TradeLogModel) error {
	return s.db.WithContext(ctx).Create(row).Error
}

func (s *Store) Save(ctx context.Context, row *TradeLogModel) error {
	return s.db.WithContext(ctx).Save(row).Error
}

// OpenBuys returns open buy rows with unmatched quantity for one
// symbol+account, oldest first, which is the FIFO matching order.
func (s *Store) OpenBuys(ctx context.Context, userID, symbol, accountType string) ([]TradeLogModel, error) {
	var rows []TradeLogModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND account_type = ? AND action = ? AND status = ? AND remaining_qty > 0",
			userID, symbol, accountType, "buy", TradeStatusOpen).
		Order("buy_timestamp asc, id asc").
		Find(&rows).Error
	return rows, err
}

// OpenRows returns every open row for a user across symbols and accounts.
func (s *Store) OpenRows(ctx context.Context, userID string) ([]TradeLogModel, error) {
	var rows []TradeLogModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, TradeStatusOpen).
		Order("buy_timestamp asc").
		Find(&rows).Error
	return rows, err
}

// ClosedRows pages completed trades, most recently closed first.
func (s *Store) ClosedRows(ctx context.Context, userID string, limit, offset int) ([]TradeLogModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []TradeLogModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, TradeStatusClosed).
		Order("sell_timestamp desc, id desc").
		Limit(limit).Offset(offset).
		Find(&rows).Error
	return rows, err
}

// AllRows returns the full ledger for a user (statistics input).
func (s *Store) AllRows(ctx context.Context, userID string) ([]TradeLogModel, error) {
	var rows []TradeLogModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp asc").
		Find(&rows).Error
	return rows, err
}

// RoundTripsSince counts trades closed in the rolling window, for the cash
// strategy frequency cap.
func (s *Store) RoundTripsSince(ctx context.Context, userID, accountType string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&TradeLogModel{}).
		Where("user_id = ? AND account_type = ? AND status = ? AND sell_timestamp >= ?",
			userID, accountType, TradeStatusClosed, since).
		Count(&n).Error
	return n, err
}

// UnsettledBuysSince counts open buys newer than the settlement horizon,
// for the T+2 proxy rule.
func (s *Store) UnsettledBuysSince(ctx context.Context, userID, accountType string, since time.Time) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&TradeLogModel{}).
		Where("user_id = ? AND account_type = ? AND action = ? AND status = ? AND buy_timestamp >= ?",
			userID, accountType, "buy", TradeStatusOpen, since).
		Count(&n).Error
	return n, err
}

// RealizedPLSince sums profit on trades closed after the cutoff, for the
// daily loss limit.
func (s *Store) RealizedPLSince(ctx context.Context, userID, accountType string, since time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&TradeLogModel{}).
		Select("COALESCE(SUM(profit_loss), 0)").
		Where("user_id = ? AND account_type = ? AND status = ? AND sell_timestamp >= ?",
			userID, accountType, TradeStatusClosed, since).
		Scan(&total).Error
	return total, err
}

// SaveBotState upserts the single bot-state row per user.
func (s *Store) SaveBotState(ctx context.Context, state *BotStateModel) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"is_running", "always_on", "config", "last_run", "error", "updated_at",
			}),
		}).
		Create(state).Error
}

// AlwaysOnBotStates lists users whose bots are flagged always-on, the
// keep-alive sweep population.
func (s *Store) AlwaysOnBotStates(ctx context.Context) ([]BotStateModel, error) {
	var states []BotStateModel
	err := s.db.WithContext(ctx).Where("always_on = ?", true).Find(&states).Error
	return states, err
}

// GetBotState returns the user's bot state, or nil when the bot has never
// been started.
func (s *Store) GetBotState(ctx context.Context, userID string) (*BotStateModel, error) {
	var state BotStateModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
