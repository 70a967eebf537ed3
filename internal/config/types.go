package config

import "time"

// Config is the root configuration carrier for tradewind.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Store      StoreConfig      `mapstructure:"store"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Market     MarketConfig     `mapstructure:"market"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	News       NewsConfig       `mapstructure:"news"`
	Macro      MacroConfig      `mapstructure:"macro"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Bot        BotConfig        `mapstructure:"bot"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig selects the cache backend for provider snapshots. An empty
// redis_addr falls back to the in-process cache.
type CacheConfig struct {
	RedisAddr        string `mapstructure:"redis_addr"`
	RedisDB          int    `mapstructure:"redis_db"`
	MacroTTLHours    int    `mapstructure:"macro_ttl_hours"`
	SentimentTTLMins int    `mapstructure:"sentiment_ttl_minutes"`
}

type MarketConfig struct {
	Symbols      []string `mapstructure:"symbols"`
	FastInterval string   `mapstructure:"fast_interval"`
	SlowInterval string   `mapstructure:"slow_interval"`
	LookbackBars int      `mapstructure:"lookback_bars"`
}

type ClassifierConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type NewsConfig struct {
	URL          string `mapstructure:"url"`
	APIKey       string `mapstructure:"api_key"`
	LookbackDays int    `mapstructure:"lookback_days"`
}

type MacroConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// TradingConfig holds the decision-policy tunables. The thresholds mirror
// the shipped defaults but are deliberately configuration, not law.
type TradingConfig struct {
	Strategy            string  `mapstructure:"strategy"` // "cash" | "25k_plus"
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	CashPositionPct     float64 `mapstructure:"cash_position_pct"`
	MarginPositionPct   float64 `mapstructure:"margin_position_pct"`
	MaxRoundTrips       int     `mapstructure:"max_round_trips"`
	RoundTripWindowDays int     `mapstructure:"round_trip_window_days"`
	SettlementDays      int     `mapstructure:"settlement_days"`
	MaxTradeSize        float64 `mapstructure:"max_trade_size"`
	DailyLossLimit      float64 `mapstructure:"daily_loss_limit"`
	AccountType         string  `mapstructure:"account_type"` // "paper" | "live"
}

type BotConfig struct {
	Interval          string `mapstructure:"interval"`
	AlwaysOn          bool   `mapstructure:"always_on"`
	RunImmediately    bool   `mapstructure:"run_immediately"`
	StaleAfterMinutes int    `mapstructure:"stale_after_minutes"`
}

// StaleAfter is the keep-alive staleness threshold as a duration.
func (b BotConfig) StaleAfter() time.Duration {
	return time.Duration(b.StaleAfterMinutes) * time.Minute
}

// PositionPct returns the per-trade capital fraction for the strategy.
func (t TradingConfig) PositionPct() float64 {
	if t.Strategy == Strategy25KPlus {
		return t.MarginPositionPct
	}
	return t.CashPositionPct
}

const (
	StrategyCash    = "cash"
	Strategy25KPlus = "25k_plus"
)
