package config

import (
	"fmt"

	"tradewind/internal/pkg/symbol"
	"tradewind/internal/scheduler"
)

func validate(c *Config) error {
	switch c.Trading.Strategy {
	case StrategyCash, Strategy25KPlus:
	default:
		return fmt.Errorf("trading.strategy must be %q or %q, got %q",
			StrategyCash, Strategy25KPlus, c.Trading.Strategy)
	}
	switch c.Trading.AccountType {
	case "paper", "live":
	default:
		return fmt.Errorf("trading.account_type must be \"paper\" or \"live\", got %q", c.Trading.AccountType)
	}
	if c.Trading.ConfidenceThreshold < 0 || c.Trading.ConfidenceThreshold > 1 {
		return fmt.Errorf("trading.confidence_threshold must be in [0,1], got %v", c.Trading.ConfidenceThreshold)
	}
	if c.Trading.CashPositionPct > 1 || c.Trading.MarginPositionPct > 1 {
		return fmt.Errorf("position percentages are fractions of capital, must be <= 1")
	}
	if _, ok := scheduler.ParseIntervalDuration(c.Bot.Interval); !ok {
		return fmt.Errorf("bot.interval %q is not a valid interval", c.Bot.Interval)
	}
	if _, ok := scheduler.ParseIntervalDuration(c.Market.FastInterval); !ok {
		return fmt.Errorf("market.fast_interval %q is not a valid interval", c.Market.FastInterval)
	}
	if _, ok := scheduler.ParseIntervalDuration(c.Market.SlowInterval); !ok {
		return fmt.Errorf("market.slow_interval %q is not a valid interval", c.Market.SlowInterval)
	}
	for _, s := range c.Market.Symbols {
		if !symbol.Valid(s) {
			return fmt.Errorf("market.symbols contains invalid ticker %q", s)
		}
	}
	if c.Classifier.URL == "" {
		return fmt.Errorf("classifier.url is required")
	}
	return nil
}
