package config

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9980"
	defaultStorePath   = "data/tradewind.db"

	defaultMacroTTLHours    = 24
	defaultSentimentTTLMins = 60

	defaultFastInterval = "1m"
	defaultSlowInterval = "5m"
	defaultLookbackBars = 120

	defaultClassifierTimeout = 30

	defaultNewsLookbackDays = 1

	defaultStrategy            = StrategyCash
	defaultConfidenceThreshold = 0.60
	defaultCashPositionPct     = 0.01
	defaultMarginPositionPct   = 0.05
	defaultMaxRoundTrips       = 3
	defaultRoundTripWindowDays = 5
	defaultSettlementDays      = 2
	defaultAccountType         = "paper"

	defaultBotInterval   = "1m"
	defaultStaleAfterMin = 5
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Cache.MacroTTLHours <= 0 {
		c.Cache.MacroTTLHours = defaultMacroTTLHours
	}
	if c.Cache.SentimentTTLMins <= 0 {
		c.Cache.SentimentTTLMins = defaultSentimentTTLMins
	}
	if c.Market.FastInterval == "" {
		c.Market.FastInterval = defaultFastInterval
	}
	if c.Market.SlowInterval == "" {
		c.Market.SlowInterval = defaultSlowInterval
	}
	if c.Market.LookbackBars <= 0 {
		c.Market.LookbackBars = defaultLookbackBars
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		c.Classifier.TimeoutSeconds = defaultClassifierTimeout
	}
	if c.News.LookbackDays <= 0 {
		c.News.LookbackDays = defaultNewsLookbackDays
	}
	if c.Trading.Strategy == "" {
		c.Trading.Strategy = defaultStrategy
	}
	if c.Trading.ConfidenceThreshold <= 0 {
		c.Trading.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if c.Trading.CashPositionPct <= 0 {
		c.Trading.CashPositionPct = defaultCashPositionPct
	}
	if c.Trading.MarginPositionPct <= 0 {
		c.Trading.MarginPositionPct = defaultMarginPositionPct
	}
	if c.Trading.MaxRoundTrips <= 0 {
		c.Trading.MaxRoundTrips = defaultMaxRoundTrips
	}
	if c.Trading.RoundTripWindowDays <= 0 {
		c.Trading.RoundTripWindowDays = defaultRoundTripWindowDays
	}
	if c.Trading.SettlementDays <= 0 {
		c.Trading.SettlementDays = defaultSettlementDays
	}
	if c.Trading.AccountType == "" {
		c.Trading.AccountType = defaultAccountType
	}
	if c.Bot.Interval == "" {
		c.Bot.Interval = defaultBotInterval
	}
	if c.Bot.StaleAfterMinutes <= 0 {
		c.Bot.StaleAfterMinutes = defaultStaleAfterMin
	}
}
