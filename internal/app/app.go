// Package app wires the engine together: store, broker adapters, provider
// clients, the signal pipeline, the bot manager and the admin HTTP server.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tradewind/internal/bot"
	"tradewind/internal/broker"
	"tradewind/internal/broker/alpaca"
	"tradewind/internal/classifier"
	"tradewind/internal/config"
	"tradewind/internal/ledger"
	"tradewind/internal/logger"
	"tradewind/internal/macro"
	"tradewind/internal/news"
	"tradewind/internal/pkg/cache"
	"tradewind/internal/reconcile"
	"tradewind/internal/scheduler"
	"tradewind/internal/signal"
	adminhttp "tradewind/internal/transport/http"
)

const (
	defaultUser = "default"

	// keepAliveInterval drives the always-on staleness sweep; it must be
	// shorter than the staleness threshold it checks against.
	keepAliveInterval = time.Minute

	// priceSweepInterval paces the authoritative-price reconciliation pass.
	priceSweepInterval = 6 * time.Hour
)

type App struct {
	cfg        *config.Config
	store      *ledger.Store
	cacheConn  *cache.Redis
	reconciler *reconcile.Reconciler
	manager    *bot.Manager
	server     *adminhttp.Server
	stopWatch  func()
}

func NewApp(cfg *config.Config) (*App, error) {
	store, err := ledger.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var cacheBackend cache.Cache
	var redisConn *cache.Redis
	if cfg.Cache.RedisAddr != "" {
		redisConn = cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisDB, "tradewind:")
		cacheBackend = redisConn
		logger.Infof("✓ cache backend: redis %s", cfg.Cache.RedisAddr)
	} else {
		cacheBackend = cache.NewMemory()
		logger.Infof("✓ cache backend: in-process")
	}

	creds := alpaca.Credentials{
		APIKey:    os.Getenv("APCA_API_KEY_ID"),
		APISecret: os.Getenv("APCA_API_SECRET_KEY"),
	}
	account := broker.AccountType(cfg.Trading.AccountType)
	adapter := alpaca.New(account, creds)
	adapters := map[broker.AccountType]broker.Adapter{account: adapter}

	predictor := classifier.NewClient(cfg.Classifier.URL,
		time.Duration(cfg.Classifier.TimeoutSeconds)*time.Second)
	newsClient := news.NewClient(cfg.News.URL, cfg.News.APIKey,
		time.Duration(cfg.Cache.SentimentTTLMins)*time.Minute, cacheBackend)
	macroClient := macro.NewClient(cfg.Macro.URL, cfg.Macro.APIKey,
		time.Duration(cfg.Cache.MacroTTLHours)*time.Hour, cacheBackend)

	reconciler := reconcile.New(store, adapters)
	policy := signal.NewLedgerPolicy(store, cfg.Trading)
	generator := signal.NewGenerator(predictor, policy, cfg.Trading)

	manager := bot.NewManager(*cfg, bot.Deps{
		Store:   store,
		Broker:  adapter,
		Data:    adapter,
		News:    newsClient,
		Macro:   macroClient,
		Signals: generator,
		Fills:   reconciler,
	})

	server, err := adminhttp.NewServer(adminhttp.ServerConfig{
		Addr:       cfg.App.HTTPAddr,
		Router:     adminhttp.NewRouter(manager, reconciler, store),
		Classifier: predictor,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		cfg:        cfg,
		store:      store,
		cacheConn:  redisConn,
		reconciler: reconciler,
		manager:    manager,
		server:     server,
	}, nil
}

// WatchConfig hot-reloads tunables from the config file. A running bot keeps
// its snapshot; the fresh config applies to bots created or restarted after
// the change.
func (a *App) WatchConfig(path string) error {
	stop, err := config.Watch(path, func(cfg *config.Config) {
		a.manager.UpdateConfig(*cfg)
	})
	if err != nil {
		return err
	}
	a.stopWatch = stop
	return nil
}

// Run starts the HTTP server, the keep-alive sweep, the price sweep and the
// default bot, then blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("✓ admin http listening on %s", a.server.Addr())
		return a.server.Start(gctx)
	})

	g.Go(func() error {
		sched := scheduler.NewIntervalScheduler(gctx, keepAliveInterval)
		sched.Start(func() { a.manager.Sweep(gctx) })
		return nil
	})

	g.Go(func() error {
		sched := scheduler.NewIntervalScheduler(gctx, priceSweepInterval)
		sched.Start(func() { a.priceSweep(gctx) })
		return nil
	})

	if err := a.manager.Start(gctx, defaultUser); err != nil {
		logger.Warnf("default bot not started: %v", err)
	}

	return g.Wait()
}

// priceSweep runs the authoritative-price pass for every known bot user.
func (a *App) priceSweep(ctx context.Context) {
	users := map[string]bool{defaultUser: true}
	states, err := a.store.AlwaysOnBotStates(ctx)
	if err != nil {
		logger.Warnf("price sweep: list users: %v", err)
	} else {
		for _, s := range states {
			users[s.UserID] = true
		}
	}
	for user := range users {
		if err := a.reconciler.ReconcilePrices(ctx, user, time.Now()); err != nil {
			logger.Warnf("price sweep: %s: %v", user, err)
		}
	}
}

func (a *App) close() {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.cacheConn != nil {
		_ = a.cacheConn.Close()
	}
	if err := a.store.Close(); err != nil {
		logger.Warnf("store close: %v", err)
	}
}
