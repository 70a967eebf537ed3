package bot

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"tradewind/internal/config"
	"tradewind/internal/logger"
)

// Manager owns one Bot per user and the keep-alive sweep. Bots share the
// collaborator set and the keyed tick mutex; they are created lazily the
// first time a user is addressed.
type Manager struct {
	cfg   config.Config
	deps  Deps
	locks *keyedMutex

	flight singleflight.Group
	mu     sync.Mutex
	bots   map[string]*Bot
}

func NewManager(cfg config.Config, deps Deps) *Manager {
	return &Manager{
		cfg:   cfg,
		deps:  deps,
		locks: newKeyedMutex(),
		bots:  make(map[string]*Bot),
	}
}

// UpdateConfig swaps the config used for bots created from now on. Bots
// already constructed keep their snapshot until restarted.
func (m *Manager) UpdateConfig(cfg config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	logger.Infof("bot: config updated, applies to bots started from now on")
}

// Bot returns the user's bot, creating it on first use.
func (m *Manager) Bot(userID string) *Bot {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[userID]
	if !ok {
		b = newBot(userID, m.cfg, m.deps, m.locks)
		m.bots[userID] = b
	}
	return b
}

func (m *Manager) Start(ctx context.Context, userID string) error {
	return m.Bot(userID).Start(ctx)
}

func (m *Manager) Stop(ctx context.Context, userID string) error {
	return m.Bot(userID).Stop(ctx)
}

func (m *Manager) Status(userID string) Status {
	return m.Bot(userID).Status()
}

// CheckAndResume runs a tick for an always-on user whose last run is stale.
// Singleflight collapses concurrent checks for the same user: the keep-alive
// sweep and an HTTP-triggered check share one execution.
func (m *Manager) CheckAndResume(ctx context.Context, userID string) error {
	_, err, _ := m.flight.Do(userID, func() (any, error) {
		state, err := m.deps.Store.GetBotState(ctx, userID)
		if err != nil {
			return nil, err
		}
		if state == nil || !state.AlwaysOn {
			return nil, nil
		}
		staleAfter := m.cfg.Bot.StaleAfter()
		b := m.Bot(userID)
		if state.LastRun != nil && b.now().Sub(*state.LastRun) < staleAfter {
			return nil, nil
		}
		logger.Infof("bot: %s stale (last_run=%v), resuming with direct tick", userID, state.LastRun)
		return nil, b.Tick(ctx)
	})
	return err
}

// Sweep runs CheckAndResume over every always-on user. Intended to be
// driven by an interval scheduler alongside the per-bot loops.
func (m *Manager) Sweep(ctx context.Context) {
	states, err := m.deps.Store.AlwaysOnBotStates(ctx)
	if err != nil {
		logger.Errorf("bot: keep-alive sweep: %v", err)
		return
	}
	for _, state := range states {
		if err := m.CheckAndResume(ctx, state.UserID); err != nil {
			logger.Errorf("bot: keep-alive %s: %v", state.UserID, err)
		}
	}
}
