package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/classify"
	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/internal/indexer"
	"github.com/raffleworks/raffle-engine/internal/ledger"
	"github.com/raffleworks/raffle-engine/internal/metrics"
	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/internal/queue"
	"github.com/raffleworks/raffle-engine/internal/source"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// RaffleProvider loads the raffle the engine should currently run.
type RaffleProvider interface {
	GetCurrentRaffle(ctx context.Context) (*models.RaffleContext, error)
}

// WinnerDecider performs winner selection for an ended raffle. It must be
// idempotent: re-deciding an already-decided raffle is a no-op.
type WinnerDecider interface {
	Decide(ctx context.Context, raffle *models.RaffleContext) error
}

// Alerter delivers operational alerts (source failover, raffle decided).
type Alerter interface {
	Alert(ctx context.Context, title, message string) error
}

// ManagerOptions bundles the manager's dependencies. Indexer, Decider,
// Alerter and Metrics are optional.
type ManagerOptions struct {
	Config     *config.Config
	Ledger     ledger.Client
	Indexer    indexer.Client
	Classifier classify.Classifier
	Queue      queue.Queue
	Raffles    RaffleProvider
	Decider    WinnerDecider
	Alerter    Alerter
	Metrics    *metrics.PrometheusMetrics
}

// Manager runs one watcher per event kind for the current raffle. It
// refreshes the raffle snapshot on a fixed interval, resets the watcher set
// when the raffle or its token changes, and hands ended raffles to the
// winner decider.
type Manager struct {
	cfg        *config.Config
	ledger     ledger.Client
	indexer    indexer.Client
	classifier classify.Classifier
	jobs       queue.Queue
	raffles    RaffleProvider
	decider    WinnerDecider
	alerter    Alerter
	metrics    *metrics.PrometheusMetrics
	decimals   *source.CoinDecimals
	logger     *logrus.Entry

	mu       sync.Mutex
	current  *models.RaffleContext
	watchers []*Watcher
	decided  map[string]struct{}
	running  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates the watcher manager.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		cfg:        opts.Config,
		ledger:     opts.Ledger,
		indexer:    opts.Indexer,
		classifier: opts.Classifier,
		jobs:       opts.Queue,
		raffles:    opts.Raffles,
		decider:    opts.Decider,
		alerter:    opts.Alerter,
		metrics:    opts.Metrics,
		decimals:   source.NewCoinDecimals(opts.Ledger),
		decided:    make(map[string]struct{}),
		logger:     utils.Component("watcher_manager"),
	}
}

// Start performs an initial refresh and launches the refresh loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return utils.NewAppError(utils.ErrCodeProcessing, "Watcher manager already running", "")
	}
	m.running = true
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	if err := m.refresh(runCtx); err != nil {
		m.logger.WithError(err).Warn("Initial raffle refresh failed")
	}

	go m.run(runCtx)
	m.logger.Info("Watcher manager started")
	return nil
}

// Stop halts the refresh loop and all watchers.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	<-m.done
	m.stopWatchers()
	m.logger.Info("Watcher manager stopped")
}

// CurrentRaffle returns the raffle snapshot the watchers run against.
func (m *Manager) CurrentRaffle() *models.RaffleContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// WatcherStates returns the lifecycle state of every running watcher.
func (m *Manager) WatcherStates() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make(map[string]State, len(m.watchers))
	for _, w := range m.watchers {
		states[string(w.Kind())] = w.State()
	}
	return states
}

// WatcherStats returns per-kind counters for the status API.
func (m *Manager) WatcherStats() map[string]WatcherStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]WatcherStats, len(m.watchers))
	for _, w := range m.watchers {
		stats[string(w.Kind())] = w.Stats()
	}
	return stats
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Watcher.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.refresh(ctx); err != nil && ctx.Err() == nil {
				m.logger.WithError(err).Warn("Raffle refresh failed")
			}
		}
	}
}

// refresh reconciles the watcher set with the current raffle: start watchers
// for a new active raffle, push updated parameters into running ones, and
// tear down plus decide once the raffle ends.
func (m *Manager) refresh(ctx context.Context) error {
	raffle, err := m.raffles.GetCurrentRaffle(ctx)
	if err != nil {
		return err
	}

	if raffle == nil {
		m.stopWatchers()
		m.setCurrent(nil)
		return nil
	}

	ended := raffle.Status == models.RaffleStatusEnded ||
		(raffle.IsActive() && !raffle.EndsAt.IsZero() && time.Now().After(raffle.EndsAt))

	if ended {
		m.stopWatchers()
		m.setCurrent(raffle)
		return m.decide(ctx, raffle)
	}

	if !raffle.IsActive() {
		m.stopWatchers()
		m.setCurrent(raffle)
		return nil
	}

	m.mu.Lock()
	sameTarget := m.current != nil && m.current.SameTarget(raffle) && len(m.watchers) > 0
	m.mu.Unlock()

	if sameTarget {
		m.mu.Lock()
		m.current = raffle
		for _, w := range m.watchers {
			w.UpdateRaffle(raffle)
		}
		m.mu.Unlock()
		return nil
	}

	// New raffle or new token: rebuild the watcher set from scratch.
	m.stopWatchers()
	m.setCurrent(raffle)
	return m.startWatchers(ctx, raffle)
}

// startWatchers builds and starts one watcher per event kind.
func (m *Manager) startWatchers(ctx context.Context, raffle *models.RaffleContext) error {
	m.logger.WithFields(logrus.Fields{
		"raffle_id": raffle.RaffleID,
		"coin_type": raffle.CoinType,
	}).Info("Starting watchers for raffle")

	var watchers []*Watcher
	for _, kind := range models.AllKinds {
		eventType, ok := m.cfg.Watcher.EventTypes[string(kind)]
		if !ok || eventType == "" {
			m.logger.WithField("kind", string(kind)).Warn("No event type configured, skipping watcher")
			continue
		}

		var classifier classify.Classifier
		if kind == models.KindBuy || kind == models.KindSell {
			classifier = m.classifier
		}

		w := NewWatcher(kind, raffle, m.buildSource(kind, eventType, raffle.CoinType),
			classifier, m.jobs, m.cfg.Watcher, m.metrics)
		if err := w.Start(ctx); err != nil {
			for _, started := range watchers {
				started.Stop()
			}
			return err
		}
		watchers = append(watchers, w)
	}

	m.mu.Lock()
	m.watchers = watchers
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.UpdateWatchersActive(len(watchers))
	}
	return nil
}

// buildSource assembles the event source for one kind. Buy and sell prefer
// the trade indexer with the ledger as fallback; stake and unstake are
// ledger-only since the indexer does not expose staking activity. All sources
// share one decimals resolver so payloads that omit the decimals field are
// completed from the coin metadata registry before allocation.
func (m *Manager) buildSource(kind models.EventKind, eventType, coinType string) source.Source {
	ledgerSrc := source.NewLedgerSource(m.ledger, eventType, coinType, m.decimals)

	if m.indexer == nil || (kind != models.KindBuy && kind != models.KindSell) {
		return ledgerSrc
	}

	preferred := source.NewIndexerSource(m.indexer, coinType, string(kind), m.decimals)
	return source.NewFailoverSource(preferred, ledgerSrc,
		m.cfg.Watcher.FailureLimit, m.cfg.Watcher.ProbeChance,
		source.WithSwitchHook(func(from, to string) {
			if m.metrics != nil {
				m.metrics.RecordSourceSwitch(from, to)
			}
			if m.alerter != nil {
				_ = m.alerter.Alert(context.Background(), "Event source switched",
					fmt.Sprintf("%s watcher switched from %s to %s", kind, from, to))
			}
		}))
}

// decide hands an ended raffle to the winner decider, at most once per
// manager lifetime. The decider itself is idempotent across restarts.
func (m *Manager) decide(ctx context.Context, raffle *models.RaffleContext) error {
	if m.decider == nil {
		return nil
	}

	m.mu.Lock()
	if _, done := m.decided[raffle.RaffleID]; done {
		m.mu.Unlock()
		return nil
	}
	m.decided[raffle.RaffleID] = struct{}{}
	m.mu.Unlock()

	m.logger.WithField("raffle_id", raffle.RaffleID).Info("Raffle ended, triggering winner selection")
	if err := m.decider.Decide(ctx, raffle); err != nil {
		// Allow a retry on the next refresh.
		m.mu.Lock()
		delete(m.decided, raffle.RaffleID)
		m.mu.Unlock()
		return err
	}

	if m.alerter != nil {
		_ = m.alerter.Alert(ctx, "Raffle decided",
			fmt.Sprintf("Winner selection completed for raffle %s", raffle.RaffleID))
	}
	return nil
}

func (m *Manager) setCurrent(raffle *models.RaffleContext) {
	m.mu.Lock()
	m.current = raffle
	m.mu.Unlock()
}

func (m *Manager) stopWatchers() {
	m.mu.Lock()
	watchers := m.watchers
	m.watchers = nil
	m.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	if m.metrics != nil && len(watchers) > 0 {
		m.metrics.UpdateWatchersActive(0)
	}
}
