package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/internal/ledger"
	"github.com/raffleworks/raffle-engine/internal/models"
)

type stubLedger struct{}

func (stubLedger) QueryEvents(ctx context.Context, eventType string, limit int, descending bool) ([]ledger.Event, error) {
	return nil, nil
}
func (stubLedger) GetTransaction(ctx context.Context, digest string) (*ledger.Transaction, error) {
	return &ledger.Transaction{}, nil
}
func (stubLedger) GetCoinMetadata(ctx context.Context, coinType string) (*ledger.CoinMetadata, error) {
	return &ledger.CoinMetadata{}, nil
}
func (stubLedger) LatestCheckpoint(ctx context.Context) (uint64, error) { return 0, nil }
func (stubLedger) HealthCheck(ctx context.Context) error                { return nil }
func (stubLedger) IsConnected() bool                                    { return true }
func (stubLedger) Close() error                                         { return nil }
func (stubLedger) Stats() ledger.ClientStats                            { return ledger.ClientStats{} }

type stubProvider struct {
	mu     sync.Mutex
	raffle *models.RaffleContext
	err    error
}

func (p *stubProvider) GetCurrentRaffle(ctx context.Context) (*models.RaffleContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raffle, p.err
}

func (p *stubProvider) set(raffle *models.RaffleContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raffle = raffle
}

type stubDecider struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (d *stubDecider) Decide(ctx context.Context, raffle *models.RaffleContext) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, raffle.RaffleID)
	return nil
}

func (d *stubDecider) decisions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func managerConfig() *config.Config {
	return &config.Config{
		Watcher: config.WatcherConfig{
			PollInterval:    time.Second,
			RefreshInterval: time.Second,
			PollLimit:       100,
			SeedLimit:       50,
			FailureLimit:    3,
			EventTypes: map[string]string{
				"buy":     "0x2::coin::DepositEvent",
				"sell":    "0x2::coin::WithdrawEvent",
				"stake":   "0x3::staking_pool::StakeRequestEvent",
				"unstake": "0x3::staking_pool::UnstakeRequestEvent",
			},
		},
	}
}

func newTestManager(provider *stubProvider, decider *stubDecider) *Manager {
	return NewManager(ManagerOptions{
		Config:  managerConfig(),
		Ledger:  stubLedger{},
		Queue:   &captureQueue{},
		Raffles: provider,
		Decider: decider,
	})
}

func TestManagerStartsWatchersForActiveRaffle(t *testing.T) {
	provider := &stubProvider{raffle: testRaffle()}
	m := newTestManager(provider, &stubDecider{})

	require.NoError(t, m.refresh(context.Background()))
	defer m.stopWatchers()

	states := m.WatcherStates()
	require.Len(t, states, 4)
	for kind, state := range states {
		assert.Equal(t, StatePolling, state, "watcher %s", kind)
	}
	assert.Equal(t, "raffle-1", m.CurrentRaffle().RaffleID)
}

func TestManagerUpdatesWatchersInPlace(t *testing.T) {
	raffle := testRaffle()
	provider := &stubProvider{raffle: raffle}
	m := newTestManager(provider, &stubDecider{})

	require.NoError(t, m.refresh(context.Background()))
	defer m.stopWatchers()

	m.mu.Lock()
	before := m.watchers
	m.mu.Unlock()

	// Same raffle and token, new bonus percent: no rebuild.
	updated := *raffle
	updated.StakeBonusPercent = 50
	provider.set(&updated)
	require.NoError(t, m.refresh(context.Background()))

	m.mu.Lock()
	after := m.watchers
	m.mu.Unlock()
	require.Len(t, after, len(before))
	for i := range before {
		assert.Same(t, before[i], after[i])
	}
	assert.Equal(t, int64(50), m.CurrentRaffle().StakeBonusPercent)
}

func TestManagerRebuildsOnTargetChange(t *testing.T) {
	provider := &stubProvider{raffle: testRaffle()}
	m := newTestManager(provider, &stubDecider{})

	require.NoError(t, m.refresh(context.Background()))
	defer m.stopWatchers()

	next := testRaffle()
	next.RaffleID = "raffle-2"
	provider.set(next)
	require.NoError(t, m.refresh(context.Background()))

	assert.Equal(t, "raffle-2", m.CurrentRaffle().RaffleID)
	for kind, state := range m.WatcherStates() {
		assert.Equal(t, StatePolling, state, "watcher %s", kind)
	}
}

func TestManagerDecidesEndedRaffleOnce(t *testing.T) {
	raffle := testRaffle()
	raffle.Status = models.RaffleStatusEnded
	provider := &stubProvider{raffle: raffle}
	decider := &stubDecider{}
	m := newTestManager(provider, decider)

	require.NoError(t, m.refresh(context.Background()))
	require.NoError(t, m.refresh(context.Background()))

	assert.Equal(t, []string{"raffle-1"}, decider.decisions())
	assert.Empty(t, m.WatcherStates())
}

func TestManagerRetriesFailedDecision(t *testing.T) {
	raffle := testRaffle()
	raffle.Status = models.RaffleStatusEnded
	provider := &stubProvider{raffle: raffle}
	decider := &stubDecider{err: errors.New("oracle unavailable")}
	m := newTestManager(provider, decider)

	require.Error(t, m.refresh(context.Background()))

	decider.mu.Lock()
	decider.err = nil
	decider.mu.Unlock()

	require.NoError(t, m.refresh(context.Background()))
	assert.Equal(t, []string{"raffle-1"}, decider.decisions())
}

func TestManagerStopsWatchersWhenRaffleDisappears(t *testing.T) {
	provider := &stubProvider{raffle: testRaffle()}
	m := newTestManager(provider, &stubDecider{})

	require.NoError(t, m.refresh(context.Background()))
	require.Len(t, m.WatcherStates(), 4)

	provider.set(nil)
	require.NoError(t, m.refresh(context.Background()))
	assert.Empty(t, m.WatcherStates())
	assert.Nil(t, m.CurrentRaffle())
}

func TestManagerTreatsExpiredActiveRaffleAsEnded(t *testing.T) {
	raffle := testRaffle()
	raffle.EndsAt = time.Now().Add(-time.Minute)
	provider := &stubProvider{raffle: raffle}
	decider := &stubDecider{}
	m := newTestManager(provider, decider)

	require.NoError(t, m.refresh(context.Background()))
	assert.Equal(t, []string{"raffle-1"}, decider.decisions())
	assert.Empty(t, m.WatcherStates())
}
