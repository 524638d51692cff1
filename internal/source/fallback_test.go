package source

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffleworks/raffle-engine/internal/models"
)

// fakeSource is a scriptable Source for failover tests.
type fakeSource struct {
	mu      sync.Mutex
	name    string
	failing bool
	events  []models.NormalizedEvent
	polls   int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Poll(ctx context.Context, sinceMs int64, limit int) ([]models.NormalizedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.failing {
		return nil, errors.New("simulated source failure")
	}
	return s.events, nil
}

func (s *fakeSource) setFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func (s *fakeSource) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func TestFailoverSwitchesAfterConsecutiveFailures(t *testing.T) {
	preferred := &fakeSource{name: "indexer", failing: true}
	alternate := &fakeSource{name: "ledger", events: []models.NormalizedEvent{
		{Wallet: "w1", TxRef: "0xa", TimestampMs: 100},
	}}

	var switches [][2]string
	failover := NewFailoverSource(preferred, alternate, 3, 0,
		WithSwitchHook(func(from, to string) { switches = append(switches, [2]string{from, to}) }))

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := failover.Poll(ctx, 0, 10)
		require.Error(t, err)
	}
	assert.True(t, failover.Degraded(), "three consecutive failures must degrade")
	require.Len(t, switches, 1)
	assert.Equal(t, [2]string{"indexer", "ledger"}, switches[0])

	// Subsequent polls are served by the alternate.
	events, err := failover.Poll(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "ledger", failover.Name())
}

func TestFailoverDoesNotSwitchOnIntermittentFailures(t *testing.T) {
	preferred := &fakeSource{name: "indexer"}
	alternate := &fakeSource{name: "ledger"}
	failover := NewFailoverSource(preferred, alternate, 3, 0)

	ctx := context.Background()

	preferred.setFailing(true)
	_, err := failover.Poll(ctx, 0, 10)
	require.Error(t, err)
	_, err = failover.Poll(ctx, 0, 10)
	require.Error(t, err)

	// A success resets the consecutive-failure counter.
	preferred.setFailing(false)
	_, err = failover.Poll(ctx, 0, 10)
	require.NoError(t, err)

	preferred.setFailing(true)
	_, err = failover.Poll(ctx, 0, 10)
	require.Error(t, err)
	_, err = failover.Poll(ctx, 0, 10)
	require.Error(t, err)

	assert.False(t, failover.Degraded())
}

func TestFailoverProbeSwitchesBack(t *testing.T) {
	preferred := &fakeSource{name: "indexer", failing: true}
	alternate := &fakeSource{name: "ledger"}

	// probeChance 1.0 forces a probe on every degraded poll.
	failover := NewFailoverSource(preferred, alternate, 3, 1.0,
		WithRand(rand.New(rand.NewSource(1))))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		failover.Poll(ctx, 0, 10)
	}
	require.True(t, failover.Degraded())

	// Preferred source recovers; the next degraded poll probes and flips back.
	preferred.setFailing(false)
	_, err := failover.Poll(ctx, 0, 10)
	require.NoError(t, err)
	assert.False(t, failover.Degraded())
	assert.Equal(t, "indexer", failover.Name())
}

func TestFailoverWithoutAlternate(t *testing.T) {
	preferred := &fakeSource{name: "ledger", failing: true}
	failover := NewFailoverSource(preferred, nil, 3, 0.1)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := failover.Poll(ctx, 0, 10)
		require.Error(t, err)
	}

	assert.False(t, failover.Degraded())
	assert.Equal(t, "ledger", failover.Name())
	assert.Equal(t, 5, preferred.pollCount())
}
