package watcher

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/internal/models"
)

type stubSource struct {
	mu     sync.Mutex
	events []models.NormalizedEvent
	err    error
	polls  int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Poll(ctx context.Context, sinceMs int64, limit int) ([]models.NormalizedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

func (s *stubSource) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

type stubClassifier struct {
	swaps map[string]bool
}

func (c *stubClassifier) IsExchangeSwap(ctx context.Context, txRef string) bool {
	return c.swaps[txRef]
}

type captureQueue struct {
	mu       sync.Mutex
	jobs     []*models.AllocationJob
	failNext bool
}

func (q *captureQueue) Enqueue(ctx context.Context, name string, job *models.AllocationJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext {
		q.failNext = false
		return errors.New("queue full")
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *captureQueue) Close() error { return nil }

func (q *captureQueue) all() []*models.AllocationJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*models.AllocationJob(nil), q.jobs...)
}

func testRaffle() *models.RaffleContext {
	return &models.RaffleContext{
		RaffleID:          "raffle-1",
		CoinType:          "0xdead::meme::MEME",
		TicketRatio:       0.0002, // 1 ticket per 5,000 tokens
		StakeBonusPercent: 25,
		Status:            models.RaffleStatusActive,
		EndsAt:            time.Now().Add(time.Hour),
	}
}

func testWatcherConfig() config.WatcherConfig {
	return config.WatcherConfig{
		PollInterval: time.Second,
		PollLimit:    100,
		SeedLimit:    50,
		FailureLimit: 3,
	}
}

// buyEvent is a 5,000-token purchase (9 decimals), worth exactly one ticket.
func buyEvent(txRef string, tsMs int64) models.NormalizedEvent {
	return models.NormalizedEvent{
		Wallet:      "0xw1",
		RawAmount:   big.NewInt(5_000_000_000_000),
		Decimals:    9,
		TxRef:       txRef,
		TimestampMs: tsMs,
	}
}

func TestSeedPollDoesNotEnqueue(t *testing.T) {
	src := &stubSource{events: []models.NormalizedEvent{
		buyEvent("0xold1", 1000),
		buyEvent("0xold2", 2000),
	}}
	jobs := &captureQueue{}

	w := NewWatcher(models.KindBuy, testRaffle(), src,
		&stubClassifier{swaps: map[string]bool{"0xold1": true, "0xold2": true}},
		jobs, testWatcherConfig(), nil)

	w.seed(context.Background())

	assert.Empty(t, jobs.all(), "seed poll must not enqueue jobs")
	assert.Equal(t, int64(2000), w.watermark.LastProcessedMs())

	// The same events on the first real poll are duplicates.
	require.NoError(t, w.pollOnce(context.Background()))
	assert.Empty(t, jobs.all())
	assert.Equal(t, uint64(2), w.Stats().Duplicates)
}

func TestSeedFailureStartsFromNow(t *testing.T) {
	src := &stubSource{err: errors.New("node down")}
	w := NewWatcher(models.KindBuy, testRaffle(), src, nil, &captureQueue{}, testWatcherConfig(), nil)

	before := time.Now().UnixMilli()
	w.seed(context.Background())

	assert.GreaterOrEqual(t, w.watermark.LastProcessedMs(), before,
		"failed seed must not leave the watermark open to history replay")
}

func TestPollEnqueuesBuyJob(t *testing.T) {
	src := &stubSource{events: []models.NormalizedEvent{buyEvent("0xbuy", 5000)}}
	jobs := &captureQueue{}

	w := NewWatcher(models.KindBuy, testRaffle(), src,
		&stubClassifier{swaps: map[string]bool{"0xbuy": true}},
		jobs, testWatcherConfig(), nil)

	require.NoError(t, w.pollOnce(context.Background()))

	enqueued := jobs.all()
	require.Len(t, enqueued, 1)
	job := enqueued[0]
	assert.Equal(t, models.KindBuy, job.Kind)
	assert.Equal(t, "raffle-1", job.RaffleID)
	assert.Equal(t, "0xw1", job.Wallet)
	assert.Equal(t, int64(1), job.TicketDelta)
	assert.Equal(t, "0xbuy", job.TxRef)

	// A second poll returning the same event changes nothing.
	require.NoError(t, w.pollOnce(context.Background()))
	assert.Len(t, jobs.all(), 1)
}

func TestPollFiltersNonSwapTransfers(t *testing.T) {
	src := &stubSource{events: []models.NormalizedEvent{buyEvent("0xtransfer", 5000)}}
	jobs := &captureQueue{}

	w := NewWatcher(models.KindBuy, testRaffle(), src,
		&stubClassifier{swaps: map[string]bool{}}, jobs, testWatcherConfig(), nil)

	require.NoError(t, w.pollOnce(context.Background()))

	assert.Empty(t, jobs.all())
	assert.Equal(t, uint64(1), w.Stats().Filtered)
	// Filtered events are still marked so they are not re-classified.
	assert.True(t, w.watermark.Seen("0xtransfer:0"))
}

func TestSellJobCarriesNegativeDelta(t *testing.T) {
	event := buyEvent("0xsell", 5000)
	src := &stubSource{events: []models.NormalizedEvent{event}}
	jobs := &captureQueue{}

	w := NewWatcher(models.KindSell, testRaffle(), src,
		&stubClassifier{swaps: map[string]bool{"0xsell": true}},
		jobs, testWatcherConfig(), nil)

	require.NoError(t, w.pollOnce(context.Background()))

	enqueued := jobs.all()
	require.Len(t, enqueued, 1)
	assert.Equal(t, int64(-1), enqueued[0].TicketDelta)
}

func TestStakeJobCarriesRawAmount(t *testing.T) {
	src := &stubSource{events: []models.NormalizedEvent{{
		Wallet:      "0xw1",
		RawAmount:   big.NewInt(1_000_000_000),
		Decimals:    9,
		TxRef:       "0xstake",
		TimestampMs: 5000,
	}}}
	jobs := &captureQueue{}

	w := NewWatcher(models.KindStake, testRaffle(), src, nil, jobs, testWatcherConfig(), nil)

	require.NoError(t, w.pollOnce(context.Background()))

	enqueued := jobs.all()
	require.Len(t, enqueued, 1)
	job := enqueued[0]
	assert.Equal(t, models.KindStake, job.Kind)
	assert.Equal(t, "1000000000", job.RawAmount)
	assert.Equal(t, int64(0), job.TicketDelta)
	assert.Equal(t, models.JobAdjustStake, job.Name())
}

func TestEventOlderThanWatermarkIsDuplicateEvenWhenKeyForgotten(t *testing.T) {
	src := &stubSource{events: []models.NormalizedEvent{buyEvent("0xseen", 2000)}}
	jobs := &captureQueue{}

	w := NewWatcher(models.KindBuy, testRaffle(), src,
		&stubClassifier{swaps: map[string]bool{"0xseen": true, "0xlate": true}},
		jobs, testWatcherConfig(), nil)

	w.seed(context.Background())
	require.Equal(t, int64(2000), w.watermark.LastProcessedMs())

	// A re-delivered event from before the watermark whose key was never
	// recorded (as after seen-set compaction) must not allocate again.
	src.mu.Lock()
	src.events = []models.NormalizedEvent{buyEvent("0xlate", 1000)}
	src.mu.Unlock()

	require.NoError(t, w.pollOnce(context.Background()))

	assert.Empty(t, jobs.all())
	assert.Equal(t, uint64(1), w.Stats().Duplicates)
	assert.Equal(t, int64(2000), w.watermark.LastProcessedMs())
}

func TestEnqueueFailureRetriesNextPoll(t *testing.T) {
	src := &stubSource{events: []models.NormalizedEvent{buyEvent("0xretry", 5000)}}
	jobs := &captureQueue{failNext: true}

	w := NewWatcher(models.KindBuy, testRaffle(), src,
		&stubClassifier{swaps: map[string]bool{"0xretry": true}},
		jobs, testWatcherConfig(), nil)

	require.Error(t, w.pollOnce(context.Background()))
	assert.False(t, w.watermark.Seen("0xretry:0"),
		"a rejected job must leave the event unmarked")

	require.NoError(t, w.pollOnce(context.Background()))
	assert.Len(t, jobs.all(), 1)
}

func TestInactiveRaffleSkipsPolling(t *testing.T) {
	src := &stubSource{events: []models.NormalizedEvent{buyEvent("0xbuy", 5000)}}
	raffle := testRaffle()
	raffle.Status = models.RaffleStatusEnded

	w := NewWatcher(models.KindBuy, raffle, src, nil, &captureQueue{}, testWatcherConfig(), nil)

	require.NoError(t, w.pollOnce(context.Background()))
	assert.Equal(t, 0, src.pollCount())
}

func TestStartStopLifecycle(t *testing.T) {
	src := &stubSource{}
	w := NewWatcher(models.KindBuy, testRaffle(), src, nil, &captureQueue{}, testWatcherConfig(), nil)

	assert.Equal(t, StateIdle, w.State())
	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, StatePolling, w.State())

	// Double start is rejected.
	require.Error(t, w.Start(context.Background()))

	w.Stop()
	assert.Equal(t, StateStopped, w.State())
	// Stop is safe to repeat.
	w.Stop()
}
