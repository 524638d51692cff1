package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/internal/queue"
	"github.com/raffleworks/raffle-engine/internal/storage"
)

var workerDBCounter int

func newWorkerStorage(t *testing.T) storage.Storage {
	t.Helper()

	workerDBCounter++
	s := storage.NewSQLiteStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", workerDBCounter),
		MaxConnections:   2,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, s.Connect())
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRaffle(t *testing.T, s storage.Storage, status string) *models.RaffleContext {
	t.Helper()

	raffle := &models.RaffleContext{
		RaffleID:          "raffle-1",
		CoinType:          "0xdead::meme::MEME",
		TicketRatio:       0.0002,
		StakeBonusPercent: 25,
		Status:            status,
		StartedAt:         time.Now().Add(-time.Hour),
		EndsAt:            time.Now().Add(time.Hour),
	}
	require.NoError(t, s.SaveRaffle(context.Background(), raffle))
	return raffle
}

func buyJob(txRef string, delta int64) *models.AllocationJob {
	return &models.AllocationJob{
		Kind:        models.KindBuy,
		RaffleID:    "raffle-1",
		Wallet:      "0xw1",
		TicketDelta: delta,
		TxRef:       txRef,
		TimestampMs: 1000,
	}
}

func TestApplyBuyJobOnce(t *testing.T) {
	store := newWorkerStorage(t)
	seedRaffle(t, store, models.RaffleStatusActive)
	pool := NewPool(store, nil, 1, nil)
	ctx := context.Background()

	status, err := pool.apply(ctx, buyJob("0xtx1", 5))
	require.NoError(t, err)
	assert.Equal(t, "applied", status)

	// Redelivery of the same job is a duplicate, not a double-credit.
	status, err = pool.apply(ctx, buyJob("0xtx1", 5))
	require.NoError(t, err)
	assert.Equal(t, "duplicate", status)

	count, err := store.GetTicketCount(ctx, "raffle-1", "0xw1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestApplySellClampsAtZero(t *testing.T) {
	store := newWorkerStorage(t)
	seedRaffle(t, store, models.RaffleStatusActive)
	pool := NewPool(store, nil, 1, nil)
	ctx := context.Background()

	_, err := pool.apply(ctx, buyJob("0xbuy", 3))
	require.NoError(t, err)

	sell := buyJob("0xsell", -10)
	sell.Kind = models.KindSell
	status, err := pool.apply(ctx, sell)
	require.NoError(t, err)
	assert.Equal(t, "applied", status)

	count, err := store.GetTicketCount(ctx, "raffle-1", "0xw1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestApplyStakeGrantsBonusOnCurrentBalance(t *testing.T) {
	store := newWorkerStorage(t)
	seedRaffle(t, store, models.RaffleStatusActive)
	pool := NewPool(store, nil, 1, nil)
	ctx := context.Background()

	_, err := pool.apply(ctx, buyJob("0xbuy", 100))
	require.NoError(t, err)

	stake := &models.AllocationJob{
		Kind:        models.KindStake,
		RaffleID:    "raffle-1",
		Wallet:      "0xw1",
		RawAmount:   "1000000000",
		TxRef:       "0xstake1",
		TimestampMs: 2000,
	}
	status, err := pool.apply(ctx, stake)
	require.NoError(t, err)
	assert.Equal(t, "applied", status)

	// 25% of 100 tickets.
	count, err := store.GetTicketCount(ctx, "raffle-1", "0xw1")
	require.NoError(t, err)
	assert.Equal(t, int64(125), count)

	entries, err := store.GetStakeEntries(ctx, "raffle-1", "0xw1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(25), entries[0].BonusTickets)
}

func TestApplyUnstakeClawsBackProportionally(t *testing.T) {
	store := newWorkerStorage(t)
	seedRaffle(t, store, models.RaffleStatusActive)
	pool := NewPool(store, nil, 1, nil)
	ctx := context.Background()

	_, err := pool.apply(ctx, buyJob("0xbuy", 100))
	require.NoError(t, err)

	stake := &models.AllocationJob{
		Kind: models.KindStake, RaffleID: "raffle-1", Wallet: "0xw1",
		RawAmount: "1000", TxRef: "0xstake1", TimestampMs: 2000,
	}
	_, err = pool.apply(ctx, stake)
	require.NoError(t, err)

	// Fully unstaking removes the full 25-ticket bonus.
	unstake := &models.AllocationJob{
		Kind: models.KindUnstake, RaffleID: "raffle-1", Wallet: "0xw1",
		RawAmount: "1000", TxRef: "0xunstake1", TimestampMs: 3000,
	}
	status, err := pool.apply(ctx, unstake)
	require.NoError(t, err)
	assert.Equal(t, "applied", status)

	count, err := store.GetTicketCount(ctx, "raffle-1", "0xw1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)
}

func TestDecidedRaffleAcceptsButIgnoresJobs(t *testing.T) {
	store := newWorkerStorage(t)
	seedRaffle(t, store, models.RaffleStatusDecided)
	pool := NewPool(store, nil, 1, nil)
	ctx := context.Background()

	status, err := pool.apply(ctx, buyJob("0xlate", 5))
	require.NoError(t, err)
	assert.Equal(t, "applied", status)

	count, err := store.GetTicketCount(ctx, "raffle-1", "0xw1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// Late stakes are marked processed with zero effect too.
	stake := &models.AllocationJob{
		Kind: models.KindStake, RaffleID: "raffle-1", Wallet: "0xw1",
		RawAmount: "1000", TxRef: "0xlatestake", TimestampMs: 2000,
	}
	status, err = pool.apply(ctx, stake)
	require.NoError(t, err)
	assert.Equal(t, "applied", status)

	processed, err := store.IsProcessed(ctx, "raffle-1", "0xlatestake")
	require.NoError(t, err)
	assert.True(t, processed)

	entries, err := store.GetStakeEntries(ctx, "raffle-1", "0xw1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnknownRaffleDropsJob(t *testing.T) {
	store := newWorkerStorage(t)
	pool := NewPool(store, nil, 1, nil)

	status, err := pool.apply(context.Background(), buyJob("0xtx", 5))
	require.NoError(t, err)
	assert.Equal(t, "dropped", status)
}

func TestGarbageStakeAmountDropsJob(t *testing.T) {
	store := newWorkerStorage(t)
	seedRaffle(t, store, models.RaffleStatusActive)
	pool := NewPool(store, nil, 1, nil)

	stake := &models.AllocationJob{
		Kind: models.KindStake, RaffleID: "raffle-1", Wallet: "0xw1",
		RawAmount: "not-a-number", TxRef: "0xbad", TimestampMs: 2000,
	}
	status, err := pool.apply(context.Background(), stake)
	require.NoError(t, err)
	assert.Equal(t, "dropped", status)
}

func TestPoolConsumesFromQueue(t *testing.T) {
	store := newWorkerStorage(t)
	seedRaffle(t, store, models.RaffleStatusActive)

	q := queue.NewMemoryQueue(16)
	pool := NewPool(store, q.Jobs(), 2, nil)
	pool.Start(context.Background())
	defer pool.Stop()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		job := buyJob(fmt.Sprintf("0xtx%d", i), 1)
		require.NoError(t, q.Enqueue(ctx, job.Name(), job))
	}

	assert.Eventually(t, func() bool {
		count, err := store.GetTicketCount(ctx, "raffle-1", "0xw1")
		return err == nil && count == 5
	}, 5*time.Second, 20*time.Millisecond)
}
