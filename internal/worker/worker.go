package worker

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/allocation"
	"github.com/raffleworks/raffle-engine/internal/metrics"
	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/internal/storage"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// Retry policy for transient storage failures.
const (
	maxAttempts = 3
	retryDelay  = 500 * time.Millisecond
)

// Pool applies allocation jobs against the ticket ledger. Jobs for the same
// (raffle, wallet) are serialized across all event kinds so the ticket count
// a stake bonus is computed from can never race a concurrent purchase.
type Pool struct {
	store   storage.Storage
	jobs    <-chan *models.AllocationJob
	workers int
	metrics *metrics.PrometheusMetrics
	logger  *logrus.Entry

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates an allocation worker pool consuming from jobs.
func NewPool(store storage.Storage, jobs <-chan *models.AllocationJob, workers int, prom *metrics.PrometheusMetrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		store:   store,
		jobs:    jobs,
		workers: workers,
		metrics: prom,
		locks:   make(map[string]*sync.Mutex),
		logger:  utils.Component("worker"),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(runCtx)
	}
	p.logger.WithField("workers", p.workers).Info("Allocation workers started")
}

// Stop halts the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Allocation workers stopped")
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.handle(ctx, job)
			if p.metrics != nil {
				p.metrics.UpdateQueueDepth(len(p.jobs))
			}
		}
	}
}

// handle applies one job with retries for transient storage failures. A job
// that still fails after the retry budget is dropped with an error log; its
// transaction reference stays unprocessed so a later replay can recover it.
func (p *Pool) handle(ctx context.Context, job *models.AllocationJob) {
	started := time.Now()

	var status string
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err = p.apply(ctx, job)
		if err == nil {
			break
		}
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}

	if err != nil {
		status = "error"
		p.logger.WithError(err).WithFields(logrus.Fields{
			"job":    job.Name(),
			"tx_ref": job.TxRef,
		}).Error("Job failed after retries")
	}

	if p.metrics != nil {
		p.metrics.RecordJobProcessed(job.Name(), status, time.Since(started))
	}
}

// apply performs one attempt at a job under the per-wallet lock.
func (p *Pool) apply(ctx context.Context, job *models.AllocationJob) (string, error) {
	raffle, err := p.store.GetRaffle(ctx, job.RaffleID)
	if err != nil {
		return "", err
	}
	if raffle == nil {
		p.logger.WithFields(logrus.Fields{
			"raffle_id": job.RaffleID,
			"tx_ref":    job.TxRef,
		}).Warn("Job references unknown raffle, dropping")
		return "dropped", nil
	}

	lock := p.lockFor(job.RaffleID + "\x00" + job.Wallet)
	lock.Lock()
	defer lock.Unlock()

	switch job.Kind {
	case models.KindStake, models.KindUnstake:
		return p.applyStake(ctx, job, raffle)
	default:
		return p.applyTrade(ctx, job, raffle)
	}
}

// applyTrade handles buy and sell jobs: the delta was computed by the
// watcher, storage clamps the balance at zero and enforces idempotency.
func (p *Pool) applyTrade(ctx context.Context, job *models.AllocationJob, raffle *models.RaffleContext) (string, error) {
	delta := job.TicketDelta
	if raffle.IsDecided() {
		// Late events after winner selection are recorded but change nothing.
		delta = 0
	}

	applied, err := p.store.AdjustTickets(ctx, job.RaffleID, job.Wallet, delta, string(job.Kind), job.TxRef)
	if err != nil {
		return "", err
	}
	if !applied {
		return "duplicate", nil
	}

	if p.metrics != nil && delta != 0 {
		p.metrics.RecordTicketsAllocated(string(job.Kind), delta)
	}
	return "applied", nil
}

// applyStake computes the bonus inside the critical section so it reads the
// wallet's current ticket count, then applies delta, ledger entry, and
// processed reference in one transaction.
func (p *Pool) applyStake(ctx context.Context, job *models.AllocationJob, raffle *models.RaffleContext) (string, error) {
	if raffle.IsDecided() {
		applied, err := p.store.AdjustTickets(ctx, job.RaffleID, job.Wallet, 0, string(job.Kind), job.TxRef)
		if err != nil {
			return "", err
		}
		if !applied {
			return "duplicate", nil
		}
		return "applied", nil
	}

	amount, ok := new(big.Int).SetString(job.RawAmount, 10)
	if !ok {
		p.logger.WithFields(logrus.Fields{
			"raw_amount": job.RawAmount,
			"tx_ref":     job.TxRef,
		}).Warn("Unparseable stake amount, dropping job")
		return "dropped", nil
	}

	entry := &models.StakeLedgerEntry{
		RaffleID:    job.RaffleID,
		Wallet:      job.Wallet,
		RawAmount:   amount,
		TxRef:       job.TxRef,
		TimestampMs: job.TimestampMs,
	}

	var delta int64
	if job.Kind == models.KindStake {
		current, err := p.store.GetTicketCount(ctx, job.RaffleID, job.Wallet)
		if err != nil {
			return "", err
		}
		bonus := allocation.StakeBonus(current, raffle.StakeBonusPercent)
		entry.Direction = models.StakeDirectionStake
		entry.BonusTickets = bonus
		delta = bonus
	} else {
		history, err := p.store.GetStakeEntries(ctx, job.RaffleID, job.Wallet)
		if err != nil {
			return "", err
		}
		entry.Direction = models.StakeDirectionUnstake
		delta = -allocation.UnstakeClawback(history, amount)
	}

	applied, err := p.store.ApplyStakeAdjustment(ctx, entry, delta)
	if err != nil {
		return "", err
	}
	if !applied {
		return "duplicate", nil
	}

	if p.metrics != nil && delta != 0 {
		p.metrics.RecordTicketsAllocated(string(job.Kind), delta)
	}
	return "applied", nil
}

// lockFor returns the mutex serializing one (raffle, wallet) pair.
func (p *Pool) lockFor(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[key] = lock
	}
	return lock
}
