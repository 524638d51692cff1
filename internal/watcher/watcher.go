package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/allocation"
	"github.com/raffleworks/raffle-engine/internal/classify"
	"github.com/raffleworks/raffle-engine/internal/config"
	"github.com/raffleworks/raffle-engine/internal/metrics"
	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/internal/queue"
	"github.com/raffleworks/raffle-engine/internal/source"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// State is the watcher lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StatePolling      State = "polling"
	StateDegraded     State = "degraded"
	StateStopped      State = "stopped"
)

// degrader is implemented by sources that can report fallback status.
type degrader interface {
	Degraded() bool
}

// WatcherStats holds per-watcher counters, exposed over the status API.
type WatcherStats struct {
	EventsProcessed uint64    `json:"events_processed"`
	JobsEnqueued    uint64    `json:"jobs_enqueued"`
	Duplicates      uint64    `json:"duplicates"`
	Filtered        uint64    `json:"filtered"`
	PollErrors      uint64    `json:"poll_errors"`
	LastPollAt      time.Time `json:"last_poll_at"`
}

// Watcher monitors one event kind for one raffle. It polls its source on a
// fixed interval, deduplicates against its watermark, classifies and
// converts events into allocation jobs, and enqueues them.
type Watcher struct {
	kind       models.EventKind
	src        source.Source
	classifier classify.Classifier
	jobs       queue.Queue
	watermark  *Watermark
	cfg        config.WatcherConfig
	metrics    *metrics.PrometheusMetrics
	logger     *logrus.Entry

	mu     sync.RWMutex
	raffle *models.RaffleContext
	state  State
	stats  WatcherStats

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates an idle watcher. classifier may be nil for event kinds
// that need no swap filtering (stake, unstake). prom may be nil in tests.
func NewWatcher(kind models.EventKind, raffle *models.RaffleContext, src source.Source,
	classifier classify.Classifier, jobs queue.Queue, cfg config.WatcherConfig,
	prom *metrics.PrometheusMetrics) *Watcher {

	return &Watcher{
		kind:       kind,
		src:        src,
		classifier: classifier,
		jobs:       jobs,
		watermark:  NewWatermark(),
		cfg:        cfg,
		metrics:    prom,
		raffle:     raffle,
		state:      StateIdle,
		logger: utils.GetLogger().WithFields(logrus.Fields{
			"component": "watcher",
			"raffle_id": raffle.RaffleID,
			"kind":      string(kind),
		}),
	}
}

// Kind returns the event kind this watcher monitors.
func (w *Watcher) Kind() models.EventKind { return w.kind }

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Stats returns a snapshot of the watcher's counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// UpdateRaffle swaps in a refreshed raffle snapshot. Callers must only pass
// contexts for the same raffle and coin type; anything else requires a
// restart with a fresh watcher.
func (w *Watcher) UpdateRaffle(raffle *models.RaffleContext) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.raffle = raffle
}

// Start seeds the watermark and launches the polling loop. It is an error to
// start a watcher that is not idle.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateIdle {
		state := w.state
		w.mu.Unlock()
		return utils.NewAppError(utils.ErrCodeProcessing, "Watcher is not idle", string(state))
	}
	w.state = StateInitializing
	w.mu.Unlock()

	w.logger.Info("Watcher starting")
	w.seed(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.state = StatePolling
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.run(runCtx)
	return nil
}

// Stop halts polling and waits for the loop to exit. Safe to call twice.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()
	w.logger.Info("Watcher stopped")
}

// seed performs the initial poll that populates the watermark with the
// source's recent history. Nothing is enqueued: events that predate the
// watcher belong to no raffle window it is responsible for.
func (w *Watcher) seed(ctx context.Context) {
	events, err := w.src.Poll(ctx, 0, w.cfg.SeedLimit)
	if err != nil {
		// Without a seeded watermark the next poll would replay history, so
		// advance to the wall clock and only accept events from now on.
		w.logger.WithError(err).Warn("Seed poll failed, starting from current time")
		w.watermark.AdvanceTo(time.Now().UnixMilli())
		return
	}

	for i := range events {
		w.watermark.Mark(events[i].EventKey(), events[i].TimestampMs)
	}
	w.logger.WithFields(logrus.Fields{
		"seeded":  len(events),
		"high_ms": w.watermark.LastProcessedMs(),
	}).Info("Watermark seeded")
}

// run is the polling loop. It exits when the context is cancelled.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.pollOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.WithError(err).Warn("Poll cycle failed")
			}
		}
	}
}

// pollOnce runs a single poll cycle: fetch, dedup, classify, allocate,
// enqueue, then advance the watermark per event.
func (w *Watcher) pollOnce(ctx context.Context) error {
	w.mu.RLock()
	raffle := w.raffle
	w.mu.RUnlock()

	if !raffle.IsActive() {
		return nil
	}

	// Re-fetch the boundary timestamp so same-millisecond events split across
	// polls are not lost; the seen-key set drops the already-processed ones.
	sinceMs := w.watermark.LastProcessedMs() - 1
	if sinceMs < 0 {
		sinceMs = 0
	}

	started := time.Now()
	events, err := w.src.Poll(ctx, sinceMs, w.cfg.PollLimit)
	w.observePoll(err, time.Since(started))

	if err != nil {
		w.mu.Lock()
		w.stats.PollErrors++
		w.mu.Unlock()
		w.refreshState()
		return err
	}
	w.refreshState()

	for i := range events {
		if err := w.processEvent(ctx, &events[i], raffle); err != nil {
			// Enqueue failure: the event is not marked, the next poll retries.
			return err
		}
	}
	return nil
}

// processEvent handles a single normalized event end to end. The watermark is
// only advanced after the job (if any) was accepted by the queue, so a crash
// or full queue re-delivers rather than drops.
func (w *Watcher) processEvent(ctx context.Context, event *models.NormalizedEvent, raffle *models.RaffleContext) error {
	// Anything strictly older than the watermark was processed in an earlier
	// cycle, even if its key has been compacted away. Events on the boundary
	// millisecond itself are covered by the seen-key set and, past compaction,
	// by the worker's per-reference idempotency.
	key := event.EventKey()
	if w.watermark.Seen(key) || event.TimestampMs < w.watermark.LastProcessedMs() {
		w.mu.Lock()
		w.stats.Duplicates++
		w.mu.Unlock()
		w.recordEvent("duplicate")
		return nil
	}

	started := time.Now()
	job, ok := w.buildJob(ctx, event, raffle)
	if ok {
		if err := w.jobs.Enqueue(ctx, job.Name(), job); err != nil {
			return err
		}
		w.mu.Lock()
		w.stats.JobsEnqueued++
		w.mu.Unlock()
		if w.metrics != nil {
			w.metrics.RecordJobEnqueued(job.Name())
		}
		w.recordEvent("allocated")
	} else {
		w.mu.Lock()
		w.stats.Filtered++
		w.mu.Unlock()
		w.recordEvent("filtered")
	}

	w.watermark.Mark(key, event.TimestampMs)
	w.mu.Lock()
	w.stats.EventsProcessed++
	w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.RecordEventProcessingDuration(string(w.kind), time.Since(started))
	}
	return nil
}

// buildJob converts an event into an allocation job, or reports that the
// event earns nothing.
func (w *Watcher) buildJob(ctx context.Context, event *models.NormalizedEvent, raffle *models.RaffleContext) (*models.AllocationJob, bool) {
	switch w.kind {
	case models.KindBuy, models.KindSell:
		// Wallet-to-wallet transfers emit the same ledger events as trades;
		// only genuine exchange swaps earn or burn tickets.
		if w.classifier != nil && !w.classifier.IsExchangeSwap(ctx, event.TxRef) {
			return nil, false
		}

		tickets := allocation.TicketsForPurchase(event, raffle)
		if tickets == 0 {
			return nil, false
		}
		if w.kind == models.KindSell {
			tickets = -tickets
		}
		return &models.AllocationJob{
			Kind:        w.kind,
			RaffleID:    raffle.RaffleID,
			Wallet:      event.Wallet,
			TicketDelta: tickets,
			TxRef:       event.TxRef,
			TimestampMs: event.TimestampMs,
		}, true

	case models.KindStake, models.KindUnstake:
		// The bonus depends on the wallet's ticket count at apply time, so
		// only the raw amount travels with the job.
		amount := event.AmountText
		if event.RawAmount != nil {
			amount = event.RawAmount.String()
		}
		if amount == "" || event.Wallet == "" {
			return nil, false
		}
		return &models.AllocationJob{
			Kind:        w.kind,
			RaffleID:    raffle.RaffleID,
			Wallet:      event.Wallet,
			RawAmount:   amount,
			TxRef:       event.TxRef,
			TimestampMs: event.TimestampMs,
		}, true
	}

	return nil, false
}

// refreshState mirrors the source's fallback status into the watcher state.
func (w *Watcher) refreshState() {
	degraded := false
	if d, ok := w.src.(degrader); ok {
		degraded = d.Degraded()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StatePolling && w.state != StateDegraded {
		return
	}
	if degraded {
		w.state = StateDegraded
	} else {
		w.state = StatePolling
	}
}

// observePoll updates poll counters and metrics.
func (w *Watcher) observePoll(err error, elapsed time.Duration) {
	w.mu.Lock()
	w.stats.LastPollAt = time.Now()
	w.mu.Unlock()

	if w.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	w.metrics.RecordPoll(string(w.kind), w.src.Name(), status, elapsed)
}

// recordEvent bumps the processed-event metric for one outcome.
func (w *Watcher) recordEvent(status string) {
	if w.metrics != nil {
		w.metrics.RecordEventProcessed(string(w.kind), status)
	}
}
