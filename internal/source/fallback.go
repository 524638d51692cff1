package source

import (
	"context"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// FailoverSource wraps a preferred source and an alternate. After
// FailureLimit consecutive preferred-source failures it degrades to the
// alternate; while degraded, each poll has ProbeChance probability of
// re-checking the preferred source with a cheap seed-only query, and a
// successful probe promotes it back.
type FailoverSource struct {
	preferred Source
	alternate Source
	logger    *logrus.Logger

	failureLimit int
	probeChance  float64
	rng          *rand.Rand
	onSwitch     func(from, to string)

	mu               sync.Mutex
	degraded         bool
	consecutiveFails int
}

// FailoverOption customizes a FailoverSource.
type FailoverOption func(*FailoverSource)

// WithSwitchHook registers a callback invoked on every source switch, used
// for metrics and operational alerts.
func WithSwitchHook(hook func(from, to string)) FailoverOption {
	return func(f *FailoverSource) { f.onSwitch = hook }
}

// WithRand injects the random number generator used for probe scheduling.
func WithRand(rng *rand.Rand) FailoverOption {
	return func(f *FailoverSource) { f.rng = rng }
}

// NewFailoverSource creates the strategy wrapper. alternate may be nil, in
// which case the preferred source is used unconditionally.
func NewFailoverSource(preferred, alternate Source, failureLimit int, probeChance float64, opts ...FailoverOption) *FailoverSource {
	f := &FailoverSource{
		preferred:    preferred,
		alternate:    alternate,
		failureLimit: failureLimit,
		probeChance:  probeChance,
		logger:       utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name reports the currently active source.
func (f *FailoverSource) Name() string {
	return f.Active().Name()
}

// Active returns the source the next poll will use.
func (f *FailoverSource) Active() Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded && f.alternate != nil {
		return f.alternate
	}
	return f.preferred
}

// Degraded reports whether polls are currently served by the alternate.
func (f *FailoverSource) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

// Poll delegates to the active source, tracking preferred-source failures
// and probing for recovery while degraded.
func (f *FailoverSource) Poll(ctx context.Context, sinceMs int64, limit int) ([]models.NormalizedEvent, error) {
	if f.alternate == nil {
		return f.preferred.Poll(ctx, sinceMs, limit)
	}

	f.mu.Lock()
	degraded := f.degraded
	f.mu.Unlock()

	if degraded {
		if f.roll() < f.probeChance {
			f.probePreferred(ctx, sinceMs)
			f.mu.Lock()
			degraded = f.degraded
			f.mu.Unlock()
		}
	}

	if degraded {
		return f.alternate.Poll(ctx, sinceMs, limit)
	}

	events, err := f.preferred.Poll(ctx, sinceMs, limit)
	if err != nil {
		f.recordFailure()
		return nil, err
	}

	f.mu.Lock()
	f.consecutiveFails = 0
	f.mu.Unlock()
	return events, nil
}

// probePreferred runs a seed-only check against the preferred source. On
// success the wrapper returns to the preferred source.
func (f *FailoverSource) probePreferred(ctx context.Context, sinceMs int64) {
	if _, err := f.preferred.Poll(ctx, sinceMs, 1); err != nil {
		f.logger.WithError(err).WithField("source", f.preferred.Name()).
			Debug("Preferred source probe failed, staying degraded")
		return
	}

	f.mu.Lock()
	f.degraded = false
	f.consecutiveFails = 0
	f.mu.Unlock()

	f.logger.WithFields(logrus.Fields{
		"from": f.alternate.Name(),
		"to":   f.preferred.Name(),
	}).Info("Preferred source recovered, switching back")

	if f.onSwitch != nil {
		f.onSwitch(f.alternate.Name(), f.preferred.Name())
	}
}

// recordFailure counts a preferred-source failure and degrades once the
// consecutive-failure limit is hit.
func (f *FailoverSource) recordFailure() {
	f.mu.Lock()
	f.consecutiveFails++
	shouldSwitch := !f.degraded && f.consecutiveFails >= f.failureLimit
	if shouldSwitch {
		f.degraded = true
	}
	f.mu.Unlock()

	if shouldSwitch {
		f.logger.WithFields(logrus.Fields{
			"from":     f.preferred.Name(),
			"to":       f.alternate.Name(),
			"failures": f.failureLimit,
		}).Warn("Preferred source failing, switching to alternate")

		if f.onSwitch != nil {
			f.onSwitch(f.preferred.Name(), f.alternate.Name())
		}
	}
}

// roll returns a uniform float in [0,1) from the injected generator, or the
// package-level one when none was provided.
func (f *FailoverSource) roll() float64 {
	if f.rng != nil {
		return f.rng.Float64()
	}
	return rand.Float64()
}
