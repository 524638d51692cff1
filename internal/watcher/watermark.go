package watcher

import "sync"

// Bounds for the seen-key set. Once the set grows past seenHighWater entries
// it is compacted down to the newest seenLowWater; anything older is covered
// by the monotone timestamp alone.
const (
	seenHighWater = 200
	seenLowWater  = 100
)

// Watermark tracks per-watcher processing progress: a bounded set of recently
// processed event keys plus the highest processed event timestamp. Together
// they make event processing idempotent across overlapping polls and source
// switches.
type Watermark struct {
	mu              sync.Mutex
	seen            map[string]struct{}
	order           []string // insertion order, oldest first
	lastProcessedMs int64
}

// NewWatermark creates an empty watermark.
func NewWatermark() *Watermark {
	return &Watermark{
		seen: make(map[string]struct{}, seenHighWater),
	}
}

// Seen reports whether the key was already processed.
func (w *Watermark) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[key]
	return ok
}

// Mark records a processed event key and advances the timestamp. The
// timestamp never regresses, so out-of-order marks cannot reopen history.
func (w *Watermark) Mark(key string, timestampMs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[key]; !ok {
		w.seen[key] = struct{}{}
		w.order = append(w.order, key)
		w.compactLocked()
	}
	if timestampMs > w.lastProcessedMs {
		w.lastProcessedMs = timestampMs
	}
}

// AdvanceTo raises the processed timestamp without recording a key, used when
// the seed poll fails and the watcher must not replay history.
func (w *Watermark) AdvanceTo(timestampMs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timestampMs > w.lastProcessedMs {
		w.lastProcessedMs = timestampMs
	}
}

// LastProcessedMs returns the highest processed event timestamp.
func (w *Watermark) LastProcessedMs() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastProcessedMs
}

// SeenCount returns the current size of the seen-key set.
func (w *Watermark) SeenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// compactLocked trims the seen set to the newest seenLowWater keys once it
// exceeds seenHighWater. Caller holds the mutex.
func (w *Watermark) compactLocked() {
	if len(w.order) <= seenHighWater {
		return
	}
	cut := len(w.order) - seenLowWater
	for _, key := range w.order[:cut] {
		delete(w.seen, key)
	}
	w.order = append(w.order[:0], w.order[cut:]...)
}
