package watcher

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWatermarkDeduplicates(t *testing.T) {
	wm := NewWatermark()

	assert.False(t, wm.Seen("0xabc:0"))
	wm.Mark("0xabc:0", 1000)
	assert.True(t, wm.Seen("0xabc:0"))
	assert.False(t, wm.Seen("0xabc:1"))
	assert.Equal(t, int64(1000), wm.LastProcessedMs())
}

func TestWatermarkTimestampNeverRegresses(t *testing.T) {
	wm := NewWatermark()

	wm.Mark("a", 5000)
	wm.Mark("b", 3000) // late event, older timestamp
	assert.Equal(t, int64(5000), wm.LastProcessedMs())
	assert.True(t, wm.Seen("b"))

	wm.AdvanceTo(4000)
	assert.Equal(t, int64(5000), wm.LastProcessedMs())
	wm.AdvanceTo(6000)
	assert.Equal(t, int64(6000), wm.LastProcessedMs())
}

func TestWatermarkCompaction(t *testing.T) {
	wm := NewWatermark()

	total := seenHighWater + 1
	for i := 0; i < total; i++ {
		wm.Mark(fmt.Sprintf("tx%04d:0", i), int64(i))
	}

	// Crossing the high-water mark trims the set down to the newest keys.
	assert.Equal(t, seenLowWater, wm.SeenCount())
	assert.False(t, wm.Seen("tx0000:0"))
	assert.False(t, wm.Seen(fmt.Sprintf("tx%04d:0", total-seenLowWater-1)))
	assert.True(t, wm.Seen(fmt.Sprintf("tx%04d:0", total-seenLowWater)))
	assert.True(t, wm.Seen(fmt.Sprintf("tx%04d:0", total-1)))

	// The timestamp still covers everything that was forgotten.
	assert.Equal(t, int64(total-1), wm.LastProcessedMs())
}

func TestWatermarkRemarkDoesNotGrow(t *testing.T) {
	wm := NewWatermark()

	wm.Mark("a", 1)
	wm.Mark("a", 2)
	wm.Mark("a", 3)
	assert.Equal(t, 1, wm.SeenCount())
	assert.Equal(t, int64(3), wm.LastProcessedMs())
}
