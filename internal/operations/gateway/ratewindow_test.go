package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets window tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestRateWindow_BelowSoftThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w := newRateWindow(clock.now)

	for i := 0; i < 499; i++ {
		delay, warn := w.reserve()
		assert.Zero(t, delay)
		assert.False(t, warn)
		clock.advance(10 * time.Millisecond)
	}
	assert.Equal(t, 499, w.count())
}

func TestRateWindow_SoftThresholdWarnsOnce(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w := newRateWindow(clock.now)

	warned := 0
	for i := 0; i < 650; i++ {
		delay, warn := w.reserve()
		require.Zero(t, delay, "no blocking before the hard threshold")
		if warn {
			warned++
		}
		clock.advance(time.Millisecond)
	}
	assert.Equal(t, 1, warned, "soft threshold warns exactly once per window")
}

func TestRateWindow_HardThresholdBlocks(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w := newRateWindow(clock.now)

	for i := 0; i < hardThreshold; i++ {
		delay, _ := w.reserve()
		require.Zero(t, delay)
		clock.advance(time.Millisecond)
	}

	// The window now holds 1100 calls; the next one must wait until the
	// oldest rolls out.
	delay, _ := w.reserve()
	assert.Greater(t, delay, time.Duration(0))
	assert.LessOrEqual(t, delay, windowSpan)
}

func TestRateWindow_RollsOver(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	w := newRateWindow(clock.now)

	for i := 0; i < hardThreshold; i++ {
		w.reserve()
	}
	clock.advance(windowSpan + time.Second)

	delay, warn := w.reserve()
	assert.Zero(t, delay)
	assert.False(t, warn)
	assert.Equal(t, 1, w.count())
}
