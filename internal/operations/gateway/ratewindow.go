package gateway

import (
	"sync"
	"time"
)

const (
	windowSpan    = time.Minute
	softThreshold = 500  // log a warning, continue
	hardThreshold = 1100 // safety margin under the exchange cap of 1200/min
)

// rateWindow tracks call timestamps in a rolling 60 s window. It decides
// how long the caller must wait before the next call may go out; it never
// sleeps itself, so it can be tested with a fake clock.
type rateWindow struct {
	mu     sync.Mutex
	calls  []time.Time
	warned bool
	now    func() time.Time
}

func newRateWindow(now func() time.Time) *rateWindow {
	if now == nil {
		now = time.Now
	}
	return &rateWindow{now: now}
}

// reserve records one call and returns the delay required before it may
// be issued, plus whether the soft threshold was newly crossed.
func (w *rateWindow) reserve() (delay time.Duration, warn bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.trim(now)

	if len(w.calls) >= hardThreshold {
		// Block until the oldest call rolls out of the window.
		delay = w.calls[0].Add(windowSpan).Sub(now)
		if delay < 0 {
			delay = 0
		}
		now = now.Add(delay)
		w.trim(now)
	}

	if len(w.calls) >= softThreshold && !w.warned {
		warn = true
		w.warned = true
	}

	w.calls = append(w.calls, now)
	return delay, warn
}

// count reports calls currently inside the window.
func (w *rateWindow) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trim(w.now())
	return len(w.calls)
}

// trim drops timestamps older than the window. Resets the soft warning
// once usage falls back under the threshold. Callers hold the lock.
func (w *rateWindow) trim(now time.Time) {
	cutoff := now.Add(-windowSpan)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = w.calls[i:]
	}
	if len(w.calls) < softThreshold {
		w.warned = false
	}
}
