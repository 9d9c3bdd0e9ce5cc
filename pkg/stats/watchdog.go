package stats

import (
	"sync"
	"time"
)

// Watchdog fires a callback if it isn't kicked within its timeout,
// mirroring the restartTimeoutTimer/timeoutHandler pattern heartbeat
// consumers use: a single time.Timer, reset on every kick, which invokes
// the callback exactly once per stale period.
type Watchdog struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	onStale func()
	stopped bool
}

// NewWatchdog creates a (not yet armed) watchdog. Call Kick to start or
// refresh it.
func NewWatchdog(timeout time.Duration, onStale func()) *Watchdog {
	return &Watchdog{timeout: timeout, onStale: onStale}
}

// Kick (re)starts the countdown. No-op if the watchdog has been stopped.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.timeout <= 0 {
		return
	}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.timeout, w.fire)
	} else {
		w.timer.Reset(w.timeout)
	}
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	cb := w.onStale
	w.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Stop disarms the watchdog; it will not fire again.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
