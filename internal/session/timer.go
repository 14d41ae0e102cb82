package session

import (
	"sync"
	"time"
)

// ExpiryTimer is a single cancellable countdown tagged with the epoch it was
// armed for. Re-arming replaces the previous countdown.
type ExpiryTimer struct {
	mu    sync.Mutex
	t     *time.Timer
	epoch uint64
	fired bool
}

// NewExpiryTimer returns an idle timer.
func NewExpiryTimer() *ExpiryTimer {
	return &ExpiryTimer{}
}

// Arm starts a countdown of d that calls fire(epoch) on its own goroutine.
func (e *ExpiryTimer) Arm(epoch uint64, d time.Duration, fire func(epoch uint64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t != nil {
		e.t.Stop()
	}
	e.epoch = epoch
	e.fired = false
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		e.mu.Lock()
		if e.t != t {
			// Replaced or stopped after this callback was scheduled.
			e.mu.Unlock()
			return
		}
		e.fired = true
		e.t = nil
		e.mu.Unlock()
		fire(epoch)
	})
	e.t = t
}

// Stop cancels the pending countdown and reports whether one was pending.
func (e *ExpiryTimer) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t == nil {
		return false
	}
	e.t.Stop()
	e.t = nil
	return true
}

// Pending reports whether a countdown is armed and has not fired.
func (e *ExpiryTimer) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t != nil
}

// Fired reports whether the last armed countdown ran its callback.
func (e *ExpiryTimer) Fired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fired
}

// Epoch returns the epoch of the last Arm.
func (e *ExpiryTimer) Epoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.epoch
}
