package app

import "time"

// afterLocked schedules fn to run with a.mu held after d. The callback is dropped
// when the App was closed or the epoch moved on since scheduling.
// A non-nil event returned by fn is recorded after the lock is released.
// Must be called with a.mu held.
func (a *App) afterLocked(d time.Duration, fn func() *CaptureEvent) *time.Timer {
	epoch := a.epoch
	return time.AfterFunc(d, func() {
		a.mu.Lock()
		if a.closed || a.epoch != epoch {
			a.mu.Unlock()
			return
		}
		ev := fn()
		a.mu.Unlock()

		a.record(ev)
	})
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// armManualLocked arms a manual-capture visibility timer. Non-positive
// timeouts leave it disarmed.
func (a *App) armManualLocked(t **time.Timer, timeout time.Duration, reason string) {
	if timeout <= 0 || *t != nil {
		return
	}
	*t = a.afterLocked(timeout, func() *CaptureEvent {
		a.showManualLocked(reason)
		return nil
	})
}

// stopCaptureTimersLocked cancels the timers a completed capture makes moot.
func (a *App) stopCaptureTimersLocked() {
	stopTimer(&a.timers.auto)
	stopTimer(&a.timers.manual)
	stopTimer(&a.timers.face)
}

func (a *App) stopAllTimersLocked() {
	a.stopCaptureTimersLocked()
	stopTimer(&a.timers.confirm)
}

type timerSet struct {
	auto    *time.Timer
	confirm *time.Timer
	manual  *time.Timer
	face    *time.Timer
}
