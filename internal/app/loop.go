package app

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/autoselfie/internal/capture"
	"github.com/ayusman/autoselfie/internal/detector"
)

// PollFunc grabs a frame and returns its verdict.
type PollFunc func() (detector.Verdict, error)

// CycleFunc publishes the result of one cycle. Returning false stops the loop.
type CycleFunc func(h *LoopHandle, status Status, verdict detector.Verdict) bool

// LoopHandle is the cancellation token of a running loop.
type LoopHandle struct {
	cancelled atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	once      sync.Once
}

func newLoopHandle() *LoopHandle {
	return &LoopHandle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Cancel stops the loop at its next check. An in-flight poll still completes.
func (h *LoopHandle) Cancel() {
	h.once.Do(func() {
		h.cancelled.Store(true)
		close(h.stop)
	})
}

// Cancelled reports whether Cancel was called.
func (h *LoopHandle) Cancelled() bool {
	return h.cancelled.Load()
}

// Done is closed once the loop goroutine has returned.
func (h *LoopHandle) Done() <-chan struct{} {
	return h.done
}

// NextDelay returns how long to wait so cycles start interval apart.
func NextDelay(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}

// StartLoop runs poll every interval until it is cancelled, onCycle rejects,
// or a cycle classifies as StatusReady.
func StartLoop(interval time.Duration, poll PollFunc, onCycle CycleFunc, logger *slog.Logger) *LoopHandle {
	h := newLoopHandle()
	go runLoop(h, interval, poll, onCycle, logger)
	return h
}

func runLoop(h *LoopHandle, interval time.Duration, poll PollFunc, onCycle CycleFunc, logger *slog.Logger) {
	defer close(h.done)

	for {
		if h.Cancelled() {
			return
		}
		start := time.Now()

		verdict, err := poll()
		publish := true
		if err != nil {
			if errors.Is(err, capture.ErrFrameUnavailable) {
				logger.Debug("frame unavailable, skipping cycle", "error", err)
				publish = false
			} else {
				logger.Warn("detection cycle failed", "error", err)
				verdict = detector.VerdictFailure
			}
		}

		if publish {
			if h.Cancelled() {
				return
			}
			status := StatusFor(verdict)
			if !onCycle(h, status, verdict) || status == StatusReady {
				return
			}
		}

		timer := time.NewTimer(NextDelay(interval, time.Since(start)))
		select {
		case <-timer.C:
		case <-h.stop:
			timer.Stop()
			return
		}
	}
}
