package hopper

import (
	"sync"
	"time"
)

// stopSignal is the hopper's cancellation token, shared with the
// Module Runner via modules.StopSignal. Closing ch makes every
// concurrent Wait return immediately.
type stopSignal struct {
	mu      sync.Mutex
	ch      chan struct{}
	stopped bool
}

func newStopSignal() *stopSignal {
	return &stopSignal{ch: make(chan struct{})}
}

// Stop is idempotent: a second call is a no-op.
func (s *stopSignal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.ch)
}

func (s *stopSignal) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Wait blocks for d or until Stop is called, whichever comes first.
func (s *stopSignal) Wait(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.ch:
	}
}
