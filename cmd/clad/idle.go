package main

import (
	"sync"
	"time"
)

// idleTimer signals Expired after a window of no activity. A zero window
// disables it; the daemon then runs until stopped.
type idleTimer struct {
	window  time.Duration
	expired chan struct{}

	mu    sync.Mutex
	once  sync.Once
	timer *time.Timer
}

func newIdleTimer(window time.Duration) *idleTimer {
	t := &idleTimer{
		window:  window,
		expired: make(chan struct{}),
	}
	if window > 0 {
		t.timer = time.AfterFunc(window, t.expire)
	}
	return t
}

// Touch re-arms the window. Called once per handled request.
func (t *idleTimer) Touch() {
	if t.window <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer.Reset(t.window)
}

func (t *idleTimer) expire() {
	t.once.Do(func() { close(t.expired) })
}

// Expired never fires when idle exit is disabled.
func (t *idleTimer) Expired() <-chan struct{} {
	return t.expired
}
