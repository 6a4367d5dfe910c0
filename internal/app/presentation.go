package app

import (
	"sync"
	"time"
)

// ToggleSpotlight handles a click on a remote tile.
func (s *Session) ToggleSpotlight(endpointID string) {
	s.store.ToggleSpotlight(endpointID)
}

// Activity reports pointer movement: leaves immersive mode and restarts
// the countdown back into it.
func (s *Session) Activity() {
	s.store.SetImmersive(false)
	s.idle.reset()
}

// DismissError clears the surfaced error.
func (s *Session) DismissError() {
	s.store.DismissError()
}

// idleTimer is the immersive-mode countdown, owned by one session and
// destroyed with it. Never shared across sessions.
type idleTimer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fire  func()
}

func newIdleTimer(delay time.Duration, fire func()) *idleTimer {
	return &idleTimer{delay: delay, fire: fire}
}

// reset cancels any pending countdown and starts a fresh one.
func (t *idleTimer) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.delay, t.fire)
}

func (t *idleTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
