package utils

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum interval between successive outbound requests.
// The interval is a hard lower bound measured between request starts.
type Throttle struct {
	mu       sync.Mutex
	delay    time.Duration
	lastCall time.Time
}

// NewThrottle creates a Throttle with the given minimum interval.
func NewThrottle(delay time.Duration) *Throttle {
	return &Throttle{delay: delay}
}

// Delay returns the configured minimum interval.
func (t *Throttle) Delay() time.Duration {
	return t.delay
}

// Wait blocks until at least the configured delay has passed since the
// previous Wait returned, then records the current time as the new request
// start. The first call never blocks.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastCall.IsZero() {
		for {
			remaining := t.delay - time.Since(t.lastCall)
			if remaining <= 0 {
				break
			}
			if err := Sleep(ctx, remaining); err != nil {
				return err
			}
		}
	}
	t.lastCall = time.Now()
	return nil
}
