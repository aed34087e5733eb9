package stream

import (
	"math/rand/v2"
	"sync"
	"time"
)

// backoff produces reconnect delays that grow with consecutive failures.
//
// The window starts at base, doubles per failure and is clamped at cap.
// The returned delay is drawn uniformly from [window/2, window] so a fleet
// of clients dropped by the same outage does not reconnect in lockstep.
type backoff struct {
	base time.Duration
	cap  time.Duration

	mu     sync.Mutex
	window time.Duration

	// jitter picks the delay within a window; replaced in tests.
	jitter func(window time.Duration) time.Duration
}

func newBackoff(base, cap time.Duration) *backoff {
	return &backoff{
		base: base,
		cap:  cap,
		jitter: func(window time.Duration) time.Duration {
			half := window / 2
			return half + rand.N(window-half+1)
		},
	}
}

// Next returns the delay before the next reconnect attempt and widens the
// window for the one after it.
func (b *backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.window == 0 {
		b.window = b.base
	}
	delay := b.jitter(b.window)

	b.window *= 2
	if b.window > b.cap {
		b.window = b.cap
	}
	return delay
}

// Reset collapses the window back to base after a successful connect.
func (b *backoff) Reset() {
	b.mu.Lock()
	b.window = 0
	b.mu.Unlock()
}
