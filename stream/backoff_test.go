package stream

import (
	"testing"
	"time"
)

func TestBackoff_WindowGrowsThenCaps(t *testing.T) {
	b := newBackoff(5*time.Second, 30*time.Second)
	// Pin the jitter to the window top so growth is observable.
	b.jitter = func(window time.Duration) time.Duration { return window }

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() call %d = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoff_ResetCollapsesWindow(t *testing.T) {
	b := newBackoff(5*time.Second, 30*time.Second)
	b.jitter = func(window time.Duration) time.Duration { return window }

	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != 5*time.Second {
		t.Errorf("Next() after Reset = %v, want base 5s", got)
	}
}

func TestBackoff_JitterStaysInWindow(t *testing.T) {
	b := newBackoff(5*time.Second, 30*time.Second)

	for i := 0; i < 200; i++ {
		b.Reset()
		got := b.Next()
		if got < 2500*time.Millisecond || got > 5*time.Second {
			t.Fatalf("Next() = %v, want within [2.5s, 5s]", got)
		}
	}
}
