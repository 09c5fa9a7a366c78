// Package ratelimit implements sliding-window admission control for
// outbound bot actions. A limiter allows at most Burst attempts within any
// trailing Window interval; attempts beyond that budget are denied and the
// action must be aborted rather than silently dropped.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultBurst is the number of actions permitted per window when no
	// explicit limit is configured.
	DefaultBurst = 20

	// DefaultWindow is the trailing interval over which attempts are counted.
	DefaultWindow = 5 * time.Second
)

// Error reports a denied attempt. It is returned by callers of the limiter
// (not by the limiter itself) so the burst and window that were exceeded
// travel with the failure.
type Error struct {
	Burst  int
	Window time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded: more than %d actions within %s", e.Burst, e.Window)
}

// Limiter is a sliding-window rate limiter. Every call to Allow records an
// attempt; the attempt is admitted when the number of attempts within the
// trailing window (including this one) does not exceed the burst budget.
//
// The window is inclusive of now and exclusive of now minus the window
// length. Timestamps are process-monotonic (time.Time carries a monotonic
// reading), so wall-clock adjustments cannot reorder attempts.
//
// A Limiter is safe for concurrent use, so a facade shared between
// goroutines still counts attempts correctly.
type Limiter struct {
	mu       sync.Mutex
	burst    int
	window   time.Duration
	now      func() time.Time
	attempts []time.Time
}

// New creates a limiter permitting at most burst attempts per trailing
// window. Non-positive arguments fall back to the defaults.
func New(burst int, window time.Duration) *Limiter {
	if burst <= 0 {
		burst = DefaultBurst
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		burst:  burst,
		window: window,
		now:    time.Now,
	}
}

// NewWithClock creates a limiter that reads time from the provided clock.
// Used by tests to drive the window deterministically.
func NewWithClock(burst int, window time.Duration, clock func() time.Time) *Limiter {
	l := New(burst, window)
	l.now = clock
	return l
}

// Allow records an attempt at the current time and reports whether it is
// within budget. Denied attempts still count against the window, matching
// the platform's treatment of a runaway sender: hammering the limiter does
// not open the window sooner.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.attempts = append(l.attempts, now)
	l.prune(now)
	return len(l.attempts) <= l.burst
}

// LimitError returns the error describing this limiter's budget. Callers
// return it when Allow denies an attempt.
func (l *Limiter) LimitError() error {
	return &Error{Burst: l.burst, Window: l.window}
}

// Burst returns the configured attempt budget.
func (l *Limiter) Burst() int {
	return l.burst
}

// Window returns the configured trailing interval.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// prune drops attempts at or before now-window. Caller must hold the lock.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.attempts[:0]
	for _, t := range l.attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.attempts = kept
}
