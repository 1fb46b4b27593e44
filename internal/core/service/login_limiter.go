package service

import (
	"sync"
	"time"
)

const (
	defaultLoginMaxFailures = 5
	defaultLoginWindow      = 5 * time.Minute
)

// LoginLimiter tracks failed logins per origin over a rolling window.
// Entries older than the window are pruned lazily whenever an origin is checked.
type LoginLimiter struct {
	mu          sync.Mutex
	maxFailures int
	window      time.Duration
	now         func() time.Time
	failures    map[string][]time.Time
}

// NewLoginLimiter returns a limiter allowing maxFailures failed attempts per
// origin within window. Non-positive values fall back to 5 per 5 minutes.
func NewLoginLimiter(maxFailures int, window time.Duration) *LoginLimiter {
	if maxFailures <= 0 {
		maxFailures = defaultLoginMaxFailures
	}
	if window <= 0 {
		window = defaultLoginWindow
	}
	return &LoginLimiter{
		maxFailures: maxFailures,
		window:      window,
		now:         time.Now,
		failures:    make(map[string][]time.Time),
	}
}

// Allow reports whether origin may attempt another login.
func (l *LoginLimiter) Allow(origin string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(origin)) < l.maxFailures
}

// Fail records a failed attempt for origin.
func (l *LoginLimiter) Fail(origin string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[origin] = append(l.prune(origin), l.now())
}

// Reset forgets origin after a successful login.
func (l *LoginLimiter) Reset(origin string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, origin)
}

// prune drops attempts that fell out of the window. Callers hold l.mu.
func (l *LoginLimiter) prune(origin string) []time.Time {
	attempts, ok := l.failures[origin]
	if !ok {
		return nil
	}
	cutoff := l.now().Add(-l.window)
	kept := attempts[:0]
	for _, at := range attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, origin)
		return nil
	}
	l.failures[origin] = kept
	return kept
}
