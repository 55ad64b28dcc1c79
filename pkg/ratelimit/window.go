package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// DefaultWindow is the length of one fixed rate limiting window
const DefaultWindow = time.Minute

// ErrRateLimited signals that a key has no budget left in its current window
var ErrRateLimited = errors.New("rate limit exceeded")

// Quota is the static budget of one key
type Quota struct {
	RequestsPerMinute int
	// BurstLimit is informational for the window counter; the Pacer enforces it.
	BurstLimit int
}

// State is a snapshot of one key's window
type State struct {
	Quota         Quota
	Count         int
	WindowResetAt time.Time
}

// Remaining returns how many requests are left in the window
func (s State) Remaining() int {
	if s.Quota.RequestsPerMinute <= 0 {
		return -1
	}
	left := s.Quota.RequestsPerMinute - s.Count
	if left < 0 {
		return 0
	}
	return left
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter is an in-memory fixed-window counter keyed by name (one key per platform).
// Windows are created lazily on first use and are never persisted.
type Limiter struct {
	quotas  map[string]Quota
	windows map[string]*window
	size    time.Duration
	now     func() time.Time
	mu      sync.Mutex
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithWindow overrides the window length
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.size = d
		}
	}
}

// NewLimiter creates a fixed-window limiter for the given quotas.
// Keys without a quota are never limited.
func NewLimiter(quotas map[string]Quota, opts ...Option) *Limiter {
	l := &Limiter{
		quotas:  make(map[string]Quota, len(quotas)),
		windows: make(map[string]*window),
		size:    DefaultWindow,
		now:     time.Now,
	}
	for name, q := range quotas {
		l.quotas[name] = q
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetQuota replaces the quota for a key; the current window count is kept
func (l *Limiter) SetQuota(name string, q Quota) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.quotas[name] = q
}

// current returns the live window for name, starting a fresh one when the
// previous one has expired. Caller must hold l.mu.
func (l *Limiter) current(name string, now time.Time) *window {
	w, ok := l.windows[name]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.size)}
		l.windows[name] = w
	}
	return w
}

// TryConsume takes one request from the key's budget. It returns false,
// leaving the count untouched, when the window is exhausted.
func (l *Limiter) TryConsume(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, ok := l.quotas[name]
	if !ok || q.RequestsPerMinute <= 0 {
		return true
	}

	w := l.current(name, l.now())
	if w.count >= q.RequestsPerMinute {
		return false
	}
	w.count++
	return true
}

// Allow reports whether the key has budget left without consuming it
func (l *Limiter) Allow(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	q, ok := l.quotas[name]
	if !ok || q.RequestsPerMinute <= 0 {
		return true
	}
	w, ok := l.windows[name]
	if !ok || !l.now().Before(w.resetAt) {
		return true
	}
	return w.count < q.RequestsPerMinute
}

// WindowRemaining returns the time until the key's current window resets.
// It is zero when no window is open.
func (l *Limiter) WindowRemaining(name string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[name]
	if !ok {
		return 0
	}
	d := w.resetAt.Sub(l.now())
	if d < 0 {
		return 0
	}
	return d
}

// Snapshot returns the state of a key's window
func (l *Limiter) Snapshot(name string) State {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := State{Quota: l.quotas[name]}
	if w, ok := l.windows[name]; ok && l.now().Before(w.resetAt) {
		st.Count = w.count
		st.WindowResetAt = w.resetAt
	}
	return st
}
