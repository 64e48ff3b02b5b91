// Package ratelimit implements a per-key fixed window counter with an
// optional block period, used to slow down credential guessing before any
// account state is touched.
//
// State lives in process memory only. Several instances behind a load
// balancer each enforce their own limit.
package ratelimit

import (
	"math"
	"os"
	"strconv"
	"sync"
	"time"
)

// Policy defines one rate limiting rule.
type Policy struct {
	// MaxAttempts is the number of requests allowed per window
	MaxAttempts int
	// Window is the fixed window length, starting at the first request
	Window time.Duration
	// BlockDuration rejects every request for this long once the window is
	// exhausted. Zero means plain throttling until the window ends.
	BlockDuration time.Duration
}

// LoginPolicy guards credential endpoints. It is deliberately looser than the
// per-account lockout threshold so the lockout stays observable to clients.
// Override with: RATELIMIT_LOGIN_MAX, RATELIMIT_LOGIN_WINDOW_SEC, RATELIMIT_LOGIN_BLOCK_SEC
var LoginPolicy = Policy{
	MaxAttempts:   10,
	Window:        15 * time.Minute,
	BlockDuration: 15 * time.Minute,
}

// PolicyFromEnv reads overrides following RATELIMIT_{prefix}_{field}.
// Invalid or non-positive values keep the default.
func PolicyFromEnv(prefix string, def Policy) Policy {
	p := def

	if val := os.Getenv("RATELIMIT_" + prefix + "_MAX"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			p.MaxAttempts = n
		}
	}
	if val := os.Getenv("RATELIMIT_" + prefix + "_WINDOW_SEC"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			p.Window = time.Duration(n) * time.Second
		}
	}
	// Zero is meaningful here (throttle only)
	if val := os.Getenv("RATELIMIT_" + prefix + "_BLOCK_SEC"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			p.BlockDuration = time.Duration(n) * time.Second
		}
	}

	return p
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed bool
	// Blocked distinguishes a block period from plain throttling
	Blocked bool
	// ResetAt is when the caller may expect to be allowed again
	ResetAt time.Time
	// Remaining requests in the current window when allowed
	Remaining int
}

// RetryAfter is the wait until ResetAt rounded up to whole seconds, never
// less than one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	secs := math.Ceil(d.ResetAt.Sub(now).Seconds())
	return time.Duration(max(secs, 1)) * time.Second
}

type window struct {
	count        int
	start        time.Time
	end          time.Time
	blockedUntil time.Time
}

// expired reports whether nothing about this window matters any more.
func (w *window) expired(now time.Time) bool {
	return !now.Before(w.end) && !now.Before(w.blockedUntil)
}

const defaultSweepInterval = 5 * time.Minute

// Limiter tracks windows keyed by an opaque client fingerprint. A key should
// always be checked against the same Policy.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	sweepInterval time.Duration
	lastSweep     time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSweepInterval sets how often Check opportunistically evicts expired
// windows.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepInterval = d }
}

func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows:       make(map[string]*window),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.now()
	return l
}

// Check counts one request for key and decides whether it may proceed.
// Increment and comparison happen under one lock, so concurrent requests
// for the same key can never both take the last slot.
func (l *Limiter) Check(key string, p Policy) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.maybeSweep(now)

	w := l.windows[key]
	if w != nil && !w.blockedUntil.IsZero() {
		if now.Before(w.blockedUntil) {
			return Decision{Blocked: true, ResetAt: w.blockedUntil}
		}
		// Block served, start over
		w = nil
	}

	if w == nil || !now.Before(w.end) {
		w = &window{start: now, end: now.Add(p.Window)}
		l.windows[key] = w
	}

	w.count++
	if w.count > p.MaxAttempts {
		if p.BlockDuration > 0 {
			w.blockedUntil = now.Add(p.BlockDuration)
			return Decision{Blocked: true, ResetAt: w.blockedUntil}
		}
		return Decision{ResetAt: w.end}
	}

	return Decision{
		Allowed:   true,
		ResetAt:   w.end,
		Remaining: p.MaxAttempts - w.count,
	}
}

// RecordSuccess forgets everything about key. Called after a successful
// login so a legitimate user does not carry earlier typos forward.
func (l *Limiter) RecordSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, key)
}

// Sweep evicts every window whose period and block have both passed and
// returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.lastSweep = now
	return l.sweep(now)
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.windows)
}

func (l *Limiter) maybeSweep(now time.Time) {
	if l.sweepInterval <= 0 || now.Sub(l.lastSweep) < l.sweepInterval {
		return
	}
	l.lastSweep = now
	l.sweep(now)
}

func (l *Limiter) sweep(now time.Time) int {
	removed := 0
	for key, w := range l.windows {
		if w.expired(now) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
