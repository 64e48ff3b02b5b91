package ratelimit_test

import (
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/authgate/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCheck_BlocksAfterMaxAttempts(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.New(ratelimit.WithClock(clock.Now))
	policy := ratelimit.Policy{MaxAttempts: 5, Window: time.Minute, BlockDuration: time.Minute}

	for i := range 5 {
		d := l.Check("client", policy)
		require.True(t, d.Allowed, "request %d should be allowed", i+1)
		require.Equal(t, 4-i, d.Remaining)
		clock.Advance(time.Second)
	}

	d := l.Check("client", policy)
	require.False(t, d.Allowed, "6th request in the window must be rejected")
	require.True(t, d.Blocked)
	require.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)

	// Still blocked, and blocked requests don't extend the block
	clock.Advance(30 * time.Second)
	d = l.Check("client", policy)
	require.False(t, d.Allowed)
	require.True(t, d.Blocked)
	require.Equal(t, clock.Now().Add(30*time.Second), d.ResetAt)

	// Block served, fresh window
	clock.Advance(30 * time.Second)
	d = l.Check("client", policy)
	require.True(t, d.Allowed)
	require.Equal(t, 4, d.Remaining)
}

func TestCheck_ThrottleWithoutBlock(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.New(ratelimit.WithClock(clock.Now))
	policy := ratelimit.Policy{MaxAttempts: 2, Window: time.Minute}
	start := clock.Now()

	require.True(t, l.Check("k", policy).Allowed)
	require.True(t, l.Check("k", policy).Allowed)

	d := l.Check("k", policy)
	require.False(t, d.Allowed)
	require.False(t, d.Blocked, "no block duration means plain throttling")
	require.Equal(t, start.Add(time.Minute), d.ResetAt)

	clock.Advance(time.Minute)
	require.True(t, l.Check("k", policy).Allowed, "new window after the old one ends")
}

func TestCheck_WindowRollsOver(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.New(ratelimit.WithClock(clock.Now))
	policy := ratelimit.Policy{MaxAttempts: 3, Window: time.Minute, BlockDuration: time.Hour}

	for range 3 {
		require.True(t, l.Check("k", policy).Allowed)
	}

	// Window expired before the limit was exceeded: no block
	clock.Advance(61 * time.Second)
	d := l.Check("k", policy)
	require.True(t, d.Allowed)
	require.Equal(t, 2, d.Remaining)
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	l := ratelimit.New()
	policy := ratelimit.Policy{MaxAttempts: 1, Window: time.Minute, BlockDuration: time.Minute}

	require.True(t, l.Check("a", policy).Allowed)
	require.False(t, l.Check("a", policy).Allowed)
	require.True(t, l.Check("b", policy).Allowed)
}

func TestRecordSuccess_ClearsWindow(t *testing.T) {
	l := ratelimit.New()
	policy := ratelimit.Policy{MaxAttempts: 2, Window: time.Minute, BlockDuration: time.Minute}

	l.Check("k", policy)
	l.Check("k", policy)
	l.RecordSuccess("k")

	d := l.Check("k", policy)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Remaining)
}

func TestSweep_EvictsExpiredWindows(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.New(ratelimit.WithClock(clock.Now), ratelimit.WithSweepInterval(0))
	policy := ratelimit.Policy{MaxAttempts: 1, Window: time.Minute, BlockDuration: 10 * time.Minute}

	l.Check("short", ratelimit.Policy{MaxAttempts: 1, Window: time.Minute})
	l.Check("blocked", policy)
	l.Check("blocked", policy)
	require.Equal(t, 2, l.Len())

	// Window over for both, but "blocked" is still serving its block
	clock.Advance(2 * time.Minute)
	require.Equal(t, 1, l.Sweep())
	require.Equal(t, 1, l.Len())

	clock.Advance(10 * time.Minute)
	require.Equal(t, 1, l.Sweep())
	require.Zero(t, l.Len())
}

func TestCheck_OpportunisticSweep(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.New(ratelimit.WithClock(clock.Now), ratelimit.WithSweepInterval(5*time.Minute))
	policy := ratelimit.Policy{MaxAttempts: 5, Window: time.Minute}

	l.Check("old", policy)
	clock.Advance(6 * time.Minute)
	l.Check("new", policy)

	require.Equal(t, 1, l.Len(), "stale key should be evicted on the next check")
}

func TestCheck_ConcurrentCallersShareTheLimit(t *testing.T) {
	l := ratelimit.New()
	policy := ratelimit.Policy{MaxAttempts: 50, Window: time.Hour, BlockDuration: time.Hour}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("shared", policy).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 50, allowed)
}

func TestDecisionRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.Equal(t, 90*time.Second, ratelimit.Decision{ResetAt: now.Add(89500 * time.Millisecond)}.RetryAfter(now))
	require.Equal(t, time.Second, ratelimit.Decision{ResetAt: now}.RetryAfter(now))
	require.Equal(t, time.Second, ratelimit.Decision{ResetAt: now.Add(-time.Minute)}.RetryAfter(now))
}

func TestPolicyFromEnv(t *testing.T) {
	t.Setenv("RATELIMIT_TEST_MAX", "3")
	t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "30")
	t.Setenv("RATELIMIT_TEST_BLOCK_SEC", "0")

	p := ratelimit.PolicyFromEnv("TEST", ratelimit.LoginPolicy)
	require.Equal(t, ratelimit.Policy{MaxAttempts: 3, Window: 30 * time.Second}, p)

	t.Setenv("RATELIMIT_BAD_MAX", "nope")
	t.Setenv("RATELIMIT_BAD_WINDOW_SEC", "-5")
	require.Equal(t, ratelimit.LoginPolicy, ratelimit.PolicyFromEnv("BAD", ratelimit.LoginPolicy))
}
