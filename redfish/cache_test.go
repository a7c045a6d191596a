package redfish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stmcginnis/gofish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnreachable = errors.New("connection refused")

// fakeDiscovery counts discovery calls and returns a new session on success.
type fakeDiscovery struct {
	calls   atomic.Int32
	delay   time.Duration
	failFor int32
}

func (f *fakeDiscovery) discover(_ context.Context) (*gofish.APIClient, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if n <= f.failFor {
		return nil, errUnreachable
	}
	return &gofish.APIClient{}, nil
}

type fakeClock struct {
	mtx sync.Mutex
	t   time.Time
}

func (c *fakeClock) now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mtx.Lock()
	c.t = c.t.Add(d)
	c.mtx.Unlock()
}

func newTestCache(discover DiscoverFunc, opts CacheOpts) (*DiscoveryCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewDiscoveryCache(discover, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = clock.now
	return c, clock
}

func TestSessionReusedWithinTTL(t *testing.T) {
	f := &fakeDiscovery{}
	c, clock := newTestCache(f.discover, CacheOpts{Timeout: time.Second, MaxRetry: 1, TTL: time.Hour})

	first, err := c.Session(context.Background())
	require.NoError(t, err)
	clock.advance(59 * time.Minute)
	second, err := c.Session(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, f.calls.Load())
	assert.Same(t, first, c.live())
}

func TestSessionRediscoveredAfterTTL(t *testing.T) {
	f := &fakeDiscovery{}
	c, clock := newTestCache(f.discover, CacheOpts{Timeout: time.Second, MaxRetry: 1, TTL: time.Hour})

	first, err := c.Session(context.Background())
	require.NoError(t, err)
	// An entry is dead once now >= expiresAt.
	clock.advance(time.Hour)
	assert.Nil(t, c.live())

	second, err := c.Session(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestZeroTTLAlwaysRediscovers(t *testing.T) {
	f := &fakeDiscovery{}
	c, _ := newTestCache(f.discover, CacheOpts{Timeout: time.Second, TTL: 0})

	for i := 0; i < 3; i++ {
		_, err := c.Session(context.Background())
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, f.calls.Load())
}

func TestRetryBound(t *testing.T) {
	for _, maxRetry := range []int{0, 1, 3} {
		f := &fakeDiscovery{failFor: 1 << 30}
		timeout := 50 * time.Millisecond
		c, _ := newTestCache(f.discover, CacheOpts{Timeout: timeout, MaxRetry: maxRetry, TTL: time.Hour})

		start := time.Now()
		client, err := c.Session(context.Background())
		elapsed := time.Since(start)

		require.ErrorIs(t, err, ErrDiscoveryExhausted)
		require.ErrorIs(t, err, errUnreachable)
		assert.Nil(t, client)
		assert.EqualValues(t, maxRetry+1, f.calls.Load(), "max retry %d", maxRetry)
		assert.Equal(t, float64(maxRetry+1), testutil.ToFloat64(c.attempts))
		assert.Equal(t, float64(1), testutil.ToFloat64(c.failures))
		assert.LessOrEqual(t, elapsed, time.Duration(maxRetry+1)*timeout+100*time.Millisecond)
	}
}

func TestSlowDiscoveryIsAbandonedAtTimeout(t *testing.T) {
	// The backend ignores its context and hangs far longer than the timeout.
	f := &fakeDiscovery{delay: 2 * time.Second, failFor: 1 << 30}
	timeout := 30 * time.Millisecond
	c, _ := newTestCache(f.discover, CacheOpts{Timeout: timeout, MaxRetry: 1, TTL: time.Hour})

	start := time.Now()
	_, err := c.Session(context.Background())
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrDiscoveryExhausted)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 2*timeout+200*time.Millisecond)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	f := &fakeDiscovery{failFor: 1}
	c, _ := newTestCache(f.discover, CacheOpts{Timeout: time.Second, MaxRetry: 1, TTL: time.Hour})

	client, err := c.Session(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.EqualValues(t, 2, f.calls.Load())
	assert.Equal(t, float64(0), testutil.ToFloat64(c.failures))
}

func TestFailedRediscoveryDiscardsStaleEntry(t *testing.T) {
	var fail atomic.Bool
	calls := 0
	discover := func(context.Context) (*gofish.APIClient, error) {
		calls++
		if fail.Load() {
			return nil, errUnreachable
		}
		return &gofish.APIClient{}, nil
	}
	c, clock := newTestCache(discover, CacheOpts{Timeout: time.Second, MaxRetry: 0, TTL: time.Minute})

	_, err := c.Session(context.Background())
	require.NoError(t, err)

	clock.advance(2 * time.Minute)
	fail.Store(true)
	_, err = c.Session(context.Background())
	require.ErrorIs(t, err, ErrDiscoveryExhausted)
	c.mtx.Lock()
	assert.Nil(t, c.entry)
	c.mtx.Unlock()

	// The backend recovers: the next scrape discovers again.
	fail.Store(false)
	client, err := c.Session(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.Equal(t, 3, calls)
}

func TestConcurrentSessionsShareOneDiscovery(t *testing.T) {
	f := &fakeDiscovery{delay: 50 * time.Millisecond}
	c, _ := newTestCache(f.discover, CacheOpts{Timeout: time.Second, MaxRetry: 1, TTL: time.Hour})

	const callers = 20
	clients := make([]*gofish.APIClient, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := c.Session(context.Background())
			assert.NoError(t, err)
			clients[i] = client
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.calls.Load())
	for _, client := range clients {
		assert.Same(t, clients[0], client)
	}
}

func TestAbandonedCallerDoesNotCorruptCache(t *testing.T) {
	f := &fakeDiscovery{delay: 100 * time.Millisecond}
	c, _ := newTestCache(f.discover, CacheOpts{Timeout: time.Second, MaxRetry: 0, TTL: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Session(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The discovery finishes on its own and stores a complete entry.
	require.Eventually(t, func() bool { return c.live() != nil }, time.Second, 5*time.Millisecond)
	client, err := c.Session(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestInvalidate(t *testing.T) {
	f := &fakeDiscovery{}
	c, _ := newTestCache(f.discover, CacheOpts{Timeout: time.Second, TTL: time.Hour})

	first, err := c.Session(context.Background())
	require.NoError(t, err)

	// A session that is no longer cached is ignored.
	c.Invalidate(&gofish.APIClient{})
	assert.Same(t, first, c.live())

	c.Invalidate(first)
	assert.Nil(t, c.live())

	second, err := c.Session(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestNilSessionIsAFailure(t *testing.T) {
	discover := func(context.Context) (*gofish.APIClient, error) { return nil, nil }
	c, _ := newTestCache(discover, CacheOpts{Timeout: time.Second, TTL: time.Hour})

	_, err := c.Session(context.Background())
	assert.ErrorIs(t, err, ErrDiscoveryExhausted)
}
