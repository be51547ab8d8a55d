package signedurl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fortunemagnet/internal/storage"
)

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) SignPath(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, bucket, path, ttl)
	return args.String(0), args.Error(1)
}

type mockFortuneSigner struct {
	mock.Mock
}

func (m *mockFortuneSigner) SignFortune(ctx context.Context, fortuneID string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, fortuneID, ttl)
	return args.String(0), args.Error(1)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCache_ServesFromCacheWithinTTL(t *testing.T) {
	signer := new(mockSigner)
	clock := newClock()
	c := New(signer, nil, WithClock(clock.Now))
	ctx := context.Background()

	signer.On("SignPath", mock.Anything, "photos", "u1/f1.jpg", 300*time.Second).
		Return("https://s/u1/f1.jpg?sig=1", nil).Once()

	req := Request{Bucket: "photos", Path: "u1/f1.jpg", TTL: 300 * time.Second, Version: "v1"}
	u1, err := c.Get(ctx, req)
	require.NoError(t, err)

	clock.Advance(294 * time.Second)
	u2, err := c.Get(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, u1, u2)
	signer.AssertNumberOfCalls(t, "SignPath", 1)
}

func TestCache_RefetchesAfterSafetyBuffer(t *testing.T) {
	signer := new(mockSigner)
	clock := newClock()
	c := New(signer, nil, WithClock(clock.Now))
	ctx := context.Background()

	signer.On("SignPath", mock.Anything, "photos", "u1/f1.jpg", 60*time.Second).
		Return("https://s/u1/f1.jpg?sig=1", nil).Twice()

	req := Request{Bucket: "photos", Path: "u1/f1.jpg", TTL: time.Minute}
	_, err := c.Get(ctx, req)
	require.NoError(t, err)

	// 5s before real expiry the entry is already stale.
	clock.Advance(55 * time.Second)
	_, err = c.Get(ctx, req)
	require.NoError(t, err)

	signer.AssertNumberOfCalls(t, "SignPath", 2)
}

func TestCache_CoalescesConcurrentFetches(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	signer := SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "https://s/" + path, nil
	})
	c := New(signer, nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := c.Get(context.Background(), Request{Bucket: "photos", Path: "u1/f1.jpg", TTL: time.Minute, Version: "v1"})
			assert.NoError(t, err)
			results[i] = u
		}(i)
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, u := range results {
		assert.Equal(t, "https://s/u1/f1.jpg", u)
	}
}

func TestCache_NewVersionBustsOldEntries(t *testing.T) {
	signer := new(mockSigner)
	c := New(signer, nil)
	ctx := context.Background()

	signer.On("SignPath", mock.Anything, "photos", "u1/f1.jpg", mock.Anything).
		Return("https://s/old", nil).Once()
	signer.On("SignPath", mock.Anything, "photos", "u1/f1.jpg", mock.Anything).
		Return("https://s/new", nil).Once()

	u, err := c.Get(ctx, Request{Bucket: "photos", Path: "u1/f1.jpg", Version: "2026-01-01"})
	require.NoError(t, err)
	assert.Equal(t, "https://s/old", u)
	assert.Equal(t, 1, c.Len())

	u, err = c.Get(ctx, Request{Bucket: "photos", Path: "u1/f1.jpg", Version: "2026-01-02"})
	require.NoError(t, err)
	assert.Equal(t, "https://s/new", u)

	// Only the new version survives.
	assert.Equal(t, 1, c.Len())
	signer.AssertNumberOfCalls(t, "SignPath", 2)
}

func TestCache_RetriesTransientNotFound(t *testing.T) {
	signer := new(mockSigner)
	c := New(signer, nil)

	signer.On("SignPath", mock.Anything, "photos", "u1/f1.jpg", mock.Anything).
		Return("", errors.New("Object not found")).Twice()
	signer.On("SignPath", mock.Anything, "photos", "u1/f1.jpg", mock.Anything).
		Return("https://s/ok", nil).Once()

	start := time.Now()
	u, err := c.Get(context.Background(), Request{Bucket: "photos", Path: "u1/f1.jpg"})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "https://s/ok", u)
	assert.GreaterOrEqual(t, elapsed, 850*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
	signer.AssertNumberOfCalls(t, "SignPath", 3)
}

func TestCache_GivesUpAfterRetries(t *testing.T) {
	signer := new(mockSigner)
	c := New(signer, nil, WithRetryDelays(time.Millisecond, time.Millisecond))

	signer.On("SignPath", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", storage.ErrObjectNotFound)

	_, err := c.Get(context.Background(), Request{Bucket: "photos", Path: "u1/f1.jpg"})
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	signer.AssertNumberOfCalls(t, "SignPath", 3)
	assert.Equal(t, 0, c.Len())
}

func TestCache_NonTransientErrorIsNotRetried(t *testing.T) {
	signer := new(mockSigner)
	c := New(signer, nil)

	signer.On("SignPath", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("access denied"))

	start := time.Now()
	_, err := c.Get(context.Background(), Request{Bucket: "photos", Path: "u1/f1.jpg"})
	assert.EqualError(t, err, "access denied")
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	signer.AssertNumberOfCalls(t, "SignPath", 1)
}

func TestCache_StripsBucketPrefix(t *testing.T) {
	signer := new(mockSigner)
	c := New(signer, nil)

	signer.On("SignPath", mock.Anything, "photos", "u1/f1.jpg", 300*time.Second).
		Return("https://s/u1/f1.jpg", nil).Once()

	u, err := c.Get(context.Background(), Request{Bucket: "photos", Path: "/photos/u1/f1.jpg", TTL: 300 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "https://s/u1/f1.jpg", u)
	signer.AssertExpectations(t)
}

func TestCache_InvalidPath(t *testing.T) {
	signer := new(mockSigner)
	c := New(signer, nil)

	_, err := c.Get(context.Background(), Request{Bucket: "photos", Path: "not-a-key"})
	assert.ErrorIs(t, err, ErrInvalidPath)
	signer.AssertNotCalled(t, "SignPath", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCache_FortuneSignerWhenFortuneIDGiven(t *testing.T) {
	direct := new(mockSigner)
	byFortune := new(mockFortuneSigner)
	c := New(direct, byFortune)

	byFortune.On("SignFortune", mock.Anything, "f1", 300*time.Second).Return("https://fn/f1", nil).Once()

	u, err := c.Get(context.Background(), Request{Bucket: "photos", Path: "u1/f1.jpg", TTL: 300 * time.Second, FortuneID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, "https://fn/f1", u)
	direct.AssertNotCalled(t, "SignPath", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCache_EmptyURLIsNotCached(t *testing.T) {
	byFortune := new(mockFortuneSigner)
	c := New(nil, byFortune)

	byFortune.On("SignFortune", mock.Anything, "f1", mock.Anything).Return("", nil).Twice()

	req := Request{Bucket: "photos", Path: "u1/f1.jpg", FortuneID: "f1"}
	for i := 0; i < 2; i++ {
		u, err := c.Get(context.Background(), req)
		require.NoError(t, err)
		assert.Empty(t, u)
	}
	byFortune.AssertNumberOfCalls(t, "SignFortune", 2)
}

func TestCache_ClearForAndClearAll(t *testing.T) {
	var calls int32
	signer := SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		return fmt.Sprintf("https://s/%s?n=%d", path, n), nil
	})
	c := New(signer, nil)
	ctx := context.Background()

	_, _ = c.Get(ctx, Request{Bucket: "photos", Path: "u1/a.jpg", Version: "v1"})
	_, _ = c.Get(ctx, Request{Bucket: "photos", Path: "u1/a.jpg"})
	_, _ = c.Get(ctx, Request{Bucket: "photos", Path: "u1/b.jpg"})
	require.Equal(t, 3, c.Len())

	c.ClearFor("photos", "photos/u1/a.jpg")
	assert.Equal(t, 1, c.Len())

	_, _ = c.Get(ctx, Request{Bucket: "photos", Path: "u1/b.jpg"})
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	c.ClearAll()
	assert.Equal(t, 0, c.Len())
	_, _ = c.Get(ctx, Request{Bucket: "photos", Path: "u1/b.jpg"})
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestCache_StaleInflightIsReplaced(t *testing.T) {
	clock := newClock()
	block := make(chan struct{})
	defer close(block)

	var calls int32
	signer := SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-block
		}
		return "https://s/fresh", nil
	})
	c := New(signer, nil, WithClock(clock.Now))

	stuckCtx, cancel := context.WithCancel(context.Background())
	go func() { _, _ = c.Get(stuckCtx, Request{Bucket: "photos", Path: "u1/f1.jpg"}) }()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	clock.Advance(31 * time.Second)
	u, err := c.Get(context.Background(), Request{Bucket: "photos", Path: "u1/f1.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "https://s/fresh", u)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCache_CallerContextCancel(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	signer := SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		<-block
		return "https://s/x", nil
	})
	c := New(signer, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, Request{Bucket: "photos", Path: "u1/f1.jpg"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCache_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	signer := SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		return "https://s/x", nil
	})
	c := New(signer, nil, WithRegisterer(reg))

	req := Request{Bucket: "photos", Path: "u1/f1.jpg"}
	_, _ = c.Get(context.Background(), req)
	_, _ = c.Get(context.Background(), req)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.requests.WithLabelValues("miss")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.requests.WithLabelValues("hit")))

	// Registering twice on the same registry reuses the collector.
	c2 := New(signer, nil, WithRegisterer(reg))
	assert.Same(t, c.requests, c2.requests)
}

func TestCache_ClearForLeavesOtherInflightFetches(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	signer := SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		atomic.AddInt32(&calls, 1)
		if path == "u1/a.jpg" {
			<-release
		}
		return "https://s/" + path, nil
	})
	c := New(signer, nil)
	ctx := context.Background()

	done := make(chan string)
	go func() {
		u, _ := c.Get(ctx, Request{Bucket: "photos", Path: "u1/a.jpg"})
		done <- u
	}()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	c.ClearFor("photos", "u2/b.jpg")
	close(release)
	assert.Equal(t, "https://s/u1/a.jpg", <-done)

	assert.Equal(t, 1, c.Len())
	_, err := c.Get(ctx, Request{Bucket: "photos", Path: "u1/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCache_ClearForDropsMatchingInflightFetch(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	signer := SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-release
		}
		return "https://s/" + path, nil
	})
	c := New(signer, nil)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		_, _ = c.Get(ctx, Request{Bucket: "photos", Path: "u1/a.jpg", Version: "v1"})
		close(done)
	}()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)

	c.ClearFor("photos", "u1/a.jpg")
	close(release)
	<-done

	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentCallersReleaseRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	release := make(chan struct{})
	var calls int32
	signer := SignerFunc(func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "https://s/" + path, nil
	})
	c := New(signer, nil, WithRegisterer(reg))
	req := Request{Bucket: "photos", Path: "u1/f1.jpg", Version: "v1"}

	const callers = 6
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), req)
			assert.NoError(t, err)
		}()
	}
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	c.mu.Lock()
	pending := len(c.inflight)
	c.mu.Unlock()
	assert.Zero(t, pending)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.requests.WithLabelValues("miss")))

	// A later version is a plain miss, not a join on a leftover registration.
	_, err := c.Get(context.Background(), Request{Bucket: "photos", Path: "u1/f1.jpg", Version: "v2"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(c.requests.WithLabelValues("miss")))
}
