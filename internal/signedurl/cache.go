// Package signedurl caches signed read URLs for stored photos.
//
// Concurrent lookups for the same key share one network round trip, entries
// expire a little before the URL itself does, and supplying a new version for
// an object drops every URL cached for its older versions.
package signedurl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"fortunemagnet/internal/logging"
)

const (
	defaultSize        = 1024
	defaultWriteBuffer = 5 * time.Second
	defaultInflightTTL = 30 * time.Second
	defaultTTL         = 5 * time.Minute
)

// Signer mints a signed read URL directly against object storage.
type Signer interface {
	SignPath(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)

func (f SignerFunc) SignPath(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	return f(ctx, bucket, path, ttl)
}

// FortuneSigner mints a signed read URL through the server-side sign-only
// function, keyed by fortune id.
type FortuneSigner interface {
	SignFortune(ctx context.Context, fortuneID string, ttl time.Duration) (string, error)
}

// Request describes one lookup.
type Request struct {
	Bucket string
	Path   string
	TTL    time.Duration
	// Version busts older cached URLs for the same object when it changes,
	// typically the media row's updated_at.
	Version string
	// FortuneID routes the fetch through the FortuneSigner when set.
	FortuneID string
}

type entry struct {
	url       string
	expiresAt time.Time
}

type inflight struct {
	id        uint64
	startedAt time.Time
}

// Cache is a process-local signed URL cache. It is safe for concurrent use.
type Cache struct {
	direct    Signer
	byFortune FortuneSigner

	retryDelays []time.Duration
	writeBuffer time.Duration
	inflightTTL time.Duration
	now         func() time.Time
	log         *logging.Logger
	requests    *prometheus.CounterVec

	mu       sync.Mutex
	entries  *lru.Cache[string, entry]
	inflight map[string]inflight
	seq      uint64
	group    singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithSize bounds the number of cached URLs.
func WithSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.entries, _ = lru.New[string, entry](n)
		}
	}
}

// WithRetryDelays replaces the transient-error retry schedule.
func WithRetryDelays(d ...time.Duration) Option {
	return func(c *Cache) { c.retryDelays = d }
}

// WithClock injects the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger for retry and failure events.
func WithLogger(l *logging.Logger) Option {
	return func(c *Cache) { c.log = l.With("signedurl") }
}

// WithInflightTTL bounds how long an unfinished fetch is shared before a
// new caller starts its own.
func WithInflightTTL(d time.Duration) Option {
	return func(c *Cache) { c.inflightTTL = d }
}

// WithRegisterer registers the cache request counter.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) {
		if reg == nil {
			return
		}
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signed_url_cache_requests_total",
			Help: "Signed URL lookups by outcome (hit, miss, coalesced).",
		}, []string{"result"})
		if err := reg.Register(cv); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				cv = are.ExistingCollector.(*prometheus.CounterVec)
			} else {
				return
			}
		}
		c.requests = cv
	}
}

// New builds a Cache. byFortune may be nil when only direct signing is available.
func New(direct Signer, byFortune FortuneSigner, opts ...Option) *Cache {
	c := &Cache{
		direct:      direct,
		byFortune:   byFortune,
		retryDelays: DefaultRetryDelays,
		writeBuffer: defaultWriteBuffer,
		inflightTTL: defaultInflightTTL,
		now:         time.Now,
		log:         logging.Nop(),
		inflight:    make(map[string]inflight),
	}
	c.entries, _ = lru.New[string, entry](defaultSize)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a signed URL for the request, from cache when fresh.
// An empty URL with a nil error means the backend had nothing to sign.
func (c *Cache) Get(ctx context.Context, req Request) (string, error) {
	p, err := NormalizePath(req.Bucket, req.Path)
	if err != nil {
		return "", err
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	key := cacheKey(req.Bucket, p, req.Version)

	c.mu.Lock()
	if req.Version != "" {
		c.evictLocked(baseKey(req.Bucket, p), key)
	}
	if e, ok := c.entries.Get(key); ok {
		if c.now().Before(e.expiresAt) {
			c.mu.Unlock()
			c.count("hit")
			return e.url, nil
		}
		c.entries.Remove(key)
	}
	fetchCtx := context.WithoutCancel(ctx)
	if f, ok := c.inflight[key]; ok {
		if c.now().Sub(f.startedAt) <= c.inflightTTL {
			ch := c.group.DoChan(key, c.shared(fetchCtx, key, 0, req, p, ttl))
			c.mu.Unlock()
			c.count("coalesced")
			return wait(ctx, ch)
		}
		c.group.Forget(key)
		delete(c.inflight, key)
	}
	c.seq++
	id := c.seq
	c.inflight[key] = inflight{id: id, startedAt: c.now()}
	ch := c.group.DoChan(key, c.shared(fetchCtx, key, id, req, p, ttl))
	c.mu.Unlock()
	c.count("miss")

	return wait(ctx, ch)
}

// shared builds the fetch for registration id. A live singleflight call for
// key always belongs to the current registration: both are created under
// c.mu and dropped together. The result is cached only if the registration
// survived until the fetch returned.
func (c *Cache) shared(fetchCtx context.Context, key string, id uint64, req Request, p string, ttl time.Duration) func() (interface{}, error) {
	return func() (interface{}, error) {
		u, err := c.fetchWithRetry(fetchCtx, req, p, ttl)

		c.mu.Lock()
		defer c.mu.Unlock()
		if f, ok := c.inflight[key]; ok && f.id == id {
			if err == nil && u != "" {
				c.entries.Add(key, entry{url: u, expiresAt: c.now().Add(ttl - c.writeBuffer)})
			}
			delete(c.inflight, key)
			c.group.Forget(key)
		}
		return u, err
	}
}

// wait blocks until the shared fetch finishes or the caller gives up. The
// fetch itself keeps running for the other callers.
func wait(ctx context.Context, ch <-chan singleflight.Result) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) fetchWithRetry(ctx context.Context, req Request, p string, ttl time.Duration) (string, error) {
	attempt := 0
	op := func() (string, error) {
		attempt++
		u, err := c.fetch(ctx, req, p, ttl)
		if err == nil {
			return u, nil
		}
		if !IsTransient(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Log(map[string]any{
			"event":   "signed_url_retry",
			"status":  "retrying",
			"bucket":  req.Bucket,
			"path":    p,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	}
	b := backoff.WithContext(&scheduleBackOff{delays: c.retryDelays}, ctx)
	u, err := backoff.RetryNotifyWithData(op, b, notify)
	if err != nil {
		c.log.Error("signed_url_failed", err, map[string]any{
			"bucket":   req.Bucket,
			"path":     p,
			"attempts": attempt,
		})
		return "", err
	}
	return u, nil
}

func (c *Cache) fetch(ctx context.Context, req Request, p string, ttl time.Duration) (string, error) {
	if req.FortuneID != "" && c.byFortune != nil {
		return c.byFortune.SignFortune(ctx, req.FortuneID, ttl)
	}
	if c.direct == nil {
		return "", fmt.Errorf("no signer configured for %s", baseKey(req.Bucket, p))
	}
	return c.direct.SignPath(ctx, req.Bucket, p, ttl)
}

// ClearAll drops every cached URL and detaches in-flight fetches.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	for key := range c.inflight {
		c.group.Forget(key)
	}
	c.inflight = make(map[string]inflight)
}

// ClearFor drops cached and in-flight entries for an object, all versions included.
func (c *Cache) ClearFor(bucket, rawPath string) {
	p, err := NormalizePath(bucket, rawPath)
	if err != nil {
		return
	}
	base := baseKey(bucket, p)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(base, "")
	for key := range c.inflight {
		if matchesBase(key, base) {
			c.group.Forget(key)
			delete(c.inflight, key)
		}
	}
}

// Len reports the number of cached URLs, fresh or not.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// evictLocked removes cached entries for base except keep.
func (c *Cache) evictLocked(base, keep string) {
	for _, key := range c.entries.Keys() {
		if key != keep && matchesBase(key, base) {
			c.entries.Remove(key)
		}
	}
}

func (c *Cache) count(result string) {
	if c.requests != nil {
		c.requests.WithLabelValues(result).Inc()
	}
}
