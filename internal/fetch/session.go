package fetch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// ClientConfig holds the process-wide fetch settings.
type ClientConfig struct {
	Concurrency       int
	SlowHostSkip      bool
	SlowHostThreshold time.Duration
	// FailureThreshold consecutive connection failures put a host on hold.
	FailureThreshold int
	FailureCooldown  time.Duration
	// SessionTTL bounds how long a record's cache may live.
	SessionTTL time.Duration
}

// Client owns the state shared by every record in the process: the
// underlying fetcher, the slow-host list and per-host failure breakers.
type Client struct {
	fetcher  Fetcher
	cfg      ClientConfig
	slow     *SlowHosts
	breakers *resilience.HostBreakers
}

// NewClient wraps fetcher with run-wide host tracking.
func NewClient(fetcher Fetcher, cfg ClientConfig) *Client {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	return &Client{
		fetcher: fetcher,
		cfg:     cfg,
		slow:    NewSlowHosts(),
		breakers: resilience.NewHostBreakers(resilience.BreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			Cooldown:         cfg.FailureCooldown,
			ShouldTrip:       connectionFailure,
			OnOpen: func(host string, failures int) {
				zap.L().Info("fetch: host on hold after repeated failures",
					zap.String("host", host), zap.Int("failures", failures))
			},
		}),
	}
}

// SlowHosts returns the run-wide slow-host list.
func (c *Client) SlowHosts() *SlowHosts { return c.slow }

// NewSession starts a record-scoped session. The cache runs without a
// janitor goroutine; expired entries are skipped on read and dropped on Close.
func (c *Client) NewSession() *Session {
	return &Session{
		client: c,
		cache:  gocache.New(c.cfg.SessionTTL, 0),
		sem:    make(chan struct{}, c.cfg.Concurrency),
	}
}

// connectionFailure counts timeouts and transport errors, not HTTP statuses.
func connectionFailure(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return err != nil
	}
	return fe.Kind == ErrTimeout || (fe.Kind == ErrNetwork && fe.Status == 0)
}

// SlowHosts is a concurrency-safe set of hosts that exceeded the slow threshold.
type SlowHosts struct {
	mu    sync.RWMutex
	hosts map[string]time.Duration
}

// NewSlowHosts creates an empty list.
func NewSlowHosts() *SlowHosts {
	return &SlowHosts{hosts: make(map[string]time.Duration)}
}

// Add records host with the latency that tripped it.
func (s *SlowHosts) Add(host string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[host]; !ok {
		s.hosts[host] = elapsed
	}
}

// Contains reports whether host is on the list.
func (s *SlowHosts) Contains(host string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hosts[host]
	return ok
}

// List returns the hosts sorted by name.
func (s *SlowHosts) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.hosts))
	for h := range s.hosts {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

type entry struct {
	page *model.Page
	err  error
}

// Session caches and deduplicates fetches for one record. Concurrent callers
// for the same normalized URL share one in-flight fetch.
type Session struct {
	client  *Client
	cache   *gocache.Cache
	group   singleflight.Group
	sem     chan struct{}
	fetches atomic.Int64
}

// Fetch returns the page for rawURL, from the session cache when possible.
// A cached page without a screenshot is refetched when one is requested.
func (s *Session) Fetch(ctx context.Context, rawURL string, opts Options) (*model.Page, error) {
	key, err := URLKey(rawURL)
	if err != nil {
		return nil, err
	}
	if e, ok := s.lookup(key, opts); ok {
		return e.page, e.err
	}

	host := HostKey(rawURL)
	if s.client.cfg.SlowHostSkip && s.client.slow.Contains(host) {
		return nil, newError(ErrSlowHost, rawURL, 0, nil)
	}
	if err := s.client.breakers.Allow(host); err != nil {
		return nil, newError(ErrNetwork, rawURL, 0, err)
	}

	flight := key
	if opts.WantScreenshot {
		flight += "#screenshot"
	}
	v, _, _ := s.group.Do(flight, func() (any, error) {
		return s.fetch(ctx, rawURL, key, host, opts), nil
	})
	e := v.(entry)
	return e.page, e.err
}

func (s *Session) lookup(key string, opts Options) (entry, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return entry{}, false
	}
	e := v.(entry)
	if opts.WantScreenshot && !e.page.HasScreenshot() {
		return entry{}, false
	}
	return e, true
}

func (s *Session) fetch(ctx context.Context, rawURL, key, host string, opts Options) entry {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return entry{err: classify(rawURL, ctx.Err())}
	}
	defer func() { <-s.sem }()

	start := time.Now()
	page, err := s.client.fetcher.Fetch(ctx, rawURL, opts)
	elapsed := time.Since(start)
	s.fetches.Add(1)
	s.client.breakers.Record(host, err)

	cfg := s.client.cfg
	if cfg.SlowHostThreshold > 0 && (elapsed > cfg.SlowHostThreshold || errors.Is(err, ErrTimeout)) {
		if !s.client.slow.Contains(host) {
			zap.L().Info("fetch: slow host",
				zap.String("host", host), zap.Duration("elapsed", elapsed))
		}
		s.client.slow.Add(host, elapsed)
	}

	e := entry{page: page, err: err}
	if err != nil && ctx.Err() != nil {
		// Cancellation says nothing about the URL; do not cache it.
		return e
	}
	if err != nil && opts.WantScreenshot {
		// Keep a usable HTTP result rather than overwriting it with a browser failure.
		if prev, ok := s.cache.Get(key); ok && prev.(entry).err == nil {
			return e
		}
	}
	s.cache.SetDefault(key, e)
	return e
}

// Cached returns the cached page for rawURL without fetching.
func (s *Session) Cached(rawURL string) *model.Page {
	key, err := URLKey(rawURL)
	if err != nil {
		return nil
	}
	if v, ok := s.cache.Get(key); ok {
		return v.(entry).page
	}
	return nil
}

// FetchAll fetches urls with bounded concurrency. The result is aligned with
// urls; failed fetches leave a nil entry.
func (s *Session) FetchAll(ctx context.Context, urls []string, opts Options) []*model.Page {
	pages := make([]*model.Page, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.client.cfg.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			page, err := s.Fetch(gctx, u, opts)
			if err != nil {
				zap.L().Debug("fetch: candidate dropped", zap.String("url", u), zap.Error(err))
				return nil
			}
			pages[i] = page
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// Fetches is the number of underlying fetches the session performed.
func (s *Session) Fetches() int64 { return s.fetches.Load() }

// Close releases the session cache.
func (s *Session) Close() { s.cache.Flush() }
