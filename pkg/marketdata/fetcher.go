package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/singleflight"
)

const defaultFetchTimeout = 30 * time.Second

// Fetcher is the market data facade: cache, pending-request de-duplication,
// the outbound queue and the source fallback chain behind one call.
type Fetcher struct {
	sources       []Source
	cache         *Cache
	queue         *Queue
	group         singleflight.Group
	persistence   Persistence
	hub           *Hub
	mock          *MockGenerator
	mockOnFailure bool
	fetchTimeout  time.Duration
	now           func() time.Time

	networkCalls  atomic.Int64
	cacheHits     atomic.Int64
	persistHits   atomic.Int64
	sharedFetches atomic.Int64
	staleServes   atomic.Int64
	mockServes    atomic.Int64
	failures      atomic.Int64
}

// Stats is a point-in-time copy of the fetcher counters.
type Stats struct {
	NetworkCalls  int64 `json:"networkCalls"`
	CacheHits     int64 `json:"cacheHits"`
	PersistHits   int64 `json:"persistHits"`
	SharedFetches int64 `json:"sharedFetches"`
	StaleServes   int64 `json:"staleServes"`
	MockServes    int64 `json:"mockServes"`
	Failures      int64 `json:"failures"`
}

// FetcherOption customises a Fetcher.
type FetcherOption func(*Fetcher)

// WithPersistence wires the durable chart store.
func WithPersistence(p Persistence) FetcherOption {
	return func(f *Fetcher) {
		f.persistence = p
	}
}

// WithHub publishes changed charts and notices to hub.
func WithHub(h *Hub) FetcherOption {
	return func(f *Fetcher) {
		f.hub = h
	}
}

// WithMockOnFailure toggles synthetic data when every source fails.
func WithMockOnFailure(enabled bool) FetcherOption {
	return func(f *Fetcher) {
		f.mockOnFailure = enabled
	}
}

// WithMockGenerator overrides the synthetic data generator.
func WithMockGenerator(g *MockGenerator) FetcherOption {
	return func(f *Fetcher) {
		if g != nil {
			f.mock = g
		}
	}
}

// WithFetchTimeout bounds one shared trip through the source chain.
func WithFetchTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.fetchTimeout = d
		}
	}
}

// WithClock overrides the time source used for persisted-entry freshness.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFetcher builds a Fetcher trying sources in the given order.
func NewFetcher(sources []Source, cache *Cache, queue *Queue, opts ...FetcherOption) *Fetcher {
	if cache == nil {
		cache = NewCache(CacheOptions{})
	}
	if queue == nil {
		queue = NewQueue(0, 0)
	}
	f := &Fetcher{
		sources:       sources,
		cache:         cache,
		queue:         queue,
		mockOnFailure: true,
		fetchTimeout:  defaultFetchTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.mock == nil {
		f.mock = NewMockGenerator(f.now)
	}
	return f
}

// Cache exposes the fetcher's chart cache.
func (f *Fetcher) Cache() *Cache { return f.cache }

// Queue exposes the fetcher's outbound queue.
func (f *Fetcher) Queue() *Queue { return f.queue }

// SourceNames lists the source chain in try order.
func (f *Fetcher) SourceNames() []string {
	names := make([]string, 0, len(f.sources))
	for _, src := range f.sources {
		names = append(names, src.Name())
	}
	return names
}

// Stats returns the current counters.
func (f *Fetcher) Stats() Stats {
	return Stats{
		NetworkCalls:  f.networkCalls.Load(),
		CacheHits:     f.cacheHits.Load(),
		PersistHits:   f.persistHits.Load(),
		SharedFetches: f.sharedFetches.Load(),
		StaleServes:   f.staleServes.Load(),
		MockServes:    f.mockServes.Load(),
		Failures:      f.failures.Load(),
	}
}

// Close stops the outbound queue.
func (f *Fetcher) Close() {
	f.queue.Close()
}

// FetchMarketData returns the chart for coinID over days in currency. Unless
// force is set a fresh cached or persisted chart is returned without a network
// call. Concurrent identical calls share one trip through the source chain.
func (f *Fetcher) FetchMarketData(ctx context.Context, coinID string, days int, currency string, force bool) (*Result, error) {
	req := Request{CoinID: coinID, Days: days, Currency: currency}.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := req.Key()

	if !force {
		if entry, state := f.cache.Get(key); state == CacheFresh {
			f.cacheHits.Add(1)
			return resultFromEntry(req, entry, false), nil
		}
		if entry := f.loadPersisted(ctx, req); entry != nil && f.now().Sub(entry.FetchedAt) <= f.cache.TTL() {
			f.persistHits.Add(1)
			promoted := *entry
			promoted.UpdatedAt = entry.FetchedAt
			f.cache.Store(key, promoted)
			return resultFromEntry(req, promoted, false), nil
		}
	}

	ch := f.group.DoChan(key, func() (interface{}, error) {
		return f.fetchShared(ctx, req)
	})
	var (
		shared *Result
		err    error
	)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Shared {
			f.sharedFetches.Add(1)
		}
		err = out.Err
		if err == nil {
			shared = out.Val.(*Result)
		}
	}
	if err == nil {
		res := *shared
		res.Attempted = append([]string(nil), shared.Attempted...)
		return &res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return f.fallback(ctx, req, err)
}

// fetchShared runs once per key for all waiting callers. It is detached from
// the leader's cancellation so one caller going away does not fail the others.
func (f *Fetcher) fetchShared(parent context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), f.fetchTimeout)
	defer cancel()

	var res *Result
	err := f.queue.Do(ctx, func(jobCtx context.Context) error {
		var chainErr error
		res, chainErr = f.tryChain(jobCtx, req)
		return chainErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *Fetcher) tryChain(ctx context.Context, req Request) (*Result, error) {
	attempted := make([]string, 0, len(f.sources))
	var errs []error
	for _, src := range f.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := src.Name()
		attempted = append(attempted, name)
		f.networkCalls.Add(1)
		chart, err := src.FetchChart(ctx, req)
		if err == nil && chart.Empty() {
			err = ErrEmptyChart
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logx.WithContext(ctx).Errorf("marketdata: source %s failed key=%s err=%v", name, req.Key(), err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		return f.accept(ctx, req, name, chart, attempted)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no sources configured", ErrAllSourcesFailed)
	}
	return nil, fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
}

func (f *Fetcher) accept(ctx context.Context, req Request, source string, chart *Chart, attempted []string) (*Result, error) {
	key := req.Key()
	hash, changed, err := f.cache.Put(key, chart, source)
	if err != nil {
		return nil, err
	}
	entry, _ := f.cache.Get(key)
	if entry.Chart == nil {
		entry = CacheEntry{Chart: chart, Source: source, Hash: hash, FetchedAt: f.now(), UpdatedAt: f.now()}
	}
	if f.persistence != nil {
		record := entry
		record.FetchedAt = entry.UpdatedAt
		if err := f.persistence.RecordChart(ctx, req, record); err != nil {
			logx.WithContext(ctx).Errorf("marketdata: persist chart key=%s err=%v", key, err)
		}
	}
	if changed && f.hub != nil {
		f.hub.Publish(Update{
			Key:     key,
			Request: req,
			Chart:   entry.Chart,
			Source:  source,
			Hash:    hash,
			Origin:  OriginFetch,
			At:      entry.UpdatedAt,
		})
	}
	return &Result{
		Request:   req,
		Chart:     entry.Chart,
		Source:    source,
		Hash:      hash,
		FetchedAt: entry.UpdatedAt,
		Attempted: attempted,
	}, nil
}

func (f *Fetcher) fallback(ctx context.Context, req Request, cause error) (*Result, error) {
	f.failures.Add(1)
	key := req.Key()
	if entry, state := f.cache.Get(key); state != CacheMiss {
		f.staleServes.Add(1)
		logx.WithContext(ctx).Infof("marketdata: serving cached chart after failure key=%s source=%s", key, entry.Source)
		return resultFromEntry(req, entry, state == CacheStale), nil
	}
	if entry := f.loadPersisted(ctx, req); entry != nil {
		f.staleServes.Add(1)
		logx.WithContext(ctx).Infof("marketdata: serving last known chart key=%s source=%s fetched_at=%s",
			key, entry.Source, entry.FetchedAt.Format(time.RFC3339))
		return resultFromEntry(req, *entry, true), nil
	}
	if !f.mockOnFailure {
		return nil, cause
	}

	f.mockServes.Add(1)
	logx.WithContext(ctx).Errorf("marketdata: all sources failed, serving mock data key=%s err=%v", key, cause)
	chart := f.mock.Generate(req)
	hash, err := ContentHash(chart)
	if err != nil {
		return nil, err
	}
	if f.hub != nil {
		f.hub.Notify(Notice{
			Key:     key,
			Level:   NoticeWarning,
			Message: fmt.Sprintf("Live market data for %s is unavailable; showing simulated data.", req.CoinID),
		})
	}
	return &Result{
		Request:    req,
		Chart:      chart,
		Source:     SourceMock,
		IsMockData: true,
		Hash:       hash,
		FetchedAt:  f.now(),
		Attempted:  f.SourceNames(),
	}, nil
}

func (f *Fetcher) loadPersisted(ctx context.Context, req Request) *CacheEntry {
	if f.persistence == nil {
		return nil
	}
	entry, err := f.persistence.LoadChart(ctx, req)
	if err != nil {
		if !IsAborted(err) {
			logx.WithContext(ctx).Errorf("marketdata: load persisted chart key=%s err=%v", req.Key(), err)
		}
		return nil
	}
	if entry == nil || entry.Chart.Empty() {
		return nil
	}
	return entry
}

func resultFromEntry(req Request, entry CacheEntry, stale bool) *Result {
	return &Result{
		Request:   req,
		Chart:     entry.Chart,
		Source:    entry.Source,
		FromCache: true,
		Stale:     stale,
		Hash:      entry.Hash,
		FetchedAt: entry.FetchedAt,
	}
}
