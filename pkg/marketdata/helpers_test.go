package marketdata

import (
	"context"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubSource returns a fixed chart or error and records every call.
type stubSource struct {
	name  string
	chart *Chart
	err   error
	gate  chan struct{}
	log   *callLog

	mu    sync.Mutex
	calls int
}

type callLog struct {
	mu    sync.Mutex
	names []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) FetchChart(ctx context.Context, req Request) (*Chart, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.log != nil {
		s.log.add(s.name)
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.chart, nil
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func sampleChart(base float64, n int) *Chart {
	chart := &Chart{}
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Hour).UnixMilli()
		chart.Prices = append(chart.Prices, Point{Time: ts, Value: base + float64(i)})
		chart.MarketCaps = append(chart.MarketCaps, Point{Time: ts, Value: (base + float64(i)) * 1000})
		chart.TotalVolumes = append(chart.TotalVolumes, Point{Time: ts, Value: 42})
	}
	return chart
}

// memoryPersistence is an in-process Persistence used to exercise promotion
// and last-known-good paths.
type memoryPersistence struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	records int
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{entries: make(map[string]CacheEntry)}
}

func (m *memoryPersistence) RecordChart(_ context.Context, req Request, entry CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[req.Key()] = entry
	m.records++
	return nil
}

func (m *memoryPersistence) LoadChart(_ context.Context, req Request) (*CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[req.Key()]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *memoryPersistence) Records() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records
}
