package marketdata

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

const (
	defaultPollInterval = 2 * time.Minute
	defaultPollTimeout  = 20 * time.Second
)

// ChartFetcher is the subset of Fetcher the poller needs.
type ChartFetcher interface {
	FetchMarketData(ctx context.Context, coinID string, days int, currency string, force bool) (*Result, error)
}

// PollReport describes one poll of one watched chart.
type PollReport struct {
	Request Request
	Result  *Result
	Err     error
	Elapsed time.Duration
}

// Poller keeps the watch list warm by re-fetching it on a fixed interval.
type Poller struct {
	fetcher  ChartFetcher
	requests []Request
	interval time.Duration
	timeout  time.Duration
	delay    time.Duration
	force    bool
	report   func(PollReport)
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithPollReporter receives the outcome of every poll.
func WithPollReporter(fn func(PollReport)) PollerOption {
	return func(p *Poller) {
		p.report = fn
	}
}

// NewPoller builds a poller from the watch section of the market config.
func NewPoller(fetcher ChartFetcher, watch WatchConfig, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		requests: dedupeRequests(watch.Requests()),
		interval: watch.Interval,
		timeout:  watch.Timeout,
		delay:    watch.Delay,
		force:    watch.Force,
	}
	if p.interval <= 0 {
		p.interval = defaultPollInterval
	}
	if p.timeout <= 0 {
		p.timeout = defaultPollTimeout
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Requests returns the polled requests.
func (p *Poller) Requests() []Request {
	return append([]Request(nil), p.requests...)
}

// Run polls immediately and then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p == nil || p.fetcher == nil || len(p.requests) == 0 {
		return
	}
	p.PollOnce(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches every watched chart once, in order.
func (p *Poller) PollOnce(ctx context.Context) {
	for i, req := range p.requests {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && !sleepWithContext(ctx, p.delay) {
			return
		}
		reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
		start := time.Now()
		res, err := p.fetcher.FetchMarketData(reqCtx, req.CoinID, req.Days, req.Currency, p.force)
		elapsed := time.Since(start)
		cancel()
		if err != nil && ctx.Err() != nil {
			return
		}
		if err != nil {
			logx.WithContext(ctx).Errorf("marketdata: poll key=%s err=%v", req.Key(), err)
		}
		if p.report != nil {
			p.report(PollReport{Request: req, Result: res, Err: err, Elapsed: elapsed})
		}
	}
}

func dedupeRequests(reqs []Request) []Request {
	seen := make(map[string]struct{}, len(reqs))
	out := make([]Request, 0, len(reqs))
	for _, req := range reqs {
		key := req.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, req)
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
