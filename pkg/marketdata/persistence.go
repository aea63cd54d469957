package marketdata

import "context"

// Persistence hooks let the fetcher keep charts beyond the process lifetime.
type Persistence interface {
	// RecordChart stores the latest successful chart for req.
	RecordChart(ctx context.Context, req Request, entry CacheEntry) error
	// LoadChart returns the last stored chart for req, or nil when none exists.
	LoadChart(ctx context.Context, req Request) (*CacheEntry, error)
}
