package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	defaultCurrency = "usd"
	maxDays         = 365
	// MaxPoints bounds the number of points any source is asked for.
	MaxPoints = 1000
	// SourceMock tags synthetic placeholder data.
	SourceMock = "mock"
)

// Source fetches historical market charts from a single upstream provider.
type Source interface {
	// Name returns the configured provider name, e.g. "coingecko".
	Name() string
	// FetchChart returns the chart for the normalized request.
	FetchChart(ctx context.Context, req Request) (*Chart, error)
}

// Request identifies a market chart: coin, lookback window and quote currency.
type Request struct {
	CoinID   string // CoinGecko-style id, e.g. "bitcoin"
	Days     int    // Lookback window in days
	Currency string // Quote currency, e.g. "usd"
}

// Normalize returns a canonical copy of the request.
func (r Request) Normalize() Request {
	out := Request{
		CoinID:   strings.ToLower(strings.TrimSpace(r.CoinID)),
		Days:     r.Days,
		Currency: strings.ToLower(strings.TrimSpace(r.Currency)),
	}
	if out.Currency == "" {
		out.Currency = defaultCurrency
	}
	if out.Days <= 0 {
		out.Days = 1
	}
	if out.Days > maxDays {
		out.Days = maxDays
	}
	return out
}

// Validate reports whether the request can be served.
func (r Request) Validate() error {
	if r.CoinID == "" {
		return fmt.Errorf("%w: coin id is required", ErrInvalidRequest)
	}
	if strings.ContainsAny(r.CoinID, "/?#: ") {
		return fmt.Errorf("%w: invalid coin id %q", ErrInvalidRequest, r.CoinID)
	}
	return nil
}

// Key is the cache and de-duplication key for the request.
func (r Request) Key() string {
	return fmt.Sprintf("%s:%d:%s", r.CoinID, r.Days, r.Currency)
}

// Point is a single timestamped value.
type Point struct {
	Time  int64   `json:"t" msgpack:"t"` // unix milliseconds
	Value float64 `json:"v" msgpack:"v"`
}

// Chart mirrors the market_chart payload: ordered oldest → newest.
type Chart struct {
	Prices       []Point `json:"prices" msgpack:"prices"`
	MarketCaps   []Point `json:"market_caps,omitempty" msgpack:"market_caps"`
	TotalVolumes []Point `json:"total_volumes,omitempty" msgpack:"total_volumes"`
}

// Empty reports whether the chart carries no prices.
func (c *Chart) Empty() bool {
	return c == nil || len(c.Prices) == 0
}

// Last returns the newest price, or zero for an empty chart.
func (c *Chart) Last() float64 {
	if c.Empty() {
		return 0
	}
	return c.Prices[len(c.Prices)-1].Value
}

// Clone returns a deep copy of the chart.
func (c *Chart) Clone() *Chart {
	if c == nil {
		return nil
	}
	return &Chart{
		Prices:       append([]Point(nil), c.Prices...),
		MarketCaps:   append([]Point(nil), c.MarketCaps...),
		TotalVolumes: append([]Point(nil), c.TotalVolumes...),
	}
}

// Result is what FetchMarketData hands back to callers.
type Result struct {
	Request    Request
	Chart      *Chart
	Source     string    // provider that produced the chart, or SourceMock
	FromCache  bool      // served without a network call
	Stale      bool      // served past its TTL because every source failed
	IsMockData bool      // synthetic placeholder data
	Hash       string    // content hash of Chart
	FetchedAt  time.Time // when the chart was obtained from upstream
	Attempted  []string  // sources tried on this call, in order
}

// DataSource returns the label surfaces use to tag the payload origin.
func (r *Result) DataSource() string {
	if r == nil {
		return ""
	}
	if r.IsMockData {
		return SourceMock
	}
	return r.Source
}

// Resolution describes the sampling step a source should use for a window.
type Resolution struct {
	Step   time.Duration
	Points int
}

// Hourly reports whether the resolution is hourly.
func (r Resolution) Hourly() bool {
	return r.Step == time.Hour
}

// ResolutionFor picks hourly points up to 30 days and daily points beyond.
func ResolutionFor(days int) Resolution {
	if days <= 0 {
		days = 1
	}
	if days <= 30 {
		return Resolution{Step: time.Hour, Points: days * 24}
	}
	points := days
	if points > MaxPoints {
		points = MaxPoints
	}
	return Resolution{Step: 24 * time.Hour, Points: points}
}
