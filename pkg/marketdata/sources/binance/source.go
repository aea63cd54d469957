// Package binance serves market charts from Binance spot klines.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"cryptodash-api/pkg/marketdata"
)

const (
	defaultTimeout      = 10 * time.Second
	invalidSymbolCode   = -1121
	hourlyInterval      = "1h"
	dailyInterval       = "1d"
	maxKlinesPerRequest = 1000
)

// Source fetches klines through the go-binance client and maps close prices
// and quote volumes onto a chart.
type Source struct {
	name    string
	client  *gobinance.Client
	timeout time.Duration
}

// Option customises the Binance source.
type Option func(*Source)

// WithName overrides the configured source name.
func WithName(name string) Option {
	return func(s *Source) {
		if name != "" {
			s.name = name
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Source) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithBaseURL points the client at a different REST root.
func WithBaseURL(u string) Option {
	return func(s *Source) {
		if u != "" {
			s.client.BaseURL = u
		}
	}
}

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Source) {
		if hc != nil {
			s.client.HTTPClient = hc
		}
	}
}

// New constructs a Binance source. Klines are public so the key pair may be empty.
func New(apiKey, secret string, opts ...Option) *Source {
	s := &Source{
		name:    "binance",
		client:  gobinance.NewClient(apiKey, secret),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func init() {
	marketdata.RegisterSource("binance", func(name string, cfg *marketdata.SourceConfig) (marketdata.Source, error) {
		opts := []Option{WithName(name), WithBaseURL(cfg.BaseURL)}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.HTTPTimeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		return New(cfg.APIKey, "", opts...), nil
	})
}

// Name implements marketdata.Source.
func (s *Source) Name() string { return s.name }

// Pair returns the exchange symbol for req, e.g. BTCUSDT.
func Pair(req marketdata.Request) (string, error) {
	base, err := marketdata.SymbolFor(req.CoinID)
	if err != nil {
		return "", err
	}
	return base + marketdata.QuoteFor(req.Currency), nil
}

// FetchChart implements marketdata.Source.
func (s *Source) FetchChart(ctx context.Context, req marketdata.Request) (*marketdata.Chart, error) {
	pair, err := Pair(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := marketdata.ResolutionFor(req.Days)
	interval := dailyInterval
	if res.Hourly() {
		interval = hourlyInterval
	}
	limit := res.Points
	if limit > maxKlinesPerRequest {
		limit = maxKlinesPerRequest
	}

	klines, err := s.client.NewKlinesService().
		Symbol(pair).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == invalidSymbolCode {
			return nil, fmt.Errorf("binance: %w: %s", marketdata.ErrUnsupportedCoin, pair)
		}
		return nil, fmt.Errorf("binance: klines %s: %w", pair, err)
	}
	return klinesToChart(klines)
}

func klinesToChart(klines []*gobinance.Kline) (*marketdata.Chart, error) {
	chart := &marketdata.Chart{
		Prices:       make([]marketdata.Point, 0, len(klines)),
		TotalVolumes: make([]marketdata.Point, 0, len(klines)),
	}
	for i, k := range klines {
		closePrice, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, fmt.Errorf("binance: parse close price at index %d: %w", i, err)
		}
		quoteVolume, err := decimal.NewFromString(k.QuoteAssetVolume)
		if err != nil {
			return nil, fmt.Errorf("binance: parse quote volume at index %d: %w", i, err)
		}
		chart.Prices = append(chart.Prices, marketdata.Point{Time: k.OpenTime, Value: closePrice.InexactFloat64()})
		chart.TotalVolumes = append(chart.TotalVolumes, marketdata.Point{Time: k.OpenTime, Value: quoteVolume.InexactFloat64()})
	}
	if chart.Empty() {
		return nil, fmt.Errorf("binance: %w", marketdata.ErrEmptyChart)
	}
	return chart, nil
}
