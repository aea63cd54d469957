// Package coinapi serves market charts from CoinAPI exchange-rate history.
package coinapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptodash-api/pkg/marketdata"
	"cryptodash-api/pkg/marketdata/sources/restclient"
)

const (
	defaultBaseURL = "https://rest.coinapi.io"
	apiKeyHeader   = "X-CoinAPI-Key"
	defaultTimeout = 10 * time.Second
)

// Source fetches exchange-rate history from CoinAPI.
type Source struct {
	name    string
	client  *restclient.Client
	timeout time.Duration
	now     func() time.Time
}

type sourceConfig struct {
	name          string
	timeout       time.Duration
	now           func() time.Time
	clientOptions []restclient.Option
}

// Option customises the CoinAPI source.
type Option func(*sourceConfig)

// WithName overrides the configured source name.
func WithName(name string) Option {
	return func(cfg *sourceConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *sourceConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithClock overrides the time source used to build the history window.
func WithClock(now func() time.Time) Option {
	return func(cfg *sourceConfig) {
		if now != nil {
			cfg.now = now
		}
	}
}

// WithClientOptions passes options to the underlying REST client.
func WithClientOptions(options ...restclient.Option) Option {
	return func(cfg *sourceConfig) {
		cfg.clientOptions = append(cfg.clientOptions, options...)
	}
}

// New constructs a CoinAPI source authenticated with apiKey.
func New(apiKey string, opts ...Option) *Source {
	cfg := &sourceConfig{name: "coinapi", timeout: defaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(cfg)
	}
	clientOptions := append([]restclient.Option{restclient.WithHeader(apiKeyHeader, apiKey)}, cfg.clientOptions...)
	return &Source{
		name:    cfg.name,
		client:  restclient.New(cfg.name, defaultBaseURL, clientOptions...),
		timeout: cfg.timeout,
		now:     cfg.now,
	}
}

func init() {
	marketdata.RegisterSource("coinapi", func(name string, cfg *marketdata.SourceConfig) (marketdata.Source, error) {
		opts := []Option{WithName(name)}
		clientOptions := []restclient.Option{restclient.WithBaseURL(cfg.BaseURL)}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.HTTPTimeout > 0 {
			clientOptions = append(clientOptions, restclient.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
		}
		if cfg.MaxRetries > 0 {
			clientOptions = append(clientOptions, restclient.WithMaxRetries(cfg.MaxRetries))
		}
		if cfg.RequestsPerMinute > 0 {
			clientOptions = append(clientOptions, restclient.WithRequestsPerMinute(cfg.RequestsPerMinute))
		}
		opts = append(opts, WithClientOptions(clientOptions...))
		return New(cfg.APIKey, opts...), nil
	})
}

// Name implements marketdata.Source.
func (s *Source) Name() string { return s.name }

type rateBar struct {
	TimePeriodStart time.Time       `json:"time_period_start"`
	RateClose       decimal.Decimal `json:"rate_close"`
}

// FetchChart implements marketdata.Source.
func (s *Source) FetchChart(ctx context.Context, req marketdata.Request) (*marketdata.Chart, error) {
	base, err := marketdata.SymbolFor(req.CoinID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := marketdata.ResolutionFor(req.Days)
	period := "1DAY"
	if res.Hourly() {
		period = "1HRS"
	}
	end := s.now().UTC().Truncate(res.Step).Add(res.Step)
	start := end.Add(-time.Duration(res.Points) * res.Step)

	query := url.Values{}
	query.Set("period_id", period)
	query.Set("time_start", start.Format(time.RFC3339))
	query.Set("time_end", end.Format(time.RFC3339))
	query.Set("limit", strconv.Itoa(res.Points))

	var bars []rateBar
	path := fmt.Sprintf("/v1/exchangerate/%s/%s/history", base, strings.ToUpper(req.Currency))
	if err := s.client.GetJSON(ctx, path, query, &bars); err != nil {
		return nil, err
	}
	chart := &marketdata.Chart{Prices: make([]marketdata.Point, 0, len(bars))}
	for _, bar := range bars {
		if bar.TimePeriodStart.IsZero() {
			continue
		}
		chart.Prices = append(chart.Prices, marketdata.Point{
			Time:  bar.TimePeriodStart.UnixMilli(),
			Value: bar.RateClose.InexactFloat64(),
		})
	}
	if chart.Empty() {
		return nil, fmt.Errorf("coinapi: %w for %s", marketdata.ErrEmptyChart, req.Key())
	}
	return chart, nil
}
