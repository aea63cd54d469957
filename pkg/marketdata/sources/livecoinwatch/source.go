// Package livecoinwatch serves market charts from the LiveCoinWatch
// coins/single/history endpoint.
package livecoinwatch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cryptodash-api/pkg/marketdata"
	"cryptodash-api/pkg/marketdata/sources/restclient"
)

const (
	defaultBaseURL = "https://api.livecoinwatch.com"
	apiKeyHeader   = "x-api-key"
	defaultTimeout = 10 * time.Second
)

// Source fetches rate, volume and cap history from LiveCoinWatch.
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

// Option customises the LiveCoinWatch source.
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

// New constructs a LiveCoinWatch source authenticated with apiKey.
func New(apiKey string, opts ...Option) *Source {
	cfg := &sourceConfig{name: "livecoinwatch", timeout: defaultTimeout, now: time.Now}
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
	marketdata.RegisterSource("livecoinwatch", func(name string, cfg *marketdata.SourceConfig) (marketdata.Source, error) {
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

type historyRequest struct {
	Currency string `json:"currency"`
	Code     string `json:"code"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Meta     bool   `json:"meta"`
}

type historyResponse struct {
	History []struct {
		Date   int64   `json:"date"`
		Rate   float64 `json:"rate"`
		Volume float64 `json:"volume"`
		Cap    float64 `json:"cap"`
	} `json:"history"`
}

// FetchChart implements marketdata.Source.
func (s *Source) FetchChart(ctx context.Context, req marketdata.Request) (*marketdata.Chart, error) {
	code, err := marketdata.SymbolFor(req.CoinID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	end := s.now()
	body := historyRequest{
		Currency: strings.ToUpper(req.Currency),
		Code:     code,
		Start:    end.Add(-time.Duration(req.Days) * 24 * time.Hour).UnixMilli(),
		End:      end.UnixMilli(),
	}
	var payload historyResponse
	if err := s.client.PostJSON(ctx, "/coins/single/history", body, &payload); err != nil {
		return nil, err
	}
	chart := &marketdata.Chart{
		Prices:       make([]marketdata.Point, 0, len(payload.History)),
		MarketCaps:   make([]marketdata.Point, 0, len(payload.History)),
		TotalVolumes: make([]marketdata.Point, 0, len(payload.History)),
	}
	for _, row := range payload.History {
		if row.Rate == 0 {
			continue
		}
		chart.Prices = append(chart.Prices, marketdata.Point{Time: row.Date, Value: row.Rate})
		chart.MarketCaps = append(chart.MarketCaps, marketdata.Point{Time: row.Date, Value: row.Cap})
		chart.TotalVolumes = append(chart.TotalVolumes, marketdata.Point{Time: row.Date, Value: row.Volume})
	}
	if chart.Empty() {
		return nil, fmt.Errorf("livecoinwatch: %w for %s", marketdata.ErrEmptyChart, req.Key())
	}
	return chart, nil
}
