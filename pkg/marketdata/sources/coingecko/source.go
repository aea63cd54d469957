// Package coingecko implements the primary market chart source backed by the
// CoinGecko /coins/{id}/market_chart endpoint.
package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cryptodash-api/pkg/marketdata"
	"cryptodash-api/pkg/marketdata/sources/restclient"
)

const (
	publicBaseURL  = "https://api.coingecko.com/api/v3"
	proBaseURL     = "https://pro-api.coingecko.com/api/v3"
	demoKeyHeader  = "x-cg-demo-api-key"
	proKeyHeader   = "x-cg-pro-api-key"
	defaultTimeout = 10 * time.Second
)

// Source fetches market charts from CoinGecko.
type Source struct {
	name    string
	client  *restclient.Client
	timeout time.Duration
}

type sourceConfig struct {
	name          string
	timeout       time.Duration
	mode          string
	apiKey        string
	baseURL       string
	clientOptions []restclient.Option
}

// Option customises the CoinGecko source.
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

// WithAPIKey authenticates requests; mode "pro" switches to the paid API host.
func WithAPIKey(mode, key string) Option {
	return func(cfg *sourceConfig) {
		cfg.mode = strings.ToLower(strings.TrimSpace(mode))
		cfg.apiKey = key
	}
}

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(cfg *sourceConfig) {
		cfg.baseURL = u
	}
}

// WithClientOptions passes options to the underlying REST client.
func WithClientOptions(options ...restclient.Option) Option {
	return func(cfg *sourceConfig) {
		cfg.clientOptions = append(cfg.clientOptions, options...)
	}
}

// New constructs a CoinGecko source.
func New(opts ...Option) *Source {
	cfg := &sourceConfig{name: "coingecko", timeout: defaultTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	baseURL := publicBaseURL
	header := demoKeyHeader
	if cfg.mode == "pro" {
		baseURL = proBaseURL
		header = proKeyHeader
	}
	if cfg.baseURL != "" {
		baseURL = cfg.baseURL
	}
	clientOptions := append([]restclient.Option{restclient.WithHeader(header, cfg.apiKey)}, cfg.clientOptions...)
	return &Source{
		name:    cfg.name,
		client:  restclient.New(cfg.name, baseURL, clientOptions...),
		timeout: cfg.timeout,
	}
}

func init() {
	marketdata.RegisterSource("coingecko", func(name string, cfg *marketdata.SourceConfig) (marketdata.Source, error) {
		opts := []Option{WithName(name), WithAPIKey(cfg.Mode, cfg.APIKey), WithBaseURL(cfg.BaseURL)}
		clientOptions := []restclient.Option{}
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
		if len(clientOptions) > 0 {
			opts = append(opts, WithClientOptions(clientOptions...))
		}
		return New(opts...), nil
	})
}

// Name implements marketdata.Source.
func (s *Source) Name() string { return s.name }

type marketChartResponse struct {
	Prices       [][]float64 `json:"prices"`
	MarketCaps   [][]float64 `json:"market_caps"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

// FetchChart implements marketdata.Source.
func (s *Source) FetchChart(ctx context.Context, req marketdata.Request) (*marketdata.Chart, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := url.Values{}
	query.Set("vs_currency", req.Currency)
	query.Set("days", strconv.Itoa(req.Days))
	var payload marketChartResponse
	path := fmt.Sprintf("/coins/%s/market_chart", url.PathEscape(req.CoinID))
	if err := s.client.GetJSON(ctx, path, query, &payload); err != nil {
		return nil, err
	}
	chart := &marketdata.Chart{
		Prices:       toPoints(payload.Prices),
		MarketCaps:   toPoints(payload.MarketCaps),
		TotalVolumes: toPoints(payload.TotalVolumes),
	}
	if chart.Empty() {
		return nil, fmt.Errorf("coingecko: %w for %s", marketdata.ErrEmptyChart, req.Key())
	}
	return chart, nil
}

func toPoints(pairs [][]float64) []marketdata.Point {
	out := make([]marketdata.Point, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		out = append(out, marketdata.Point{Time: int64(pair[0]), Value: pair[1]})
	}
	return out
}
