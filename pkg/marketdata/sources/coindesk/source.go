// Package coindesk serves market charts from the CoinDesk (CCData) index
// historical endpoints.
package coindesk

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
	defaultBaseURL = "https://data-api.coindesk.com"
	defaultMarket  = "cadli"
	defaultTimeout = 10 * time.Second
)

// Source fetches index OHLCV history from CoinDesk.
type Source struct {
	name    string
	market  string
	client  *restclient.Client
	timeout time.Duration
}

type sourceConfig struct {
	name          string
	market        string
	timeout       time.Duration
	clientOptions []restclient.Option
}

// Option customises the CoinDesk source.
type Option func(*sourceConfig)

// WithName overrides the configured source name.
func WithName(name string) Option {
	return func(cfg *sourceConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithMarket selects the index family, e.g. "cadli" or "ccix".
func WithMarket(market string) Option {
	return func(cfg *sourceConfig) {
		if market != "" {
			cfg.market = strings.ToLower(market)
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

// WithClientOptions passes options to the underlying REST client.
func WithClientOptions(options ...restclient.Option) Option {
	return func(cfg *sourceConfig) {
		cfg.clientOptions = append(cfg.clientOptions, options...)
	}
}

// New constructs a CoinDesk source authenticated with apiKey.
func New(apiKey string, opts ...Option) *Source {
	cfg := &sourceConfig{name: "coindesk", market: defaultMarket, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	auth := ""
	if apiKey != "" {
		auth = "Apikey " + apiKey
	}
	clientOptions := append([]restclient.Option{restclient.WithHeader("Authorization", auth)}, cfg.clientOptions...)
	return &Source{
		name:    cfg.name,
		market:  cfg.market,
		client:  restclient.New(cfg.name, defaultBaseURL, clientOptions...),
		timeout: cfg.timeout,
	}
}

func init() {
	marketdata.RegisterSource("coindesk", func(name string, cfg *marketdata.SourceConfig) (marketdata.Source, error) {
		opts := []Option{WithName(name), WithMarket(cfg.Mode)}
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

type historicalResponse struct {
	Data []struct {
		Timestamp   int64   `json:"TIMESTAMP"`
		Close       float64 `json:"CLOSE"`
		QuoteVolume float64 `json:"QUOTE_VOLUME"`
	} `json:"Data"`
	Err struct {
		Type    int    `json:"type"`
		Message string `json:"message"`
	} `json:"Err"`
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
	path := "/index/cc/v1/historical/days"
	if res.Hourly() {
		path = "/index/cc/v1/historical/hours"
	}
	query := url.Values{}
	query.Set("market", s.market)
	query.Set("instrument", base+"-"+strings.ToUpper(req.Currency))
	query.Set("limit", strconv.Itoa(res.Points))
	query.Set("aggregate", "1")
	query.Set("groups", "OHLC,VOLUME")
	query.Set("response_format", "JSON")

	var payload historicalResponse
	if err := s.client.GetJSON(ctx, path, query, &payload); err != nil {
		return nil, err
	}
	if payload.Err.Message != "" {
		return nil, fmt.Errorf("coindesk: %s", payload.Err.Message)
	}
	chart := &marketdata.Chart{
		Prices:       make([]marketdata.Point, 0, len(payload.Data)),
		TotalVolumes: make([]marketdata.Point, 0, len(payload.Data)),
	}
	for _, row := range payload.Data {
		ts := row.Timestamp * 1000
		chart.Prices = append(chart.Prices, marketdata.Point{Time: ts, Value: row.Close})
		chart.TotalVolumes = append(chart.TotalVolumes, marketdata.Point{Time: ts, Value: row.QuoteVolume})
	}
	if chart.Empty() {
		return nil, fmt.Errorf("coindesk: %w for %s", marketdata.ErrEmptyChart, req.Key())
	}
	return chart, nil
}
