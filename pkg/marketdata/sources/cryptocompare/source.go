// Package cryptocompare serves market charts from the CryptoCompare
// histohour/histoday endpoints.
package cryptocompare

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
	defaultBaseURL = "https://min-api.cryptocompare.com"
	defaultTimeout = 10 * time.Second
)

// Source fetches OHLCV history from CryptoCompare.
type Source struct {
	name    string
	client  *restclient.Client
	timeout time.Duration
}

type sourceConfig struct {
	name          string
	timeout       time.Duration
	clientOptions []restclient.Option
}

// Option customises the CryptoCompare source.
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

// WithClientOptions passes options to the underlying REST client.
func WithClientOptions(options ...restclient.Option) Option {
	return func(cfg *sourceConfig) {
		cfg.clientOptions = append(cfg.clientOptions, options...)
	}
}

// New constructs a CryptoCompare source authenticated with apiKey.
func New(apiKey string, opts ...Option) *Source {
	cfg := &sourceConfig{name: "cryptocompare", timeout: defaultTimeout}
	for _, opt := range opts {
		opt(cfg)
	}
	auth := ""
	if apiKey != "" {
		auth = "Apikey " + apiKey
	}
	clientOptions := append([]restclient.Option{restclient.WithHeader("authorization", auth)}, cfg.clientOptions...)
	return &Source{
		name:    cfg.name,
		client:  restclient.New(cfg.name, defaultBaseURL, clientOptions...),
		timeout: cfg.timeout,
	}
}

func init() {
	marketdata.RegisterSource("cryptocompare", func(name string, cfg *marketdata.SourceConfig) (marketdata.Source, error) {
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

type histoResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time     int64   `json:"time"`
			Close    float64 `json:"close"`
			VolumeTo float64 `json:"volumeto"`
		} `json:"Data"`
	} `json:"Data"`
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
	path := "/data/v2/histoday"
	if res.Hourly() {
		path = "/data/v2/histohour"
	}
	query := url.Values{}
	query.Set("fsym", base)
	query.Set("tsym", strings.ToUpper(req.Currency))
	// the API returns limit+1 rows
	query.Set("limit", strconv.Itoa(res.Points-1))

	var payload histoResponse
	if err := s.client.GetJSON(ctx, path, query, &payload); err != nil {
		return nil, err
	}
	if strings.EqualFold(payload.Response, "Error") {
		return nil, fmt.Errorf("cryptocompare: %s", payload.Message)
	}
	chart := &marketdata.Chart{
		Prices:       make([]marketdata.Point, 0, len(payload.Data.Data)),
		TotalVolumes: make([]marketdata.Point, 0, len(payload.Data.Data)),
	}
	for _, row := range payload.Data.Data {
		// leading rows before listing come back zeroed
		if row.Close == 0 {
			continue
		}
		ts := row.Time * 1000
		chart.Prices = append(chart.Prices, marketdata.Point{Time: ts, Value: row.Close})
		chart.TotalVolumes = append(chart.TotalVolumes, marketdata.Point{Time: ts, Value: row.VolumeTo})
	}
	if chart.Empty() {
		return nil, fmt.Errorf("cryptocompare: %w for %s", marketdata.ErrEmptyChart, req.Key())
	}
	return chart, nil
}
