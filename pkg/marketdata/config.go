package marketdata

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"cryptodash-api/pkg/confkit"
)

// DefaultFallbackOrder is tried after the primary source when the config
// does not list its own fallback chain.
var DefaultFallbackOrder = []string{"binance", "coinapi", "coindesk", "cryptocompare", "livecoinwatch"}

const defaultPrimary = "coingecko"

// Config describes the market data sources and the policies around them.
type Config struct {
	Primary          string                   `yaml:"primary"`
	Fallback         []string                 `yaml:"fallback"`
	MockOnFailureRaw *bool                    `yaml:"mock_on_failure"`
	MockOnFailure    bool                     `yaml:"-"`
	FetchTimeoutRaw  string                   `yaml:"fetch_timeout"`
	FetchTimeout     time.Duration            `yaml:"-"`
	Cache            CacheConfig              `yaml:"cache"`
	Queue            QueueConfig              `yaml:"queue"`
	Realtime         RealtimeConfig           `yaml:"realtime"`
	Watch            WatchConfig              `yaml:"watch"`
	Sources          map[string]*SourceConfig `yaml:"sources"`
}

// CacheConfig controls the in-memory chart cache.
type CacheConfig struct {
	TTLRaw             string        `yaml:"ttl"`
	TTL                time.Duration `yaml:"-"`
	StaleTTLRaw        string        `yaml:"stale_ttl"`
	StaleTTL           time.Duration `yaml:"-"`
	CleanupIntervalRaw string        `yaml:"cleanup_interval"`
	CleanupInterval    time.Duration `yaml:"-"`
	MaxEntries         int           `yaml:"max_entries"`
}

// QueueConfig controls outbound request spacing.
type QueueConfig struct {
	IntervalRaw string        `yaml:"interval"`
	Interval    time.Duration `yaml:"-"`
	Capacity    int           `yaml:"capacity"`
}

// RealtimeConfig bounds how often realtime pushes are accepted per key.
type RealtimeConfig struct {
	MaxUpdates int           `yaml:"max_updates"`
	WindowRaw  string        `yaml:"window"`
	Window     time.Duration `yaml:"-"`
}

// WatchConfig lists the charts the poller keeps warm.
type WatchConfig struct {
	IntervalRaw string        `yaml:"interval"`
	Interval    time.Duration `yaml:"-"`
	TimeoutRaw  string        `yaml:"timeout"`
	Timeout     time.Duration `yaml:"-"`
	DelayRaw    string        `yaml:"delay"`
	Delay       time.Duration `yaml:"-"`
	Force       bool          `yaml:"force"`
	Items       []WatchItem   `yaml:"items"`
}

// WatchItem is one polled chart.
type WatchItem struct {
	CoinID   string `yaml:"coin_id"`
	Days     int    `yaml:"days"`
	Currency string `yaml:"currency"`
}

// Requests converts the watch list into normalized requests, skipping blanks.
func (w WatchConfig) Requests() []Request {
	out := make([]Request, 0, len(w.Items))
	for _, item := range w.Items {
		req := Request{CoinID: item.CoinID, Days: item.Days, Currency: item.Currency}.Normalize()
		if req.Validate() != nil {
			continue
		}
		out = append(out, req)
	}
	return out
}

// SourceConfig represents configuration for a single upstream source.
type SourceConfig struct {
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Mode    string `yaml:"mode"`

	TimeoutRaw        string        `yaml:"timeout"`
	Timeout           time.Duration `yaml:"-"`
	HTTPTimeoutRaw    string        `yaml:"http_timeout"`
	HTTPTimeout       time.Duration `yaml:"-"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// SourceBuilder constructs a Source from configuration.
type SourceBuilder func(name string, cfg *SourceConfig) (Source, error)

var (
	sourceRegistry   = make(map[string]SourceBuilder)
	sourceRegistryMu sync.RWMutex
)

// RegisterSource registers a source constructor under its type name.
func RegisterSource(typeName string, builder SourceBuilder) {
	sourceRegistryMu.Lock()
	defer sourceRegistryMu.Unlock()
	sourceRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupSourceBuilder(typeName string) (SourceBuilder, bool) {
	sourceRegistryMu.RLock()
	defer sourceRegistryMu.RUnlock()
	builder, ok := sourceRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal market config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Sources == nil {
		c.Sources = make(map[string]*SourceConfig)
	}
	c.Primary = strings.TrimSpace(os.ExpandEnv(c.Primary))
	for i, name := range c.Fallback {
		c.Fallback[i] = strings.TrimSpace(os.ExpandEnv(name))
	}
	c.MockOnFailure = c.MockOnFailureRaw == nil || *c.MockOnFailureRaw

	var err error
	if c.FetchTimeout, err = parseDuration("fetch_timeout", c.FetchTimeoutRaw); err != nil {
		return err
	}
	if c.Cache.TTL, err = parseDuration("cache.ttl", c.Cache.TTLRaw); err != nil {
		return err
	}
	if c.Cache.StaleTTL, err = parseDuration("cache.stale_ttl", c.Cache.StaleTTLRaw); err != nil {
		return err
	}
	if c.Cache.CleanupInterval, err = parseDuration("cache.cleanup_interval", c.Cache.CleanupIntervalRaw); err != nil {
		return err
	}
	if c.Queue.Interval, err = parseDuration("queue.interval", c.Queue.IntervalRaw); err != nil {
		return err
	}
	if c.Realtime.Window, err = parseDuration("realtime.window", c.Realtime.WindowRaw); err != nil {
		return err
	}
	if c.Watch.Interval, err = parseDuration("watch.interval", c.Watch.IntervalRaw); err != nil {
		return err
	}
	if c.Watch.Timeout, err = parseDuration("watch.timeout", c.Watch.TimeoutRaw); err != nil {
		return err
	}
	if c.Watch.Delay, err = parseDuration("watch.delay", c.Watch.DelayRaw); err != nil {
		return err
	}

	for name, source := range c.Sources {
		if source == nil {
			source = &SourceConfig{}
			c.Sources[name] = source
		}
		source.expandEnv()
		if source.Type == "" {
			source.Type = name
		}
		if err := source.parseDurations(name); err != nil {
			return err
		}
	}
	if c.Primary == "" {
		if _, ok := c.Sources[defaultPrimary]; ok {
			c.Primary = defaultPrimary
		}
	}
	if len(c.Fallback) == 0 {
		for _, name := range DefaultFallbackOrder {
			if _, ok := c.Sources[name]; ok && name != c.Primary {
				c.Fallback = append(c.Fallback, name)
			}
		}
	}
	return nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(os.ExpandEnv(raw))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("market config: invalid %s %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("market config: %s must be positive, got %s", field, d)
	}
	return d, nil
}

func (p *SourceConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
	p.Mode = strings.TrimSpace(os.ExpandEnv(p.Mode))
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
	p.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.HTTPTimeoutRaw))
}

func (p *SourceConfig) parseDurations(name string) error {
	if p.TimeoutRaw != "" {
		d, err := time.ParseDuration(p.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("market source %s: invalid timeout %q: %w", name, p.TimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("market source %s: timeout must be positive, got %s", name, d)
		}
		p.Timeout = d
	}
	if p.HTTPTimeoutRaw != "" {
		d, err := time.ParseDuration(p.HTTPTimeoutRaw)
		if err != nil {
			return fmt.Errorf("market source %s: invalid http_timeout %q: %w", name, p.HTTPTimeoutRaw, err)
		}
		if d <= 0 {
			return fmt.Errorf("market source %s: http_timeout must be positive, got %s", name, d)
		}
		p.HTTPTimeout = d
	}
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 && !c.MockOnFailure {
		return fmt.Errorf("market config: sources cannot be empty without mock_on_failure")
	}
	if c.Primary != "" {
		if _, ok := c.Sources[c.Primary]; !ok {
			return fmt.Errorf("market config: primary source %q not defined", c.Primary)
		}
	}
	for _, name := range c.Fallback {
		if _, ok := c.Sources[name]; !ok {
			return fmt.Errorf("market config: fallback source %q not defined", name)
		}
	}
	for name, source := range c.Sources {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("market config: source name cannot be empty")
		}
		if err := source.validate(name); err != nil {
			return err
		}
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("market config: cache.max_entries cannot be negative")
	}
	if c.Cache.TTL > 0 && c.Cache.StaleTTL > 0 && c.Cache.StaleTTL < c.Cache.TTL {
		return fmt.Errorf("market config: cache.stale_ttl %s shorter than ttl %s", c.Cache.StaleTTL, c.Cache.TTL)
	}
	if c.Realtime.MaxUpdates < 0 {
		return fmt.Errorf("market config: realtime.max_updates cannot be negative")
	}
	return nil
}

func (p *SourceConfig) validate(name string) error {
	if p == nil {
		return fmt.Errorf("market config: source %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("market config: source %s must specify type", name)
	}
	if _, ok := lookupSourceBuilder(p.Type); !ok {
		return fmt.Errorf("market config: source %s has unsupported type %q", name, p.Type)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("market config: source %s max_retries cannot be negative", name)
	}
	return nil
}

// Order returns the source names in the order they are tried: primary first,
// then the fallback chain, without duplicates.
func (c *Config) Order() []string {
	seen := make(map[string]struct{}, len(c.Fallback)+1)
	out := make([]string, 0, len(c.Fallback)+1)
	add := func(name string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	add(c.Primary)
	for _, name := range c.Fallback {
		add(name)
	}
	return out
}

// BuildSources instantiates every configured source.
func (c *Config) BuildSources() (map[string]Source, error) {
	result := make(map[string]Source, len(c.Sources))
	for name, sourceCfg := range c.Sources {
		builder, ok := lookupSourceBuilder(sourceCfg.Type)
		if !ok {
			return nil, fmt.Errorf("market source %s: unsupported type %q", name, sourceCfg.Type)
		}
		source, err := builder(name, sourceCfg)
		if err != nil {
			return nil, fmt.Errorf("market source %s: %w", name, err)
		}
		result[name] = source
	}
	return result, nil
}

// BuildChain instantiates the sources and returns them in Order.
func (c *Config) BuildChain() ([]Source, error) {
	sources, err := c.BuildSources()
	if err != nil {
		return nil, err
	}
	order := c.Order()
	chain := make([]Source, 0, len(order))
	for _, name := range order {
		chain = append(chain, sources[name])
	}
	return chain, nil
}

// NewCache builds the chart cache described by the config.
func (c *Config) NewCache() *Cache {
	return NewCache(CacheOptions{
		TTL:        c.Cache.TTL,
		StaleTTL:   c.Cache.StaleTTL,
		MaxEntries: c.Cache.MaxEntries,
	})
}

// NewQueue builds the outbound request queue described by the config.
func (c *Config) NewQueue() *Queue {
	return NewQueue(c.Queue.Interval, c.Queue.Capacity)
}

// BuildFetcher wires sources, cache and queue into a Fetcher.
func (c *Config) BuildFetcher(opts ...FetcherOption) (*Fetcher, error) {
	chain, err := c.BuildChain()
	if err != nil {
		return nil, err
	}
	base := []FetcherOption{WithMockOnFailure(c.MockOnFailure)}
	if c.FetchTimeout > 0 {
		base = append(base, WithFetchTimeout(c.FetchTimeout))
	}
	return NewFetcher(chain, c.NewCache(), c.NewQueue(), append(base, opts...)...), nil
}
