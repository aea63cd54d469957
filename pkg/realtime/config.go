package realtime

import "time"

// Config describes the realtime pub/sub channel the subscriber connects to.
type Config struct {
	URL              string        `json:",optional"`
	APIKey           string        `json:",optional"`
	Channel          string        `json:",optional"`
	MaxAttempts      int           `json:",default=5"`
	BackoffMin       time.Duration `json:",default=1s"`
	BackoffMax       time.Duration `json:",default=30s"`
	HandshakeTimeout time.Duration `json:",default=10s"`
	PingInterval     time.Duration `json:",default=30s"`
	ReadTimeout      time.Duration `json:",default=90s"`
}

// Enabled reports whether a channel URL is configured.
func (c Config) Enabled() bool { return c.URL != "" }

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = time.Second
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = 30 * c.BackoffMin
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * c.PingInterval
	}
	return c
}
