package cache

import (
	"strings"
	"time"

	"cryptodash-api/internal/config"
)

// Namespace is the Redis key prefix for the dashboard API.
const Namespace = "cryptodash"

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Chart  time.Duration
	Health time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Chart:  durationOrDefault(cfg.Chart, 10*time.Minute),
		Health: durationOrDefault(cfg.Health, 5*time.Second),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// ChartKey holds the last persisted chart for a request key (coin:days:currency).
func ChartKey(requestKey string) string {
	return formatKey("chart", requestKey)
}

// LatestPriceKey holds the most recent price seen for a coin in a currency.
func LatestPriceKey(coinID, currency string) string {
	return formatKey("price", "latest", coinID, currency)
}

// ChartTTL returns how long shared chart payloads live in Redis.
func ChartTTL(ttl TTLSet) time.Duration {
	return ttl.Chart
}

// LatestPriceTTL keeps latest prices around twice as long as the chart itself
// so the dashboard ticker survives a cold chart key.
func LatestPriceTTL(ttl TTLSet) time.Duration {
	if ttl.Chart <= 0 {
		return 0
	}
	return 2 * ttl.Chart
}
