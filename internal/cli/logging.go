package cli

import (
	"fmt"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"cryptodash-api/internal/config"
	"cryptodash-api/pkg/confkit"
)

// ConfigSummaryLines returns human readable lines describing the loaded app config.
func ConfigSummaryLines(cfg *config.Config) []string {
	if cfg == nil {
		return []string{"Configuration: <nil>"}
	}

	lines := []string{
		fmt.Sprintf("Environment: %s", cfg.Env),
		fmt.Sprintf("Listen: %s:%d", cfg.Host, cfg.Port),
		fmt.Sprintf("Postgres: %s", presence(cfg.Postgres.DSN != "")),
		fmt.Sprintf("Redis: %s", presence(strings.TrimSpace(cfg.Redis.Host) != "")),
		fmt.Sprintf("TTL (chart/health): %ds / %ds", cfg.TTL.Chart, cfg.TTL.Health),
		sectionLine("Market config", cfg.Market),
		sectionLine("Realtime config", cfg.Realtime),
	}
	if m := cfg.Market.Value; m != nil {
		lines = append(lines,
			fmt.Sprintf("Source order: %s", strings.Join(m.Order(), " -> ")),
			fmt.Sprintf("Mock on failure: %t", m.MockOnFailure),
			fmt.Sprintf("Watched charts: %d", len(m.Watch.Requests())),
		)
	}
	if rt := cfg.RealtimeConfig(); rt.Enabled() {
		lines = append(lines, fmt.Sprintf("Realtime channel: %s (max %d attempts)", rt.Channel, rt.MaxAttempts))
	}
	return lines
}

// LogConfigSummary emits the configuration summary using logx.
func LogConfigSummary(cfg *config.Config) {
	lines := ConfigSummaryLines(cfg)
	if len(lines) == 0 {
		return
	}
	logx.Info("configuration summary")
	for _, line := range lines {
		logx.Infof("config • %s", line)
	}
}

func presence(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func sectionLine[T any](name string, section confkit.Section[T]) string {
	switch {
	case strings.TrimSpace(section.File) != "":
		return fmt.Sprintf("%s: %s", name, section.File)
	case section.Value != nil:
		return fmt.Sprintf("%s: inline", name)
	default:
		return fmt.Sprintf("%s: not configured", name)
	}
}
