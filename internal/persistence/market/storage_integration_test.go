//go:build integration
// +build integration

package marketpersist_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "cryptodash-api/internal/config"
	"cryptodash-api/internal/svc"
	"cryptodash-api/pkg/confkit"
	"cryptodash-api/pkg/marketdata"
)

func newIntegrationServiceContext(t *testing.T) *svc.ServiceContext {
	t.Helper()
	cfg := appconfig.MustLoad(confkit.ProjectPath("etc/cryptodash.yaml"))
	sc, err := svc.New(*cfg)
	require.NoError(t, err)
	t.Cleanup(sc.Stop)
	return sc
}

func integrationRequest() marketdata.Request {
	return marketdata.Request{
		CoinID:   fmt.Sprintf("itest-%d", time.Now().UnixNano()),
		Days:     7,
		Currency: "usd",
	}
}

func integrationEntry(t *testing.T, at time.Time, last float64) marketdata.CacheEntry {
	t.Helper()
	chart := &marketdata.Chart{Prices: []marketdata.Point{
		{Time: at.Add(-time.Hour).UnixMilli(), Value: last - 1},
		{Time: at.UnixMilli(), Value: last},
	}}
	hash, err := marketdata.ContentHash(chart)
	require.NoError(t, err)
	return marketdata.CacheEntry{Chart: chart, Source: "integration", Hash: hash, FetchedAt: at, UpdatedAt: at}
}

func TestPostgresChartRoundTrip(t *testing.T) {
	sc := newIntegrationServiceContext(t)
	if sc.MarketChartsModel == nil {
		t.Skip("Postgres not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req := integrationRequest()
	older := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	newer := older.Add(30 * time.Minute)
	require.NoError(t, sc.Persistence.RecordChart(ctx, req, integrationEntry(t, newer, 200)))
	require.NoError(t, sc.Persistence.RecordChart(ctx, req, integrationEntry(t, older, 100)))
	defer sc.MarketChartsModel.Delete(context.Background(), req.Key())

	row, err := sc.MarketChartsModel.FindOne(ctx, req.Key())
	require.NoError(t, err)
	assert.InDelta(t, 200, row.LastPrice.Float64, 1e-9, "older fetch must not overwrite a newer row")

	rows, err := sc.MarketChartsModel.ListByCoins(ctx, []string{req.CoinID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, req.Key(), rows[0].CacheKey)
}

func TestRedisChartRoundTrip(t *testing.T) {
	sc := newIntegrationServiceContext(t)
	if sc.Redis == nil {
		t.Skip("Redis not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req := integrationRequest()
	at := time.Now().UTC().Truncate(time.Millisecond)
	entry := integrationEntry(t, at, 42)
	require.NoError(t, sc.Persistence.RecordChart(ctx, req, entry))
	if sc.MarketChartsModel != nil {
		defer sc.MarketChartsModel.Delete(context.Background(), req.Key())
	}

	got, err := sc.Persistence.LoadChart(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.Hash, got.Hash)
	assert.True(t, at.Equal(got.FetchedAt))
}
