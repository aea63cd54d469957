package model

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

var _ MarketChartsModel = (*customMarketChartsModel)(nil)

type (
	// MarketChartsModel is an interface to be customized, add more methods here,
	// and implement the added methods in customMarketChartsModel.
	MarketChartsModel interface {
		marketChartsModel
		Upsert(ctx context.Context, data *MarketCharts) error
		ListByCoins(ctx context.Context, coinIDs []string) ([]*MarketCharts, error)
		DeleteFetchedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	customMarketChartsModel struct {
		*defaultMarketChartsModel
	}
)

// NewMarketChartsModel returns a model for the database table.
func NewMarketChartsModel(conn sqlx.SqlConn) MarketChartsModel {
	return &customMarketChartsModel{
		defaultMarketChartsModel: newMarketChartsModel(conn),
	}
}

// Upsert writes the latest chart for a cache key. Rows are only rewritten
// when the incoming fetch is not older than what is stored.
func (m *customMarketChartsModel) Upsert(ctx context.Context, data *MarketCharts) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
    cache_key, coin_id, days, currency, source, hash, payload, point_count, last_price, fetched_at, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()
)
ON CONFLICT (cache_key) DO UPDATE SET
    source = EXCLUDED.source,
    hash = EXCLUDED.hash,
    payload = EXCLUDED.payload,
    point_count = EXCLUDED.point_count,
    last_price = EXCLUDED.last_price,
    fetched_at = EXCLUDED.fetched_at,
    updated_at = NOW()
WHERE %s.fetched_at <= EXCLUDED.fetched_at`, m.table, m.table)

	if _, err := m.conn.ExecCtx(ctx, query,
		data.CacheKey,
		data.CoinId,
		data.Days,
		data.Currency,
		data.Source,
		data.Hash,
		data.Payload,
		data.PointCount,
		data.LastPrice,
		data.FetchedAt,
	); err != nil {
		return fmt.Errorf("market_charts.Upsert %s: %w", data.CacheKey, err)
	}
	return nil
}

// ListByCoins returns the stored charts for the given coins, newest first.
// An empty coinIDs returns every row.
func (m *customMarketChartsModel) ListByCoins(ctx context.Context, coinIDs []string) ([]*MarketCharts, error) {
	const baseQuery = `
SELECT %s
FROM %s
%s
ORDER BY coin_id, fetched_at DESC`

	var (
		args   []any
		clause string
	)
	if len(coinIDs) > 0 {
		clause = "WHERE coin_id = ANY($1)"
		args = append(args, pq.Array(coinIDs))
	}

	var rows []*MarketCharts
	query := fmt.Sprintf(baseQuery, marketChartsRows, m.table, clause)
	if err := m.conn.QueryRowsCtx(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("market_charts.ListByCoins query: %w", err)
	}
	return rows, nil
}

// DeleteFetchedBefore prunes charts last fetched before the cutoff.
func (m *customMarketChartsModel) DeleteFetchedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE fetched_at < $1", m.table)
	res, err := m.conn.ExecCtx(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("market_charts.DeleteFetchedBefore: %w", err)
	}
	return res.RowsAffected()
}
