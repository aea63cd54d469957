package marketpersist

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	cachekeys "cryptodash-api/internal/cache"
	"cryptodash-api/internal/model"
	"cryptodash-api/pkg/marketdata"
)

// ChartStore is the durable chart table. model.MarketChartsModel satisfies it.
type ChartStore interface {
	FindOne(ctx context.Context, cacheKey string) (*model.MarketCharts, error)
	Upsert(ctx context.Context, data *model.MarketCharts) error
}

// ChartCache is the shared Redis tier. go-zero's cache.Cache satisfies it.
type ChartCache interface {
	GetCtx(ctx context.Context, key string, val any) error
	SetWithExpireCtx(ctx context.Context, key string, val any, expire time.Duration) error
	DelCtx(ctx context.Context, keys ...string) error
	IsNotFound(err error) bool
}

// Service persists charts to Postgres and mirrors them into Redis so other
// API replicas can serve them without a network fetch.
type Service struct {
	store ChartStore
	cache ChartCache
	ttl   cachekeys.TTLSet
}

// Config enumerates dependencies required to persist charts.
type Config struct {
	Store ChartStore
	Cache ChartCache
	TTL   cachekeys.TTLSet
}

// cachedChart is the Redis representation of a stored chart.
type cachedChart struct {
	Source    string `json:"source"`
	Hash      string `json:"hash"`
	FetchedAt int64  `json:"fetched_at"`
	Payload   []byte `json:"payload"`
}

type latestPrice struct {
	Price  float64 `json:"price"`
	Source string  `json:"source"`
	TsMs   int64   `json:"ts"`
}

// NewService wires a chart persistence service. Returns nil when neither a
// store nor a cache is available.
func NewService(cfg Config) marketdata.Persistence {
	if cfg.Store == nil && cfg.Cache == nil {
		return nil
	}
	return &Service{
		store: cfg.Store,
		cache: cfg.Cache,
		ttl:   cfg.TTL,
	}
}

// RecordChart upserts the chart into Postgres, then refreshes Redis.
func (s *Service) RecordChart(ctx context.Context, req marketdata.Request, entry marketdata.CacheEntry) error {
	if s == nil || entry.Chart == nil {
		return nil
	}
	payload, err := marketdata.EncodeChart(entry.Chart)
	if err != nil {
		return err
	}
	key := req.Key()
	fetchedAt := entry.FetchedAt.UTC()
	if s.store != nil {
		row := &model.MarketCharts{
			CacheKey:   key,
			CoinId:     req.CoinID,
			Days:       int64(req.Days),
			Currency:   req.Currency,
			Source:     entry.Source,
			Hash:       entry.Hash,
			Payload:    payload,
			PointCount: int64(len(entry.Chart.Prices)),
			FetchedAt:  fetchedAt,
		}
		if len(entry.Chart.Prices) > 0 {
			row.LastPrice = sql.NullFloat64{Float64: entry.Chart.Last(), Valid: true}
		}
		if err := s.store.Upsert(ctx, row); err != nil {
			return err
		}
	}
	s.cacheChart(ctx, key, cachedChart{
		Source:    entry.Source,
		Hash:      entry.Hash,
		FetchedAt: fetchedAt.UnixMilli(),
		Payload:   payload,
	})
	s.cacheLatestPrice(ctx, req, entry, fetchedAt)
	return nil
}

// LoadChart reads Redis first and falls back to Postgres, re-warming Redis on
// a database hit. It returns nil, nil when nothing is stored.
func (s *Service) LoadChart(ctx context.Context, req marketdata.Request) (*marketdata.CacheEntry, error) {
	if s == nil {
		return nil, nil
	}
	key := req.Key()
	if s.cache != nil {
		var cached cachedChart
		err := s.cache.GetCtx(ctx, cachekeys.ChartKey(key), &cached)
		switch {
		case err == nil:
			entry, decodeErr := entryFromCache(cached)
			if decodeErr == nil {
				return entry, nil
			}
			logx.WithContext(ctx).Errorf("marketpersist: drop corrupt cached chart key=%s err=%v", key, decodeErr)
			_ = s.cache.DelCtx(ctx, cachekeys.ChartKey(key))
		case !s.cache.IsNotFound(err):
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logx.WithContext(ctx).Errorf("marketpersist: cache get key=%s err=%v", key, err)
		}
	}
	if s.store == nil {
		return nil, nil
	}

	row, err := s.store.FindOne(ctx, key)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	chart, err := marketdata.DecodeChart(row.Payload)
	if err != nil {
		return nil, err
	}
	s.cacheChart(ctx, key, cachedChart{
		Source:    row.Source,
		Hash:      row.Hash,
		FetchedAt: row.FetchedAt.UnixMilli(),
		Payload:   row.Payload,
	})
	return &marketdata.CacheEntry{
		Chart:     chart,
		Source:    row.Source,
		Hash:      row.Hash,
		FetchedAt: row.FetchedAt,
		UpdatedAt: row.FetchedAt,
	}, nil
}

func entryFromCache(cached cachedChart) (*marketdata.CacheEntry, error) {
	chart, err := marketdata.DecodeChart(cached.Payload)
	if err != nil {
		return nil, err
	}
	at := time.UnixMilli(cached.FetchedAt).UTC()
	return &marketdata.CacheEntry{
		Chart:     chart,
		Source:    cached.Source,
		Hash:      cached.Hash,
		FetchedAt: at,
		UpdatedAt: at,
	}, nil
}

func (s *Service) cacheChart(ctx context.Context, key string, payload cachedChart) {
	if s.cache == nil {
		return
	}
	ttl := cachekeys.ChartTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	if err := s.cache.SetWithExpireCtx(ctx, cachekeys.ChartKey(key), payload, ttl); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: cache chart key=%s err=%v", key, err)
	}
}

func (s *Service) cacheLatestPrice(ctx context.Context, req marketdata.Request, entry marketdata.CacheEntry, at time.Time) {
	if s.cache == nil || len(entry.Chart.Prices) == 0 {
		return
	}
	ttl := cachekeys.LatestPriceTTL(s.ttl)
	if ttl <= 0 {
		return
	}
	key := cachekeys.LatestPriceKey(req.CoinID, req.Currency)
	payload := latestPrice{Price: entry.Chart.Last(), Source: entry.Source, TsMs: at.UnixMilli()}
	if err := s.cache.SetWithExpireCtx(ctx, key, payload, ttl); err != nil {
		logx.WithContext(ctx).Errorf("marketpersist: cache price key=%s err=%v", key, err)
	}
}
