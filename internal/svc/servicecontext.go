package svc

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/collection"
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"
	"github.com/zeromicro/go-zero/core/threading"

	cachekeys "cryptodash-api/internal/cache"
	"cryptodash-api/internal/config"
	"cryptodash-api/internal/model"
	marketpersist "cryptodash-api/internal/persistence/market"
	"cryptodash-api/pkg/marketdata"
	_ "cryptodash-api/pkg/marketdata/sources/all"
	"cryptodash-api/pkg/realtime"
)

const hubBuffer = 32

type ServiceContext struct {
	Config config.Config
	TTL    cachekeys.TTLSet

	MarketConfig *marketdata.Config
	Fetcher      *marketdata.Fetcher
	Hub          *marketdata.Hub
	Reconciler   *marketdata.Reconciler
	Poller       *marketdata.Poller
	Realtime     *realtime.Subscriber
	Persistence  marketdata.Persistence
	HealthCache  *collection.Cache

	// Optional backends, nil when not configured.
	DB                *sql.DB
	DBConn            sqlx.SqlConn
	MarketChartsModel model.MarketChartsModel
	Redis             *redis.Redis

	cancel context.CancelFunc
	group  *threading.RoutineGroup
	once   sync.Once
}

// NewServiceContext wires the service and exits the process on failure.
func NewServiceContext(c config.Config) *ServiceContext {
	svc, err := New(c)
	if err != nil {
		log.Fatalf("failed to build service context: %v", err)
	}
	return svc
}

// New wires the market data pipeline and its optional Postgres/Redis backends.
func New(c config.Config) (*ServiceContext, error) {
	marketCfg, err := c.MarketConfig()
	if err != nil {
		return nil, fmt.Errorf("load market config: %w", err)
	}
	svc := &ServiceContext{
		Config:       c,
		TTL:          cachekeys.NewTTLSet(c.TTL),
		MarketConfig: marketCfg,
		Hub:          marketdata.NewHub(hubBuffer),
	}

	if svc.TTL.Health > 0 {
		hc, err := collection.NewCache(svc.TTL.Health, collection.WithName("health"))
		if err != nil {
			return nil, fmt.Errorf("health cache: %w", err)
		}
		svc.HealthCache = hc
	}

	if c.Postgres.DSN != "" {
		db, err := sql.Open("pgx", c.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(c.Postgres.MaxOpen)
		db.SetMaxIdleConns(c.Postgres.MaxIdle)
		svc.DB = db
		svc.DBConn = sqlx.NewSqlConnFromDB(db)
		svc.MarketChartsModel = model.NewMarketChartsModel(svc.DBConn)
	}

	var chartCache gocache.Cache
	if strings.TrimSpace(c.Redis.Host) != "" {
		rds, err := redis.NewRedis(c.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		svc.Redis = rds
		chartCache = gocache.NewNode(rds, syncx.NewSingleFlight(), gocache.NewStat("cryptodash"), model.ErrNotFound)
	}

	persistCfg := marketpersist.Config{TTL: svc.TTL}
	if svc.MarketChartsModel != nil {
		persistCfg.Store = svc.MarketChartsModel
	}
	if chartCache != nil {
		persistCfg.Cache = chartCache
	}
	svc.Persistence = marketpersist.NewService(persistCfg)

	fetcherOpts := []marketdata.FetcherOption{marketdata.WithHub(svc.Hub)}
	reconcilerOpts := []marketdata.ReconcilerOption{}
	if svc.Persistence != nil {
		fetcherOpts = append(fetcherOpts, marketdata.WithPersistence(svc.Persistence))
		reconcilerOpts = append(reconcilerOpts, marketdata.WithReconcilerPersistence(svc.Persistence))
	}
	fetcher, err := marketCfg.BuildFetcher(fetcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("build market fetcher: %w", err)
	}
	svc.Fetcher = fetcher
	svc.Reconciler = marketdata.NewReconciler(fetcher.Cache(), svc.Hub,
		marketCfg.Realtime.MaxUpdates, marketCfg.Realtime.Window, reconcilerOpts...)
	svc.Poller = marketdata.NewPoller(fetcher, marketCfg.Watch)

	if rt := c.RealtimeConfig(); rt.Enabled() {
		svc.Realtime = realtime.NewSubscriber(rt, svc.Reconciler, svc.Hub)
	}
	return svc, nil
}

// Start launches the background loops: cache sweeping, the watch-list poller
// and the realtime subscriber when configured.
func (s *ServiceContext) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.group = threading.NewRoutineGroup()

	s.group.RunSafe(func() {
		s.Fetcher.Cache().Run(ctx, s.MarketConfig.Cache.CleanupInterval)
	})
	if len(s.Poller.Requests()) > 0 {
		s.group.RunSafe(func() {
			s.Poller.Run(ctx)
		})
	}
	if s.Realtime != nil {
		s.group.RunSafe(func() {
			if err := s.Realtime.Run(ctx); err != nil {
				logx.Errorf("realtime subscriber stopped: %v", err)
			}
		})
	}
}

// Stop cancels background loops, waits for them and releases resources.
func (s *ServiceContext) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
			s.group.Wait()
		}
		s.Fetcher.Close()
		if s.DB != nil {
			if err := s.DB.Close(); err != nil {
				logx.Errorf("close postgres: %v", err)
			}
		}
	})
}

// RealtimeStatus reports the subscriber state, or "disabled" when no channel
// is configured.
func (s *ServiceContext) RealtimeStatus() realtime.Status {
	if s.Realtime == nil {
		return realtime.Status{State: realtime.StateDisabled}
	}
	return s.Realtime.Status()
}
