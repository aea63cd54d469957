package health

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"cryptodash-api/internal/svc"
	"cryptodash-api/internal/types"
	"cryptodash-api/pkg/realtime"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

type HealthLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewHealthLogic(ctx context.Context, svcCtx *svc.ServiceContext) *HealthLogic {
	return &HealthLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

const healthCacheKey = "health"

// Health reports pipeline state, memoised for the health TTL. The service is
// degraded when it can only serve simulated data or live updates have been
// given up on.
func (l *HealthLogic) Health() (*types.HealthResponse, error) {
	if l.svcCtx.HealthCache == nil {
		return l.snapshot(), nil
	}
	v, err := l.svcCtx.HealthCache.Take(healthCacheKey, func() (any, error) {
		return l.snapshot(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.HealthResponse), nil
}

func (l *HealthLogic) snapshot() *types.HealthResponse {
	f := l.svcCtx.Fetcher
	stats := f.Stats()
	rt := l.svcCtx.RealtimeStatus()

	resp := &types.HealthResponse{
		Status:       statusOK,
		Sources:      f.SourceNames(),
		QueuePending: f.Queue().Pending(),
		CacheEntries: f.Cache().Len(),
		Subscribers:  l.svcCtx.Hub.Len(),
		Persistence:  l.svcCtx.Persistence != nil,
		Fetcher: types.FetcherStats{
			NetworkCalls:  stats.NetworkCalls,
			CacheHits:     stats.CacheHits,
			PersistHits:   stats.PersistHits,
			SharedFetches: stats.SharedFetches,
			StaleServes:   stats.StaleServes,
			MockServes:    stats.MockServes,
			Failures:      stats.Failures,
		},
		Realtime: types.RealtimeStatus{
			State:     string(rt.State),
			Failures:  rt.Failures,
			LastError: rt.LastError,
			Received:  rt.Received,
			Accepted:  rt.Accepted,
		},
	}
	if !rt.LastMessageAt.IsZero() {
		resp.Realtime.LastMessageAt = rt.LastMessageAt.UnixMilli()
	}
	if len(resp.Sources) == 0 || rt.State == realtime.StateExhausted {
		resp.Status = statusDegraded
	}
	return resp
}
