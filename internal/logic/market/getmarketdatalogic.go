package market

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"cryptodash-api/internal/svc"
	"cryptodash-api/internal/types"
	"cryptodash-api/pkg/marketdata"
)

type GetMarketDataLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewGetMarketDataLogic(ctx context.Context, svcCtx *svc.ServiceContext) *GetMarketDataLogic {
	return &GetMarketDataLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *GetMarketDataLogic) GetMarketData(req *types.MarketDataRequest) (*types.MarketDataResponse, error) {
	res, err := l.svcCtx.Fetcher.FetchMarketData(l.ctx, req.CoinID, req.Days, req.Currency, req.Force)
	if err != nil {
		if !marketdata.IsAborted(err) {
			l.Errorf("market data coin=%s days=%d currency=%s: %v", req.CoinID, req.Days, req.Currency, err)
		}
		return nil, err
	}
	if res.Stale || res.IsMockData {
		l.Infof("market data degraded key=%s source=%s stale=%t", res.Request.Key(), res.DataSource(), res.Stale)
	}
	return toMarketDataResponse(res), nil
}
