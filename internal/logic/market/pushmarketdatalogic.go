package market

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"cryptodash-api/internal/svc"
	"cryptodash-api/internal/types"
)

type PushMarketDataLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewPushMarketDataLogic(ctx context.Context, svcCtx *svc.ServiceContext) *PushMarketDataLogic {
	return &PushMarketDataLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// PushMarketData feeds an externally pushed chart through the reconciler, the
// same path the realtime subscriber uses.
func (l *PushMarketDataLogic) PushMarketData(req *types.PushRequest) (*types.PushResponse, error) {
	decision, err := l.svcCtx.Reconciler.Apply(l.ctx, pushMessage(req))
	if err != nil {
		return nil, err
	}
	return &types.PushResponse{
		Accepted: decision.Accepted,
		Reason:   decision.Reason,
		Key:      decision.Key,
		Hash:     decision.Hash,
	}, nil
}
