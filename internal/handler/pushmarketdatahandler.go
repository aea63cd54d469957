package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"cryptodash-api/internal/logic/market"
	"cryptodash-api/internal/svc"
	"cryptodash-api/internal/types"
	"cryptodash-api/pkg/marketdata"
)

func PushMarketDataHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.PushRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeBadRequest(w, r, err)
			return
		}

		l := market.NewPushMarketDataLogic(r.Context(), svcCtx)
		resp, err := l.PushMarketData(&req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		status := http.StatusOK
		if !resp.Accepted && resp.Reason == marketdata.ReasonRateLimited {
			status = http.StatusTooManyRequests
		}
		httpx.WriteJsonCtx(r.Context(), w, status, resp)
	}
}
