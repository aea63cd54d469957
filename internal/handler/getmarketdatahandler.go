package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"cryptodash-api/internal/logic/market"
	"cryptodash-api/internal/svc"
	"cryptodash-api/internal/types"
)

func GetMarketDataHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.MarketDataRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeBadRequest(w, r, err)
			return
		}

		l := market.NewGetMarketDataLogic(r.Context(), svcCtx)
		resp, err := l.GetMarketData(&req)
		if err != nil {
			writeError(w, r, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
