package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"

	"cryptodash-api/internal/logic/market"
	"cryptodash-api/internal/svc"
	"cryptodash-api/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func StreamHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.StreamRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeBadRequest(w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error.
			logx.WithContext(r.Context()).Errorf("stream upgrade: %v", err)
			return
		}
		l := market.NewStreamLogic(r.Context(), svcCtx)
		if err := l.Stream(conn, &req); err != nil {
			l.Infof("stream closed: %v", err)
		}
	}
}
