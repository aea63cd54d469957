package handler

import (
	"net/http"

	"cryptodash-api/internal/svc"

	"github.com/zeromicro/go-zero/rest"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/market/:coinId",
				Handler: GetMarketDataHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/market/push",
				Handler: PushMarketDataHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/stream",
				Handler: StreamHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/health",
				Handler: HealthHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api"),
	)
}
