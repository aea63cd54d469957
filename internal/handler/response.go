package handler

import (
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"

	"cryptodash-api/internal/types"
	"cryptodash-api/pkg/marketdata"
)

// statusClientClosedRequest marks requests the caller abandoned.
const statusClientClosedRequest = 499

// writeError maps pipeline errors to HTTP statuses. Aborted requests get a
// bare status line since nobody is reading the body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if marketdata.IsAborted(err) {
		logx.WithContext(r.Context()).Debugf("request aborted %s: %v", r.URL.Path, err)
		w.WriteHeader(statusClientClosedRequest)
		return
	}
	httpx.WriteJsonCtx(r.Context(), w, statusFor(err), types.ErrorResponse{Error: err.Error()})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteJsonCtx(r.Context(), w, http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, marketdata.ErrInvalidRequest), errors.Is(err, marketdata.ErrUnsupportedCoin):
		return http.StatusBadRequest
	case errors.Is(err, marketdata.ErrAllSourcesFailed), errors.Is(err, marketdata.ErrQueueClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
