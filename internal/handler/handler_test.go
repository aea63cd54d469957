package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/collection"
	"github.com/zeromicro/go-zero/rest/pathvar"

	"cryptodash-api/internal/svc"
	"cryptodash-api/internal/types"
	"cryptodash-api/pkg/marketdata"
)

type stubSource struct {
	chart *marketdata.Chart
	err   error
	calls atomic.Int32
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchChart(_ context.Context, _ marketdata.Request) (*marketdata.Chart, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.chart.Clone(), nil
}

func sampleChart() *marketdata.Chart {
	return &marketdata.Chart{
		Prices:       []marketdata.Point{{Time: 1714521600000, Value: 63000}, {Time: 1714525200000, Value: 63120.5}},
		TotalVolumes: []marketdata.Point{{Time: 1714521600000, Value: 1e9}, {Time: 1714525200000, Value: 1.1e9}},
	}
}

func newTestContext(t *testing.T, src marketdata.Source, mockOnFailure bool) *svc.ServiceContext {
	t.Helper()
	var sources []marketdata.Source
	if src != nil {
		sources = append(sources, src)
	}
	hub := marketdata.NewHub(8)
	fetcher := marketdata.NewFetcher(sources,
		marketdata.NewCache(marketdata.CacheOptions{TTL: time.Minute}),
		marketdata.NewQueue(time.Millisecond, 0),
		marketdata.WithHub(hub),
		marketdata.WithMockOnFailure(mockOnFailure),
	)
	t.Cleanup(fetcher.Close)
	return &svc.ServiceContext{
		Fetcher:    fetcher,
		Hub:        hub,
		Reconciler: marketdata.NewReconciler(fetcher.Cache(), hub, 2, time.Minute),
	}
}

func getMarket(t *testing.T, sc *svc.ServiceContext, ctx context.Context, coin, query string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/market/"+coin+query, nil).WithContext(ctx)
	req = pathvar.WithVars(req, map[string]string{"coinId": coin})
	rr := httptest.NewRecorder()
	GetMarketDataHandler(sc)(rr, req)
	return rr
}

func TestGetMarketData(t *testing.T) {
	src := &stubSource{chart: sampleChart()}
	sc := newTestContext(t, src, true)

	rr := getMarket(t, sc, context.Background(), "bitcoin", "?days=7")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp types.MarketDataResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "bitcoin", resp.CoinID)
	assert.Equal(t, 7, resp.Days)
	assert.Equal(t, "usd", resp.Currency)
	assert.Equal(t, "stub", resp.DataSource)
	assert.False(t, resp.FromCache)
	assert.False(t, resp.IsMockData)
	assert.NotEmpty(t, resp.Hash)
	require.Len(t, resp.Prices, 2)
	assert.Equal(t, [2]float64{1714525200000, 63120.5}, resp.Prices[1])
	assert.Contains(t, rr.Body.String(), `"prices":[[1714521600000,63000]`)

	rr = getMarket(t, sc, context.Background(), "bitcoin", "?days=7")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.FromCache)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestGetMarketDataDefaults(t *testing.T) {
	sc := newTestContext(t, &stubSource{chart: sampleChart()}, true)

	rr := getMarket(t, sc, context.Background(), "Ethereum", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp types.MarketDataResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ethereum", resp.CoinID)
	assert.Equal(t, 30, resp.Days)
	assert.Equal(t, "usd", resp.Currency)
}

func TestGetMarketDataInvalidCoin(t *testing.T) {
	sc := newTestContext(t, &stubSource{chart: sampleChart()}, true)

	rr := getMarket(t, sc, context.Background(), "bad:coin", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid coin id")
}

func TestGetMarketDataAllSourcesFailed(t *testing.T) {
	sc := newTestContext(t, &stubSource{err: errors.New("upstream 502")}, false)

	rr := getMarket(t, sc, context.Background(), "bitcoin", "?days=1")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "all sources failed")
}

func TestGetMarketDataMockFallback(t *testing.T) {
	sc := newTestContext(t, &stubSource{err: errors.New("upstream 502")}, true)

	rr := getMarket(t, sc, context.Background(), "bitcoin", "?days=1")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp types.MarketDataResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.IsMockData)
	assert.Equal(t, marketdata.SourceMock, resp.DataSource)
	assert.NotEmpty(t, resp.Prices)
}

func TestGetMarketDataAbortedHasNoBody(t *testing.T) {
	sc := newTestContext(t, &stubSource{chart: sampleChart()}, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rr := getMarket(t, sc, ctx, "bitcoin", "")
	assert.Equal(t, statusClientClosedRequest, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func postPush(t *testing.T, sc *svc.ServiceContext, body string) (*httptest.ResponseRecorder, types.PushResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/market/push", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	PushMarketDataHandler(sc)(rr, req)

	var resp types.PushResponse
	if rr.Code == http.StatusOK || rr.Code == http.StatusTooManyRequests {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	}
	return rr, resp
}

func TestPushMarketData(t *testing.T) {
	sc := newTestContext(t, &stubSource{chart: sampleChart()}, true)
	sub := sc.Hub.Subscribe("bitcoin:1:usd")
	defer sub.Cancel()

	push := `{"coinId":"bitcoin","days":1,"currency":"usd","source":"pusher",
		"prices":[[1714521600000,63000],[1714525200000,63500]]}`
	rr, resp := postPush(t, sc, push)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, resp.Accepted)
	assert.Equal(t, marketdata.ReasonAccepted, resp.Reason)
	assert.Equal(t, "bitcoin:1:usd", resp.Key)

	select {
	case u := <-sub.Updates:
		assert.Equal(t, marketdata.OriginRealtime, u.Origin)
		assert.Equal(t, "pusher", u.Source)
	case <-time.After(time.Second):
		t.Fatal("expected hub update")
	}

	rr, resp = postPush(t, sc, push)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, resp.Accepted)
	assert.Equal(t, marketdata.ReasonUnchanged, resp.Reason)

	// The pushed chart now serves reads without a network call.
	got := getMarket(t, sc, context.Background(), "bitcoin", "?days=1")
	require.Equal(t, http.StatusOK, got.Code)
	assert.Contains(t, got.Body.String(), `"source":"pusher"`)
}

func TestPushMarketDataRateLimited(t *testing.T) {
	sc := newTestContext(t, nil, true)

	var last *httptest.ResponseRecorder
	var resp types.PushResponse
	for i := 0; i < 3; i++ {
		last, resp = postPush(t, sc, fmt.Sprintf(`{"coinId":"bitcoin","days":1,"prices":[[1714521600000,%d]]}`, 63000+i))
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, marketdata.ReasonRateLimited, resp.Reason)
}

func TestPushMarketDataRejectsEmptyChart(t *testing.T) {
	sc := newTestContext(t, nil, true)

	rr, _ := postPush(t, sc, `{"coinId":"bitcoin","days":1,"prices":[]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealth(t *testing.T) {
	sc := newTestContext(t, &stubSource{chart: sampleChart()}, true)
	getMarket(t, sc, context.Background(), "bitcoin", "?days=1")

	rr := httptest.NewRecorder()
	HealthHandler(sc)(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp types.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"stub"}, resp.Sources)
	assert.Equal(t, 1, resp.CacheEntries)
	assert.Equal(t, int64(1), resp.Fetcher.NetworkCalls)
	assert.Equal(t, "disabled", resp.Realtime.State)
	assert.False(t, resp.Persistence)
}

func TestHealthIsMemoised(t *testing.T) {
	sc := newTestContext(t, &stubSource{chart: sampleChart()}, true)
	hc, err := collection.NewCache(time.Minute)
	require.NoError(t, err)
	sc.HealthCache = hc

	health := func() types.HealthResponse {
		rr := httptest.NewRecorder()
		HealthHandler(sc)(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		var resp types.HealthResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		return resp
	}

	assert.Equal(t, 0, health().CacheEntries)
	getMarket(t, sc, context.Background(), "bitcoin", "?days=1")
	assert.Equal(t, 0, health().CacheEntries, "served from the health cache")
}

func TestHealthDegradedWithoutSources(t *testing.T) {
	sc := newTestContext(t, nil, true)

	rr := httptest.NewRecorder()
	HealthHandler(sc)(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"degraded"`)
}

func TestStreamForwardsMatchingUpdates(t *testing.T) {
	sc := newTestContext(t, nil, true)
	server := httptest.NewServer(StreamHandler(sc))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/stream?key=bitcoin:1:usd"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return sc.Hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	sc.Hub.Publish(marketdata.Update{Key: "ethereum:1:usd", Source: "stub", Origin: marketdata.OriginFetch})
	sc.Hub.Publish(marketdata.Update{
		Key:    "bitcoin:1:usd",
		Source: "stub",
		Hash:   "abc",
		Origin: marketdata.OriginFetch,
		Chart:  sampleChart(),
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev types.StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "bitcoin:1:usd", ev.Key)
	assert.Equal(t, "update", ev.Type)
	assert.Equal(t, "abc", ev.Hash)
	assert.Len(t, ev.Prices, 2)

	sc.Hub.Notify(marketdata.Notice{Level: marketdata.NoticeWarning, Message: "Live updates are unavailable."})
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "notice", ev.Type)
	assert.Equal(t, "warning", ev.Level)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return sc.Hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}
