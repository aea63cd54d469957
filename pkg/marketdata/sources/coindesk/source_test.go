package coindesk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptodash-api/pkg/marketdata"
	"cryptodash-api/pkg/marketdata/sources/restclient"
)

func TestFetchChartHours(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index/cc/v1/historical/hours", r.URL.Path)
		assert.Equal(t, "Apikey cd-key", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "cadli", q.Get("market"))
		assert.Equal(t, "SOL-USD", q.Get("instrument"))
		assert.Equal(t, "72", q.Get("limit"))
		_, _ = w.Write([]byte(`{"Data":[
			{"TIMESTAMP":1714521600,"CLOSE":140.5,"QUOTE_VOLUME":1.5e8},
			{"TIMESTAMP":1714525200,"CLOSE":141.25,"QUOTE_VOLUME":1.6e8}
		],"Err":{}}`))
	}))
	defer server.Close()

	src := New("cd-key", WithClientOptions(restclient.WithBaseURL(server.URL)))
	chart, err := src.FetchChart(context.Background(), marketdata.Request{CoinID: "solana", Days: 3, Currency: "usd"})
	require.NoError(t, err)
	require.Len(t, chart.Prices, 2)
	assert.Equal(t, int64(1714521600000), chart.Prices[0].Time)
	assert.InDelta(t, 141.25, chart.Last(), 1e-9)
	assert.InDelta(t, 1.6e8, chart.TotalVolumes[1].Value, 1)
}

func TestFetchChartDaysAndMarket(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index/cc/v1/historical/days", r.URL.Path)
		assert.Equal(t, "ccix", r.URL.Query().Get("market"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"Data":[{"TIMESTAMP":1714521600,"CLOSE":1.0}],"Err":{}}`))
	}))
	defer server.Close()

	src := New("", WithMarket("CCIX"), WithClientOptions(restclient.WithBaseURL(server.URL)))
	_, err := src.FetchChart(context.Background(), marketdata.Request{CoinID: "bitcoin", Days: 60, Currency: "usd"})
	require.NoError(t, err)
}

func TestFetchChartAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Data":[],"Err":{"type":2,"message":"instrument not found"}}`))
	}))
	defer server.Close()

	src := New("", WithClientOptions(restclient.WithBaseURL(server.URL)))
	_, err := src.FetchChart(context.Background(), marketdata.Request{CoinID: "bitcoin", Days: 1, Currency: "xyz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instrument not found")
}
