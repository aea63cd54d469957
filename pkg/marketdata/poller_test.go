package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFetcher struct {
	mu    sync.Mutex
	keys  []string
	force []bool
	err   error
}

func (r *recordingFetcher) FetchMarketData(ctx context.Context, coinID string, days int, currency string, force bool) (*Result, error) {
	r.mu.Lock()
	r.keys = append(r.keys, Request{CoinID: coinID, Days: days, Currency: currency}.Key())
	r.force = append(r.force, force)
	r.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("poll without deadline")
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Result{Source: "coingecko"}, nil
}

func (r *recordingFetcher) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestPollerPollOnce(t *testing.T) {
	fetcher := &recordingFetcher{}
	var reports []PollReport
	poller := NewPoller(fetcher, WatchConfig{
		Force: true,
		Items: []WatchItem{
			{CoinID: "bitcoin", Days: 1},
			{CoinID: "BITCOIN", Days: 1, Currency: "usd"},
			{CoinID: "solana", Days: 30},
		},
	}, WithPollReporter(func(r PollReport) { reports = append(reports, r) }))

	poller.PollOnce(context.Background())
	assert.Equal(t, []string{"bitcoin:1:usd", "solana:30:usd"}, fetcher.Keys())
	assert.Equal(t, []bool{true, true}, fetcher.force)
	require.Len(t, reports, 2)
	assert.NoError(t, reports[0].Err)
	assert.Equal(t, "coingecko", reports[1].Result.Source)
}

func TestPollerReportsErrors(t *testing.T) {
	fetcher := &recordingFetcher{err: ErrAllSourcesFailed}
	var reports []PollReport
	poller := NewPoller(fetcher, WatchConfig{Items: []WatchItem{{CoinID: "bitcoin", Days: 1}}},
		WithPollReporter(func(r PollReport) { reports = append(reports, r) }))

	poller.PollOnce(context.Background())
	require.Len(t, reports, 1)
	assert.ErrorIs(t, reports[0].Err, ErrAllSourcesFailed)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	fetcher := &recordingFetcher{}
	poller := NewPoller(fetcher, WatchConfig{
		Interval: 10 * time.Millisecond,
		Items:    []WatchItem{{CoinID: "bitcoin", Days: 1}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(fetcher.Keys()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}
}
