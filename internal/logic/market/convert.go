package market

import (
	"time"

	"cryptodash-api/internal/types"
	"cryptodash-api/pkg/marketdata"
)

// toPairs renders points as [unix ms, value] pairs.
func toPairs(points []marketdata.Point) [][2]float64 {
	out := make([][2]float64, 0, len(points))
	for _, p := range points {
		out = append(out, [2]float64{float64(p.Time), p.Value})
	}
	return out
}

// fromPairs skips rows that are not [time, value] pairs.
func fromPairs(pairs [][]float64) []marketdata.Point {
	if len(pairs) == 0 {
		return nil
	}
	out := make([]marketdata.Point, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			continue
		}
		out = append(out, marketdata.Point{Time: int64(p[0]), Value: p[1]})
	}
	return out
}

func toMarketDataResponse(res *marketdata.Result) *types.MarketDataResponse {
	resp := &types.MarketDataResponse{
		CoinID:     res.Request.CoinID,
		Days:       res.Request.Days,
		Currency:   res.Request.Currency,
		Source:     res.Source,
		DataSource: res.DataSource(),
		FromCache:  res.FromCache,
		Stale:      res.Stale,
		IsMockData: res.IsMockData,
		Hash:       res.Hash,
		Attempted:  res.Attempted,
	}
	if !res.FetchedAt.IsZero() {
		resp.FetchedAt = res.FetchedAt.UnixMilli()
	}
	chart := res.Chart
	if chart == nil {
		chart = &marketdata.Chart{}
	}
	resp.Prices = toPairs(chart.Prices)
	resp.MarketCaps = toPairs(chart.MarketCaps)
	resp.TotalVolumes = toPairs(chart.TotalVolumes)
	return resp
}

func updateEvent(u marketdata.Update) types.StreamEvent {
	ev := types.StreamEvent{
		Type:   "update",
		Key:    u.Key,
		Source: u.Source,
		Origin: string(u.Origin),
		Hash:   u.Hash,
		At:     u.At.UnixMilli(),
	}
	if u.Chart != nil {
		ev.Prices = toPairs(u.Chart.Prices)
	}
	return ev
}

func noticeEvent(n marketdata.Notice) types.StreamEvent {
	return types.StreamEvent{
		Type:    "notice",
		Key:     n.Key,
		Level:   string(n.Level),
		Message: n.Message,
		At:      n.At.UnixMilli(),
	}
}

func pushMessage(req *types.PushRequest) marketdata.PushMessage {
	msg := marketdata.PushMessage{
		CoinID:   req.CoinID,
		Days:     req.Days,
		Currency: req.Currency,
		Source:   req.Source,
		Chart: &marketdata.Chart{
			Prices:       fromPairs(req.Prices),
			MarketCaps:   fromPairs(req.MarketCaps),
			TotalVolumes: fromPairs(req.TotalVolumes),
		},
	}
	if req.SentAt > 0 {
		msg.SentAt = time.UnixMilli(req.SentAt)
	}
	return msg
}
