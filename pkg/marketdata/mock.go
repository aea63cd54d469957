package marketdata

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// MockGenerator produces synthetic placeholder charts when every source is
// down. Output is deterministic for a request key and resolution step.
type MockGenerator struct {
	now func() time.Time
}

// NewMockGenerator builds a generator; now defaults to time.Now.
func NewMockGenerator(now func() time.Time) *MockGenerator {
	if now == nil {
		now = time.Now
	}
	return &MockGenerator{now: now}
}

// Generate returns a random walk ending at the current step.
func (g *MockGenerator) Generate(req Request) *Chart {
	req = req.Normalize()
	res := ResolutionFor(req.Days)
	seed := seedFor(req.Key())
	rng := rand.New(rand.NewSource(seed))

	info, ok := coinDirectory[req.CoinID]
	if !ok {
		info = coinInfo{BasePrice: 1 + float64(seed%1000)/10, Supply: 1e9}
	}
	volatility := 0.008
	if !res.Hourly() {
		volatility = 0.03
	}

	end := g.now().Truncate(res.Step)
	start := end.Add(-time.Duration(res.Points-1) * res.Step)
	chart := &Chart{
		Prices:       make([]Point, 0, res.Points),
		MarketCaps:   make([]Point, 0, res.Points),
		TotalVolumes: make([]Point, 0, res.Points),
	}
	price := info.BasePrice * (0.9 + 0.2*rng.Float64())
	for i := 0; i < res.Points; i++ {
		ts := start.Add(time.Duration(i) * res.Step).UnixMilli()
		price *= 1 + (rng.Float64()-0.5)*2*volatility
		price = math.Max(price, info.BasePrice*0.05)
		marketCap := price * info.Supply
		chart.Prices = append(chart.Prices, Point{Time: ts, Value: price})
		chart.MarketCaps = append(chart.MarketCaps, Point{Time: ts, Value: marketCap})
		chart.TotalVolumes = append(chart.TotalVolumes, Point{Time: ts, Value: marketCap * (0.02 + 0.04*rng.Float64())})
	}
	return chart
}

func seedFor(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & math.MaxInt64)
}
