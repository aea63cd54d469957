package types

type MarketDataRequest struct {
	CoinID   string `path:"coinId"`
	Days     int    `form:"days,default=30"`
	Currency string `form:"currency,default=usd"`
	Force    bool   `form:"force,optional"`
}

type MarketDataResponse struct {
	CoinID       string       `json:"coinId"`
	Days         int          `json:"days"`
	Currency     string       `json:"currency"`
	Source       string       `json:"source"`
	DataSource   string       `json:"dataSource"`
	FromCache    bool         `json:"fromCache"`
	Stale        bool         `json:"stale"`
	IsMockData   bool         `json:"isMockData"`
	Hash         string       `json:"hash"`
	FetchedAt    int64        `json:"fetchedAt"`
	Attempted    []string     `json:"attempted,omitempty"`
	Prices       [][2]float64 `json:"prices"`
	MarketCaps   [][2]float64 `json:"marketCaps"`
	TotalVolumes [][2]float64 `json:"totalVolumes"`
}

type PushRequest struct {
	CoinID       string      `json:"coinId"`
	Days         int         `json:"days"`
	Currency     string      `json:"currency,default=usd"`
	Source       string      `json:"source,optional"`
	Prices       [][]float64 `json:"prices"`
	MarketCaps   [][]float64 `json:"marketCaps,optional"`
	TotalVolumes [][]float64 `json:"totalVolumes,optional"`
	SentAt       int64       `json:"sentAt,optional"`
}

type PushResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
	Key      string `json:"key"`
	Hash     string `json:"hash,omitempty"`
}

type StreamRequest struct {
	Key string `form:"key,optional"`
}

type StreamEvent struct {
	Type    string       `json:"type"` // update | notice
	Key     string       `json:"key,omitempty"`
	Source  string       `json:"source,omitempty"`
	Origin  string       `json:"origin,omitempty"`
	Hash    string       `json:"hash,omitempty"`
	Level   string       `json:"level,omitempty"`
	Message string       `json:"message,omitempty"`
	At      int64        `json:"at"`
	Prices  [][2]float64 `json:"prices,omitempty"`
}

type FetcherStats struct {
	NetworkCalls  int64 `json:"networkCalls"`
	CacheHits     int64 `json:"cacheHits"`
	PersistHits   int64 `json:"persistHits"`
	SharedFetches int64 `json:"sharedFetches"`
	StaleServes   int64 `json:"staleServes"`
	MockServes    int64 `json:"mockServes"`
	Failures      int64 `json:"failures"`
}

type RealtimeStatus struct {
	State         string `json:"state"`
	Failures      int    `json:"failures"`
	LastError     string `json:"lastError,omitempty"`
	Received      int64  `json:"received"`
	Accepted      int64  `json:"accepted"`
	LastMessageAt int64  `json:"lastMessageAt,omitempty"`
}

type HealthResponse struct {
	Status       string         `json:"status"`
	Sources      []string       `json:"sources"`
	QueuePending int            `json:"queuePending"`
	CacheEntries int            `json:"cacheEntries"`
	Subscribers  int            `json:"subscribers"`
	Persistence  bool           `json:"persistence"`
	Fetcher      FetcherStats   `json:"fetcher"`
	Realtime     RealtimeStatus `json:"realtime"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
