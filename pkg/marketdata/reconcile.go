package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

const (
	defaultRealtimeMaxUpdates = 5
	defaultRealtimeWindow     = time.Minute
	limiterPruneThreshold     = 1024
)

// Push outcomes.
const (
	ReasonAccepted    = "accepted"
	ReasonUnchanged   = "unchanged"
	ReasonRateLimited = "rate_limited"
)

// PushMessage is an unsolicited chart pushed over the realtime channel.
type PushMessage struct {
	CoinID   string    `json:"coinId"`
	Days     int       `json:"days"`
	Currency string    `json:"currency"`
	Source   string    `json:"source,omitempty"`
	Chart    *Chart    `json:"chart"`
	SentAt   time.Time `json:"sentAt,omitempty"`
}

// Request returns the normalized request the push refers to.
func (m PushMessage) Request() Request {
	return Request{CoinID: m.CoinID, Days: m.Days, Currency: m.Currency}.Normalize()
}

// Decision reports what the reconciler did with a push.
type Decision struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
	Key      string `json:"key"`
	Hash     string `json:"hash,omitempty"`
}

// Reconciler merges realtime pushes into the cache. Pushes whose content hash
// matches the last-seen value only refresh the entry timestamp; the rest are
// admitted at most maxUpdates times in any rolling window for each key.
type Reconciler struct {
	cache       *Cache
	hub         *Hub
	persistence Persistence
	maxUpdates  int
	window      time.Duration
	now         func() time.Time

	mu       sync.Mutex
	accepted map[string][]time.Time
}

// ReconcilerOption customises a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerPersistence stores accepted pushes durably.
func WithReconcilerPersistence(p Persistence) ReconcilerOption {
	return func(r *Reconciler) {
		r.persistence = p
	}
}

// WithReconcilerClock overrides the time source used for rate limiting.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler admits at most maxUpdates changed pushes per window for each key.
func NewReconciler(cache *Cache, hub *Hub, maxUpdates int, window time.Duration, opts ...ReconcilerOption) *Reconciler {
	if maxUpdates <= 0 {
		maxUpdates = defaultRealtimeMaxUpdates
	}
	if window <= 0 {
		window = defaultRealtimeWindow
	}
	r := &Reconciler{
		cache:      cache,
		hub:        hub,
		maxUpdates: maxUpdates,
		window:     window,
		now:        time.Now,
		accepted:   make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply reconciles one push against the cache.
func (r *Reconciler) Apply(ctx context.Context, msg PushMessage) (Decision, error) {
	req := msg.Request()
	if err := req.Validate(); err != nil {
		return Decision{}, err
	}
	if msg.Chart.Empty() {
		return Decision{}, fmt.Errorf("%w: push for %s carries no prices", ErrInvalidRequest, req.Key())
	}
	key := req.Key()
	hash, err := ContentHash(msg.Chart)
	if err != nil {
		return Decision{}, err
	}
	now := r.now()
	source := msg.Source
	if source == "" {
		source = string(OriginRealtime)
	}

	if r.cache.Touch(key, hash, now) {
		return Decision{Reason: ReasonUnchanged, Key: key, Hash: hash}, nil
	}
	if !r.allow(key, now) {
		logx.WithContext(ctx).Infof("marketdata: realtime push rate limited key=%s", key)
		return Decision{Reason: ReasonRateLimited, Key: key, Hash: hash}, nil
	}

	fetchedAt := now
	if !msg.SentAt.IsZero() && msg.SentAt.Before(now) {
		fetchedAt = msg.SentAt
	}
	entry := CacheEntry{
		Chart:     msg.Chart,
		Source:    source,
		Hash:      hash,
		FetchedAt: fetchedAt,
		UpdatedAt: now,
	}
	r.cache.Store(key, entry)
	if r.persistence != nil {
		if err := r.persistence.RecordChart(ctx, req, entry); err != nil {
			logx.WithContext(ctx).Errorf("marketdata: persist realtime chart key=%s err=%v", key, err)
		}
	}
	if r.hub != nil {
		r.hub.Publish(Update{
			Key:     key,
			Request: req,
			Chart:   msg.Chart,
			Source:  source,
			Hash:    hash,
			Origin:  OriginRealtime,
			At:      now,
		})
	}
	return Decision{Accepted: true, Reason: ReasonAccepted, Key: key, Hash: hash}, nil
}

// allow records an accepted update at now unless maxUpdates were already
// accepted for key within the trailing window.
func (r *Reconciler) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	times, ok := r.accepted[key]
	if !ok && len(r.accepted) >= limiterPruneThreshold {
		r.pruneLocked(now)
	}
	times = trimBefore(times, now.Add(-r.window))
	if len(times) >= r.maxUpdates {
		r.accepted[key] = times
		return false
	}
	r.accepted[key] = append(times, now)
	return true
}

func (r *Reconciler) pruneLocked(now time.Time) {
	cutoff := now.Add(-r.window)
	for key, times := range r.accepted {
		if times = trimBefore(times, cutoff); len(times) == 0 {
			delete(r.accepted, key)
		} else {
			r.accepted[key] = times
		}
	}
}

// trimBefore drops timestamps at or before cutoff from the sorted slice.
func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	n := 0
	for n < len(times) && !times[n].After(cutoff) {
		n++
	}
	return times[n:]
}
