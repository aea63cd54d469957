package marketdata

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
)

const defaultSubscriberBuffer = 16

// Origin tells subscribers how an update reached the cache.
type Origin string

const (
	OriginFetch    Origin = "fetch"
	OriginRealtime Origin = "realtime"
)

// Update announces a changed chart.
type Update struct {
	Key     string
	Request Request
	Chart   *Chart
	Source  string
	Hash    string
	Origin  Origin
	At      time.Time
}

// NoticeLevel grades user-facing notices.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a message meant for the user, e.g. "showing simulated data".
// An empty Key addresses every subscriber.
type Notice struct {
	Key     string
	Level   NoticeLevel
	Message string
	At      time.Time
}

// Subscription receives updates and notices until cancelled.
type Subscription struct {
	ID      string
	Filter  string
	Updates <-chan Update
	Notices <-chan Notice

	hub *Hub
}

// Cancel detaches the subscription and closes its channels.
func (s *Subscription) Cancel() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.unsubscribe(s.ID)
}

type subscriber struct {
	filter  string
	updates chan Update
	notices chan Notice
}

func (s *subscriber) wants(key string) bool {
	return s.filter == "" || key == "" || s.filter == key
}

// Hub fans chart updates out to in-process subscribers. Sends never block:
// a subscriber whose buffer is full misses the message.
type Hub struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]*subscriber
}

// NewHub creates a hub whose subscriber channels hold buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[string]*subscriber)}
}

// Subscribe registers a subscriber for filterKey; empty means every key.
func (h *Hub) Subscribe(filterKey string) *Subscription {
	id := uuid.NewString()
	sub := &subscriber{
		filter:  filterKey,
		updates: make(chan Update, h.buffer),
		notices: make(chan Notice, h.buffer),
	}
	h.mu.Lock()
	h.subs[id] = sub
	h.mu.Unlock()
	return &Subscription{
		ID:      id,
		Filter:  filterKey,
		Updates: sub.updates,
		Notices: sub.notices,
		hub:     h,
	}
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.updates)
	close(sub.notices)
}

// Publish delivers u to every interested subscriber and returns how many got it.
func (h *Hub) Publish(u Update) int {
	if u.At.IsZero() {
		u.At = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for id, sub := range h.subs {
		if sub.filter != "" && sub.filter != u.Key {
			continue
		}
		select {
		case sub.updates <- u:
			delivered++
		default:
			logx.Infof("marketdata: hub dropped update key=%s subscriber=%s", u.Key, id)
		}
	}
	return delivered
}

// Notify delivers n to every interested subscriber and returns how many got it.
func (h *Hub) Notify(n Notice) int {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	if n.Level == "" {
		n.Level = NoticeInfo
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for id, sub := range h.subs {
		if !sub.wants(n.Key) {
			continue
		}
		select {
		case sub.notices <- n:
			delivered++
		default:
			logx.Infof("marketdata: hub dropped notice key=%s subscriber=%s", n.Key, id)
		}
	}
	return delivered
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
