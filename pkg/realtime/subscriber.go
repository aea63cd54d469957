// Package realtime consumes pushed market charts from a WebSocket pub/sub
// channel and hands them to the reconciler.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zeromicro/go-zero/core/logx"

	"cryptodash-api/pkg/marketdata"
)

// ErrReconnectExhausted is returned by Run once MaxAttempts consecutive
// connection attempts have failed without receiving a frame.
var ErrReconnectExhausted = errors.New("realtime: reconnect attempts exhausted")

// State is the lifecycle stage of a Subscriber.
type State string

const (
	StateDisabled     State = "disabled"
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateStopped      State = "stopped"
	StateExhausted    State = "exhausted"
)

// Applier accepts decoded pushes. *marketdata.Reconciler satisfies it.
type Applier interface {
	Apply(ctx context.Context, msg marketdata.PushMessage) (marketdata.Decision, error)
}

// Notifier delivers user-facing notices. *marketdata.Hub satisfies it.
type Notifier interface {
	Notify(n marketdata.Notice) int
}

// Status is a point-in-time view of the subscriber for health reporting.
type Status struct {
	State         State     `json:"state"`
	Failures      int       `json:"failures"`
	LastError     string    `json:"lastError,omitempty"`
	Received      int64     `json:"received"`
	Accepted      int64     `json:"accepted"`
	LastMessageAt time.Time `json:"lastMessageAt,omitempty"`
}

type frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscriber keeps one connection to the realtime channel alive, reconnecting
// with exponential backoff until MaxAttempts consecutive attempts fail. An
// attempt only counts as successful once it has received a frame.
type Subscriber struct {
	cfg      Config
	applier  Applier
	notifier Notifier
	dialer   *websocket.Dialer
	now      func() time.Time

	mu        sync.RWMutex
	state     State
	failures  int
	lastErr   error
	lastMsgAt time.Time
	notified  bool

	received atomic.Int64
	accepted atomic.Int64
}

// Option customises a Subscriber.
type Option func(*Subscriber)

// WithDialer replaces the default websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Subscriber) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithClock overrides the time source used for status and notices.
func WithClock(now func() time.Time) Option {
	return func(s *Subscriber) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSubscriber wires a subscriber. notifier may be nil.
func NewSubscriber(cfg Config, applier Applier, notifier Notifier, opts ...Option) *Subscriber {
	cfg = cfg.withDefaults()
	s := &Subscriber{
		cfg:      cfg,
		applier:  applier,
		notifier: notifier,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle stage.
func (s *Subscriber) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns counters and the last connection error.
func (s *Subscriber) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		State:         s.state,
		Failures:      s.failures,
		Received:      s.received.Load(),
		Accepted:      s.accepted.Load(),
		LastMessageAt: s.lastMsgAt,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Run connects and consumes frames until ctx is cancelled (returning nil) or
// the reconnect budget is spent (returning ErrReconnectExhausted).
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		s.setState(StateConnecting)
		conn, err := s.dial(ctx)
		if err == nil {
			s.markConnected()
			err = s.consume(ctx, conn)
		}
		if ctx.Err() != nil {
			s.setState(StateStopped)
			return nil
		}

		failures := s.markFailed(err)
		if failures >= s.cfg.MaxAttempts {
			s.exhaust(ctx, err)
			return fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, failures, err)
		}

		wait := backoff(s.cfg.BackoffMin, s.cfg.BackoffMax, failures)
		logx.WithContext(ctx).Infof("realtime: connection lost (attempt %d/%d), retrying in %s: %v",
			failures, s.cfg.MaxAttempts, wait, err)
		s.setState(StateReconnecting)
		if err := sleepWithContext(ctx, wait); err != nil {
			s.setState(StateStopped)
			return nil
		}
	}
}

func (s *Subscriber) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Accept", "application/json")
	if s.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: %w (status %d)", s.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", s.cfg.URL, err)
	}
	if s.cfg.Channel != "" {
		sub, _ := json.Marshal(frame{Type: "subscribe", Channel: s.cfg.Channel})
		_ = conn.SetWriteDeadline(s.now().Add(s.cfg.HandshakeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
			conn.Close()
			return nil, fmt.Errorf("realtime: subscribe %s: %w", s.cfg.Channel, err)
		}
	}
	return conn, nil
}

// consume reads frames until the connection fails or ctx ends.
func (s *Subscriber) consume(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	defer conn.Close()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()
	go s.heartbeat(conn, done)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})
	healthy := false
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if !healthy {
			s.markHealthy()
			healthy = true
		}
		s.handle(ctx, data)
	}
}

func (s *Subscriber) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(time.Second)); err != nil {
				logx.Debugf("realtime: ping failed: %v", err)
			}
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, data []byte) {
	s.received.Add(1)
	s.mu.Lock()
	s.lastMsgAt = s.now()
	s.mu.Unlock()

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		logx.WithContext(ctx).Errorf("realtime: malformed frame: %v", err)
		return
	}
	body := []byte(f.Payload)
	switch f.Type {
	case "", "chart", "market_data":
		if len(body) == 0 {
			body = data
		}
	default:
		// subscription acks, heartbeats and other control frames
		return
	}

	var msg marketdata.PushMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logx.WithContext(ctx).Errorf("realtime: decode push: %v", err)
		return
	}
	decision, err := s.applier.Apply(ctx, msg)
	if err != nil {
		logx.WithContext(ctx).Errorf("realtime: rejected push coin=%s days=%d: %v", msg.CoinID, msg.Days, err)
		return
	}
	if decision.Accepted {
		s.accepted.Add(1)
	}
}

func (s *Subscriber) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Subscriber) markConnected() {
	s.setState(StateConnected)
	logx.Infof("realtime: connected to %s", s.cfg.URL)
}

// markHealthy clears the failure count once a connection has delivered a
// frame. A server that accepts and then drops connections keeps counting
// towards MaxAttempts.
func (s *Subscriber) markHealthy() {
	s.mu.Lock()
	s.failures = 0
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Subscriber) markFailed(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.lastErr = err
	return s.failures
}

// exhaust stops the subscriber and emits the single user-facing notice.
func (s *Subscriber) exhaust(ctx context.Context, err error) {
	s.mu.Lock()
	s.state = StateExhausted
	first := !s.notified
	s.notified = true
	s.mu.Unlock()

	logx.WithContext(ctx).Errorf("realtime: giving up after %d attempts: %v", s.cfg.MaxAttempts, err)
	if first && s.notifier != nil {
		s.notifier.Notify(marketdata.Notice{
			Level:   marketdata.NoticeWarning,
			Message: "Live updates are unavailable. Charts will refresh on the regular polling schedule.",
			At:      s.now(),
		})
	}
}

func backoff(min, max time.Duration, failures int) time.Duration {
	wait := min
	for i := 1; i < failures; i++ {
		wait *= 2
		if wait >= max {
			return max
		}
	}
	return wait
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
