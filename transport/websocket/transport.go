package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatwire/chatwire-go/contracts"
	"github.com/chatwire/chatwire-go/internal/reliability"
	"github.com/chatwire/chatwire-go/transport"
)

type subscription struct {
	callbacks transport.Callbacks
}

// Transport is the legacy WebSocket transport. One connection is shared by
// all features; inbound frames are JSON envelopes dispatched to the
// subscriber of their feature in arrival order.
type Transport struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	logger       *slog.Logger
	policy       reliability.Policy
	pingInterval time.Duration
	writeTimeout time.Duration

	mu     sync.RWMutex
	conn   *websocket.Conn
	state  transport.ConnectionState
	subs   map[contracts.Feature]*subscription
	closed bool
	done   chan struct{}

	// gorilla allows one concurrent writer per connection
	writeMu sync.Mutex
}

// Option configures the Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithReconnectPolicy sets the reconnect backoff policy.
func WithReconnectPolicy(policy reliability.Policy) Option {
	return func(t *Transport) {
		t.policy = policy
	}
}

// WithPingInterval sets the keepalive ping interval.
func WithPingInterval(interval time.Duration) Option {
	return func(t *Transport) {
		t.pingInterval = interval
	}
}

// WithWriteTimeout sets the per-frame write deadline.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.writeTimeout = timeout
	}
}

// WithHeader sets extra handshake headers, e.g. an opaque auth token.
func WithHeader(header http.Header) Option {
	return func(t *Transport) {
		t.header = header
	}
}

// NewTransport creates a legacy WebSocket transport. Connect must be
// called before Send.
func NewTransport(url string, options ...Option) *Transport {
	t := &Transport{
		url:          url,
		dialer:       websocket.DefaultDialer,
		logger:       slog.Default(),
		policy:       reliability.NewExponentialBackoff(500*time.Millisecond, 30*time.Second, 2.0, -1),
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		state:        transport.StateDisconnected,
		subs:         make(map[contracts.Feature]*subscription),
		done:         make(chan struct{}),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Connect establishes the WebSocket connection and starts the read and
// keepalive loops.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("transport closed")
	}
	t.state = transport.StateConnecting
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
	if err != nil {
		t.setState(transport.StateError)
		return fmt.Errorf("failed to dial %s: %w", t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.state = transport.StateConnected
	t.mu.Unlock()

	t.logger.Info("websocket connected", "url", t.url)
	t.notifyConnect()

	go t.readLoop(conn)
	go t.pingLoop(conn)

	return nil
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, env *contracts.Envelope) error {
	t.mu.RLock()
	conn := t.conn
	connected := t.state == transport.StateConnected
	t.mu.RUnlock()

	if !connected || conn == nil {
		return transport.ErrNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write envelope: %w", err)
	}
	return nil
}

// IsConnected implements transport.Transport.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state == transport.StateConnected
}

// ConnectionState implements transport.Transport.
func (t *Transport) ConnectionState() transport.ConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Subscribe implements transport.Transport. Re-subscribing a feature
// replaces the previous subscription.
func (t *Transport) Subscribe(feature contracts.Feature, cb transport.Callbacks) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("transport closed")
	}

	if _, exists := t.subs[feature]; exists {
		t.logger.Warn("replacing existing subscription", "feature", feature)
	}

	sub := &subscription{callbacks: cb}
	t.subs[feature] = sub

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.subs[feature] == sub {
			delete(t.subs, feature)
		}
	}
	return unsubscribe, nil
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.state = transport.StateDisconnected
	conn := t.conn
	t.conn = nil
	t.subs = make(map[contracts.Feature]*subscription)
	close(t.done)
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *Transport) setState(state transport.ConnectionState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

func (t *Transport) snapshotSubs() []*subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()
	subs := make([]*subscription, 0, len(t.subs))
	for _, sub := range t.subs {
		subs = append(subs, sub)
	}
	return subs
}

func (t *Transport) notifyConnect() {
	for _, sub := range t.snapshotSubs() {
		if sub.callbacks.OnConnect != nil {
			sub.callbacks.OnConnect()
		}
	}
}

func (t *Transport) notifyDisconnect(err error) {
	for _, sub := range t.snapshotSubs() {
		if sub.callbacks.OnDisconnect != nil {
			sub.callbacks.OnDisconnect(err)
		}
	}
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.RLock()
			closed := t.closed
			t.mu.RUnlock()
			if closed {
				return
			}

			t.logger.Warn("websocket read failed, reconnecting", "error", err)
			t.notifyDisconnect(err)
			t.reconnect()
			return
		}

		var env contracts.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.logger.Error("failed to decode inbound frame", "error", err)
			for _, sub := range t.snapshotSubs() {
				if sub.callbacks.OnError != nil {
					sub.callbacks.OnError(fmt.Errorf("failed to decode inbound frame: %w", err))
				}
			}
			continue
		}

		t.mu.RLock()
		sub := t.subs[env.Feature]
		t.mu.RUnlock()

		if sub == nil {
			t.logger.Debug("no subscriber for inbound envelope", "feature", env.Feature, "type", env.Type)
			continue
		}
		if sub.callbacks.OnMessage != nil {
			sub.callbacks.OnMessage(&env)
		}
	}
}

func (t *Transport) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.RLock()
			current := t.conn
			t.mu.RUnlock()
			if current != conn {
				return
			}

			t.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("keepalive ping failed", "error", err)
				return
			}
		}
	}
}

// reconnect re-dials with backoff until it succeeds, the policy gives up,
// or the transport is closed.
func (t *Transport) reconnect() {
	t.setState(transport.StateReconnecting)

	for attempt := 0; ; attempt++ {
		shouldRetry, delay := t.policy.ShouldRetry(attempt, transport.ErrNotConnected)
		if !shouldRetry {
			t.logger.Error("reconnect attempts exhausted", "attempts", attempt)
			t.setState(transport.StateError)
			return
		}

		select {
		case <-t.done:
			return
		case <-time.After(delay):
		}

		conn, _, err := t.dialer.Dial(t.url, t.header)
		if err != nil {
			t.logger.Warn("reconnect attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.conn = conn
		t.state = transport.StateConnected
		t.mu.Unlock()

		t.logger.Info("websocket reconnected", "attempts", attempt+1)
		t.notifyConnect()

		go t.readLoop(conn)
		go t.pingLoop(conn)
		return
	}
}
