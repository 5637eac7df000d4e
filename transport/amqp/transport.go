package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chatwire/chatwire-go/contracts"
	"github.com/chatwire/chatwire-go/internal/reliability"
	"github.com/chatwire/chatwire-go/transport"
)

const defaultExchange = "chatwire.messages"

type featureSub struct {
	callbacks   transport.Callbacks
	queue       string
	consumerTag string
}

// Transport is the enterprise broker transport. Envelopes are published to
// a topic exchange with routing key "<feature>.<messageType>"; each feature
// subscription consumes from its own queue bound to "<feature>.#".
type Transport struct {
	url      string
	exchange string
	logger   *slog.Logger
	policy   reliability.Policy

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	state   transport.ConnectionState
	subs    map[contracts.Feature]*featureSub
	closed  bool
	done    chan struct{}
}

// Option configures the Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithExchange overrides the topic exchange name.
func WithExchange(exchange string) Option {
	return func(t *Transport) {
		t.exchange = exchange
	}
}

// WithReconnectPolicy sets the reconnect backoff policy.
func WithReconnectPolicy(policy reliability.Policy) Option {
	return func(t *Transport) {
		t.policy = policy
	}
}

// NewTransport creates an enterprise AMQP transport. Connect must be
// called before Send.
func NewTransport(url string, options ...Option) *Transport {
	t := &Transport{
		url:      url,
		exchange: defaultExchange,
		logger:   slog.Default(),
		policy:   reliability.NewFixedDelay(5*time.Second, -1),
		state:    transport.StateDisconnected,
		subs:     make(map[contracts.Feature]*featureSub),
		done:     make(chan struct{}),
	}

	for _, opt := range options {
		opt(t)
	}

	return t
}

// Connect establishes the broker connection, declares the exchange, and
// starts watching for connection loss.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport closed")
	}
	t.state = transport.StateConnecting

	if err := t.dialLocked(); err != nil {
		t.state = transport.StateError
		return err
	}

	t.state = transport.StateConnected

	// start consumers for features subscribed before Connect
	for feature, sub := range t.subs {
		if err := t.startConsumerLocked(feature, sub); err != nil {
			t.state = transport.StateError
			t.conn.Close()
			t.conn = nil
			t.channel = nil
			return err
		}
	}

	t.logger.Info("amqp connected", "exchange", t.exchange)

	go t.watchConnection(t.conn)
	return nil
}

// dialLocked dials and declares topology. Caller holds t.mu.
func (t *Transport) dialLocked() error {
	conn, err := amqp.Dial(t.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(t.exchange, "topic", true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", t.exchange, err)
	}

	t.conn = conn
	t.channel = channel
	return nil
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, env *contracts.Envelope) error {
	t.mu.RLock()
	channel := t.channel
	connected := t.state == transport.StateConnected
	t.mu.RUnlock()

	if !connected || channel == nil {
		return transport.ErrNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	routingKey := fmt.Sprintf("%s.%s", env.Feature, env.MessageType)
	err = channel.PublishWithContext(ctx, t.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   env.ID,
		Timestamp:   env.Timestamp,
		Priority:    priorityValue(env.Metadata.Priority),
		Body:        data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}
	return nil
}

// priorityValue maps advisory envelope priority onto the AMQP 0-9 scale.
func priorityValue(p contracts.Priority) uint8 {
	switch p {
	case contracts.PriorityLow:
		return 1
	case contracts.PriorityHigh:
		return 7
	case contracts.PriorityUrgent:
		return 9
	default:
		return 4
	}
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

	if existing, ok := t.subs[feature]; ok {
		t.logger.Warn("replacing existing subscription", "feature", feature)
		if t.channel != nil {
			_ = t.channel.Cancel(existing.consumerTag, false)
		}
	}

	sub := &featureSub{
		callbacks:   cb,
		queue:       fmt.Sprintf("chatwire.%s", feature),
		consumerTag: fmt.Sprintf("chatwire.%s.consumer", feature),
	}
	t.subs[feature] = sub

	if t.state == transport.StateConnected && t.channel != nil {
		if err := t.startConsumerLocked(feature, sub); err != nil {
			delete(t.subs, feature)
			return nil, err
		}
	}

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.subs[feature] != sub {
			return
		}
		delete(t.subs, feature)
		if t.channel != nil {
			_ = t.channel.Cancel(sub.consumerTag, false)
		}
	}
	return unsubscribe, nil
}

// startConsumerLocked declares and binds the feature queue and starts the
// delivery loop. Caller holds t.mu.
func (t *Transport) startConsumerLocked(feature contracts.Feature, sub *featureSub) error {
	_, err := t.channel.QueueDeclare(sub.queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", sub.queue, err)
	}

	bindingKey := fmt.Sprintf("%s.#", feature)
	if err := t.channel.QueueBind(sub.queue, bindingKey, t.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", sub.queue, err)
	}

	deliveries, err := t.channel.Consume(sub.queue, sub.consumerTag, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", sub.queue, err)
	}

	go t.deliveryLoop(feature, sub, deliveries)
	return nil
}

// deliveryLoop decodes inbound deliveries and hands them to the feature
// subscriber. The deliveries channel closes when the consumer is cancelled
// or the connection drops.
func (t *Transport) deliveryLoop(feature contracts.Feature, sub *featureSub, deliveries <-chan amqp.Delivery) {
	for delivery := range deliveries {
		var env contracts.Envelope
		if err := json.Unmarshal(delivery.Body, &env); err != nil {
			t.logger.Error("failed to decode inbound delivery", "feature", feature, "error", err)
			if sub.callbacks.OnError != nil {
				sub.callbacks.OnError(fmt.Errorf("failed to decode inbound delivery: %w", err))
			}
			continue
		}
		if sub.callbacks.OnMessage != nil {
			sub.callbacks.OnMessage(&env)
		}
	}
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
	t.channel = nil
	t.subs = make(map[contracts.Feature]*featureSub)
	close(t.done)
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// watchConnection reconnects when the broker connection drops.
func (t *Transport) watchConnection(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-t.done:
		return
	case amqpErr := <-notifyClose:
		if amqpErr == nil {
			return
		}
		t.logger.Warn("amqp connection lost, reconnecting", "error", amqpErr)
		t.notifyDisconnect(amqpErr)
		t.reconnect()
	}
}

func (t *Transport) notifyDisconnect(err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sub := range t.subs {
		if sub.callbacks.OnDisconnect != nil {
			sub.callbacks.OnDisconnect(err)
		}
	}
}

func (t *Transport) reconnect() {
	t.mu.Lock()
	t.state = transport.StateReconnecting
	t.mu.Unlock()

	for attempt := 0; ; attempt++ {
		shouldRetry, delay := t.policy.ShouldRetry(attempt, transport.ErrNotConnected)
		if !shouldRetry {
			t.logger.Error("amqp reconnect attempts exhausted", "attempts", attempt)
			t.mu.Lock()
			t.state = transport.StateError
			t.mu.Unlock()
			return
		}

		select {
		case <-t.done:
			return
		case <-time.After(delay):
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		if err := t.dialLocked(); err != nil {
			t.mu.Unlock()
			t.logger.Warn("amqp reconnect attempt failed", "attempt", attempt+1, "error", err)
			continue
		}

		// restart consumers for existing subscriptions
		var failed []contracts.Feature
		for feature, sub := range t.subs {
			if err := t.startConsumerLocked(feature, sub); err != nil {
				t.logger.Error("failed to restore subscription", "feature", feature, "error", err)
				failed = append(failed, feature)
			}
		}
		for _, feature := range failed {
			delete(t.subs, feature)
		}

		t.state = transport.StateConnected
		conn := t.conn
		subs := make([]*featureSub, 0, len(t.subs))
		for _, sub := range t.subs {
			subs = append(subs, sub)
		}
		t.mu.Unlock()

		t.logger.Info("amqp reconnected", "attempts", attempt+1)
		for _, sub := range subs {
			if sub.callbacks.OnConnect != nil {
				sub.callbacks.OnConnect()
			}
		}

		go t.watchConnection(conn)
		return
	}
}
