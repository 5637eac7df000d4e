package transport

import (
	"context"
	"errors"

	"github.com/chatwire/chatwire-go/contracts"
)

// ConnectionState describes the transport connection lifecycle.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateReconnecting ConnectionState = "reconnecting"
	StateError        ConnectionState = "error"
)

// ErrNotConnected is returned by Send when the transport has no live
// connection. Send never retries implicitly; the caller decides.
var ErrNotConnected = errors.New("transport not connected")

// Callbacks receives transport events for one feature subscription.
type Callbacks struct {
	// OnMessage receives every inbound envelope for the subscribed feature.
	OnMessage func(env *contracts.Envelope)
	// OnConnect fires when the connection is (re)established.
	OnConnect func()
	// OnDisconnect fires when the connection is lost.
	OnDisconnect func(err error)
	// OnError receives transport-level errors that are not tied to a
	// single send call (decode failures, dropped frames).
	OnError func(err error)
}

// Transport multiplexes one connection across feature namespaces. Inbound
// envelopes are delivered in arrival order to the feature's subscriber.
type Transport interface {
	// Send transmits an envelope. It fails on network or serialization
	// error with no implicit retry.
	Send(ctx context.Context, env *contracts.Envelope) error

	// IsConnected reports whether the connection is currently live.
	IsConnected() bool

	// ConnectionState returns the current connection state.
	ConnectionState() ConnectionState

	// Subscribe registers callbacks for a feature and returns an
	// unsubscribe function. Subscribing a feature that already has a
	// subscription replaces it rather than duplicating delivery.
	Subscribe(feature contracts.Feature, cb Callbacks) (func(), error)

	// Close tears down the connection and all subscriptions.
	Close() error
}
