package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire-go/contracts"
	"github.com/chatwire/chatwire-go/internal/reliability"
	"github.com/chatwire/chatwire-go/transport"
)

// echoServer accepts one WebSocket connection at a time and echoes every
// frame back to the sender.
type echoServer struct {
	*httptest.Server

	mu      sync.Mutex
	inbound [][]byte
	conns   []*gws.Conn
}

// CloseClientConnections closes upgraded WebSocket connections as well;
// the embedded httptest.Server stops tracking connections once they are
// hijacked for the upgrade, so it cannot close them itself.
func (s *echoServer) CloseClientConnections() {
	s.Server.CloseClientConnections()
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	upgrader := gws.Upgrader{}
	srv := &echoServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		srv.mu.Lock()
		srv.conns = append(srv.conns, conn)
		srv.mu.Unlock()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			srv.mu.Lock()
			srv.inbound = append(srv.inbound, data)
			srv.mu.Unlock()
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (s *echoServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func connectedTransport(t *testing.T, srv *echoServer, options ...Option) *Transport {
	t.Helper()
	tr := NewTransport(srv.wsURL(), options...)
	require.NoError(t, tr.Connect(context.Background()))
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestConnect(t *testing.T) {
	t.Run("reaches connected state", func(t *testing.T) {
		srv := newEchoServer(t)
		tr := connectedTransport(t, srv)

		assert.True(t, tr.IsConnected())
		assert.Equal(t, transport.StateConnected, tr.ConnectionState())
	})

	t.Run("dial failure yields error state", func(t *testing.T) {
		tr := NewTransport("ws://127.0.0.1:1/ws")
		err := tr.Connect(context.Background())
		require.Error(t, err)
		assert.Equal(t, transport.StateError, tr.ConnectionState())
	})

	t.Run("fails after close", func(t *testing.T) {
		srv := newEchoServer(t)
		tr := NewTransport(srv.wsURL())
		require.NoError(t, tr.Close())
		assert.Error(t, tr.Connect(context.Background()))
	})
}

func TestSend(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		tr := NewTransport("ws://127.0.0.1:1/ws")
		err := tr.Send(context.Background(), contracts.NewEnvelope(
			contracts.TypeChatMessage, contracts.FeatureChat, contracts.MessageTypeMessage))
		assert.ErrorIs(t, err, transport.ErrNotConnected)
	})

	t.Run("delivers JSON envelope", func(t *testing.T) {
		srv := newEchoServer(t)
		tr := connectedTransport(t, srv)

		env := contracts.NewEnvelope(
			contracts.TypeChatMessage, contracts.FeatureChat, contracts.MessageTypeMessage)
		env.ChatID = "chat-1"
		require.NoError(t, tr.Send(context.Background(), env))

		require.Eventually(t, func() bool {
			srv.mu.Lock()
			defer srv.mu.Unlock()
			return len(srv.inbound) == 1
		}, 2*time.Second, 10*time.Millisecond)

		srv.mu.Lock()
		data := srv.inbound[0]
		srv.mu.Unlock()
		var got contracts.Envelope
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, "chat-1", got.ChatID)
		assert.Equal(t, env.ID, got.ID)
	})
}

func TestSubscribe(t *testing.T) {
	t.Run("inbound frames reach the feature subscriber", func(t *testing.T) {
		srv := newEchoServer(t)
		tr := connectedTransport(t, srv)

		received := make(chan *contracts.Envelope, 1)
		_, err := tr.Subscribe(contracts.FeatureChat, transport.Callbacks{
			OnMessage: func(env *contracts.Envelope) {
				received <- env
			},
		})
		require.NoError(t, err)

		env := contracts.NewEnvelope(
			contracts.TypeChatMessage, contracts.FeatureChat, contracts.MessageTypeMessage)
		require.NoError(t, tr.Send(context.Background(), env))

		select {
		case got := <-received:
			assert.Equal(t, env.ID, got.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("echoed envelope never dispatched")
		}
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		srv := newEchoServer(t)
		tr := connectedTransport(t, srv)

		received := make(chan *contracts.Envelope, 1)
		unsubscribe, err := tr.Subscribe(contracts.FeatureChat, transport.Callbacks{
			OnMessage: func(env *contracts.Envelope) {
				received <- env
			},
		})
		require.NoError(t, err)
		unsubscribe()

		env := contracts.NewEnvelope(
			contracts.TypeChatMessage, contracts.FeatureChat, contracts.MessageTypeMessage)
		require.NoError(t, tr.Send(context.Background(), env))

		select {
		case <-received:
			t.Fatal("unsubscribed callback still invoked")
		case <-time.After(200 * time.Millisecond):
		}
	})

	t.Run("resubscribe replaces previous subscriber", func(t *testing.T) {
		srv := newEchoServer(t)
		tr := connectedTransport(t, srv)

		first := make(chan *contracts.Envelope, 1)
		second := make(chan *contracts.Envelope, 1)
		_, err := tr.Subscribe(contracts.FeatureChat, transport.Callbacks{
			OnMessage: func(env *contracts.Envelope) { first <- env },
		})
		require.NoError(t, err)
		_, err = tr.Subscribe(contracts.FeatureChat, transport.Callbacks{
			OnMessage: func(env *contracts.Envelope) { second <- env },
		})
		require.NoError(t, err)

		env := contracts.NewEnvelope(
			contracts.TypeChatMessage, contracts.FeatureChat, contracts.MessageTypeMessage)
		require.NoError(t, tr.Send(context.Background(), env))

		select {
		case <-second:
		case <-time.After(2 * time.Second):
			t.Fatal("replacement subscriber never invoked")
		}
		select {
		case <-first:
			t.Fatal("replaced subscriber still invoked")
		default:
		}
	})
}

func TestReconnect(t *testing.T) {
	srv := newEchoServer(t)
	tr := connectedTransport(t, srv,
		WithReconnectPolicy(reliability.NewFixedDelay(20*time.Millisecond, 50)))

	connects := make(chan struct{}, 4)
	disconnects := make(chan struct{}, 4)
	_, err := tr.Subscribe(contracts.FeatureChat, transport.Callbacks{
		OnConnect:    func() { connects <- struct{}{} },
		OnDisconnect: func(error) { disconnects <- struct{}{} },
	})
	require.NoError(t, err)

	// Kill the server side of the connection and wait for the transport
	// to dial back in.
	srv.CloseClientConnections()

	select {
	case <-disconnects:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect never observed")
	}
	select {
	case <-connects:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never completed")
	}

	require.Eventually(t, tr.IsConnected, 2*time.Second, 10*time.Millisecond)

	env := contracts.NewEnvelope(
		contracts.TypeChatMessage, contracts.FeatureChat, contracts.MessageTypeMessage)
	assert.NoError(t, tr.Send(context.Background(), env))
}

func TestClose(t *testing.T) {
	srv := newEchoServer(t)
	tr := NewTransport(srv.wsURL())
	require.NoError(t, tr.Connect(context.Background()))

	require.NoError(t, tr.Close())
	assert.False(t, tr.IsConnected())
	assert.NoError(t, tr.Close())

	err := tr.Send(context.Background(), contracts.NewEnvelope(
		contracts.TypeChatMessage, contracts.FeatureChat, contracts.MessageTypeMessage))
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}
