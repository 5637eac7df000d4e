package chatwire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatwire/chatwire-go/cache"
	"github.com/chatwire/chatwire-go/config"
	"github.com/chatwire/chatwire-go/contracts"
	"github.com/chatwire/chatwire-go/monitor"
)

// chatServer is a minimal WebSocket endpoint that collects every
// envelope a client sends.
type chatServer struct {
	*httptest.Server
	received chan contracts.Envelope
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := &chatServer{received: make(chan contracts.Envelope, 16)}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env contracts.Envelope
			if json.Unmarshal(data, &env) == nil {
				srv.received <- env
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (s *chatServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func testConfig(legacyURL string) *config.Config {
	return &config.Config{
		LegacyURL:              legacyURL,
		Mode:                   "legacy_only",
		EnableLegacyFallback:   true,
		EnableTypingIndicators: true,
		EnableOnlineStatus:     true,
		TypingIndicatorTimeout: 3 * time.Second,
		LogLevel:               "error",
	}
}

func TestNewClient(t *testing.T) {
	t.Run("rejects nil config", func(t *testing.T) {
		_, err := NewClient(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := testConfig("ws://localhost:0/ws")
		cfg.Mode = "sideways"
		_, err := NewClient(context.Background(), cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid migration mode")
	})

	t.Run("fails when legacy endpoint is unreachable", func(t *testing.T) {
		cfg := testConfig("ws://127.0.0.1:1/ws")
		_, err := NewClient(context.Background(), cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "legacy transport")
	})
}

func TestClientLifecycle(t *testing.T) {
	srv := newChatServer(t)
	cfg := testConfig(srv.wsURL())

	client, err := NewClient(context.Background(), cfg,
		WithCacheStore(cache.NewMemoryStore()))
	require.NoError(t, err)
	defer client.Close()

	require.NotNil(t, client.Chat())
	require.NotNil(t, client.LegacyChat())
	assert.Nil(t, client.EnterpriseChat())

	t.Run("sends reach the legacy endpoint", func(t *testing.T) {
		err := client.Chat().SendMessage(context.Background(), "chat-1", contracts.ChatMessage{
			SenderID: "user-1",
			Content:  "hello",
		})
		require.NoError(t, err)

		select {
		case env := <-srv.received:
			assert.Equal(t, contracts.MessageTypeMessage, env.MessageType)
			assert.Equal(t, "chat-1", env.ChatID)
		case <-time.After(2 * time.Second):
			t.Fatal("envelope never reached the server")
		}
	})

	t.Run("health reports the legacy transport", func(t *testing.T) {
		health := client.Health(context.Background())
		assert.Equal(t, monitor.StatusHealthy, health.Status)
		require.Len(t, health.Checks, 1)
		assert.Contains(t, health.Checks, "legacy-websocket")
	})

	t.Run("metrics count the send", func(t *testing.T) {
		summary := client.Metrics()
		assert.Equal(t, int64(1), summary.SendCounts[contracts.TypeChatMessage])
	})

	t.Run("close is idempotent", func(t *testing.T) {
		require.NoError(t, client.Close())
		require.NoError(t, client.Close())
	})
}
