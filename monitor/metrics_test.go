package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/chatwire/chatwire-go/contracts"
	"github.com/chatwire/chatwire-go/transport"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector(t *testing.T) {
	t.Run("RecordSend accumulates counts and timing", func(t *testing.T) {
		collector := NewMetricsCollector()

		collector.RecordSend(contracts.TypeChatMessage, 10*time.Millisecond, true)
		collector.RecordSend(contracts.TypeChatMessage, 30*time.Millisecond, true)
		collector.RecordSend(contracts.TypeChatMessage, 20*time.Millisecond, false)

		summary := collector.Summary()
		assert.Equal(t, int64(3), summary.SendCounts[contracts.TypeChatMessage])

		stats := summary.SendStats[contracts.TypeChatMessage]
		assert.Equal(t, int64(3), stats.Count)
		assert.Equal(t, int64(1), stats.Failures)
		assert.Equal(t, int64(10), stats.MinMs)
		assert.Equal(t, int64(30), stats.MaxMs)
		assert.Equal(t, int64(20), stats.AverageMs)
	})

	t.Run("RecordReceive counts by type", func(t *testing.T) {
		collector := NewMetricsCollector()

		collector.RecordReceive(contracts.TypeTypingIndicator)
		collector.RecordReceive(contracts.TypeTypingIndicator)

		summary := collector.Summary()
		assert.Equal(t, int64(2), summary.ReceiveCounts[contracts.TypeTypingIndicator])
	})

	t.Run("Summary is a copy", func(t *testing.T) {
		collector := NewMetricsCollector()
		collector.RecordReceive(contracts.TypeChatMessage)

		summary := collector.Summary()
		summary.ReceiveCounts[contracts.TypeChatMessage] = 99

		assert.Equal(t, int64(1), collector.Summary().ReceiveCounts[contracts.TypeChatMessage])
	})
}

func TestHealthRegistryTransports(t *testing.T) {
	t.Run("all healthy when transports connected", func(t *testing.T) {
		registry := NewHealthRegistry()
		registry.Register(NewTransportChecker("legacy", &stubTransport{state: transport.StateConnected}))
		registry.Register(NewTransportChecker("enterprise", &stubTransport{state: transport.StateConnected}))

		overall := registry.CheckAll(context.Background())

		assert.Equal(t, StatusHealthy, overall.Status)
		assert.Len(t, overall.Checks, 2)
	})

	t.Run("reconnecting transport degrades overall status", func(t *testing.T) {
		registry := NewHealthRegistry()
		registry.Register(NewTransportChecker("legacy", &stubTransport{state: transport.StateConnected}))
		registry.Register(NewTransportChecker("enterprise", &stubTransport{state: transport.StateReconnecting}))

		overall := registry.CheckAll(context.Background())

		assert.Equal(t, StatusDegraded, overall.Status)
	})

	t.Run("disconnected transport is unhealthy", func(t *testing.T) {
		registry := NewHealthRegistry()
		registry.Register(NewTransportChecker("legacy", &stubTransport{state: transport.StateDisconnected}))

		overall := registry.CheckAll(context.Background())

		assert.Equal(t, StatusUnhealthy, overall.Status)
		assert.Equal(t, StatusUnhealthy, overall.Checks["legacy"].Status)
	})
}
