package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults match the documented contract", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "hybrid", cfg.Mode)
		assert.True(t, cfg.EnableLegacyFallback)
		assert.False(t, cfg.UseEnterpriseAdapter)
		assert.True(t, cfg.EnableTypingIndicators)
		assert.True(t, cfg.EnableOnlineStatus)
		assert.True(t, cfg.EnablePresenceManagement)
		assert.True(t, cfg.EnableMessageDeliveryConfirmation)
		assert.Equal(t, 3*time.Second, cfg.TypingIndicatorTimeout)
		assert.Equal(t, 30*time.Second, cfg.OnlineStatusHeartbeat)
		assert.Equal(t, 60*time.Second, cfg.PresenceUpdateInterval)
		assert.Equal(t, 3, cfg.MaxMessageRetries)
	})

	t.Run("environment overrides defaults", func(t *testing.T) {
		t.Setenv("CHATWIRE_MIGRATION_MODE", "legacy_only")
		t.Setenv("CHATWIRE_TYPING_TIMEOUT", "500ms")
		t.Setenv("CHATWIRE_USE_ENTERPRISE", "true")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "legacy_only", cfg.Mode)
		assert.Equal(t, 500*time.Millisecond, cfg.TypingIndicatorTimeout)
		assert.True(t, cfg.UseEnterpriseAdapter)
	})

	t.Run("invalid mode is rejected", func(t *testing.T) {
		t.Setenv("CHATWIRE_MIGRATION_MODE", "canary")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("adapter_only requires a broker URL", func(t *testing.T) {
		t.Setenv("CHATWIRE_MIGRATION_MODE", "adapter_only")

		_, err := Load()
		assert.Error(t, err)
	})
}
