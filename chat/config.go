package chat

import "time"

// Config controls which chat capabilities are active and their timing.
// The zero value is not useful; start from DefaultConfig.
type Config struct {
	// EnableTypingIndicators toggles outbound typing signals.
	EnableTypingIndicators bool
	// EnableOnlineStatus toggles outbound online/offline signals.
	EnableOnlineStatus bool
	// EnablePresenceManagement toggles outbound presence updates.
	EnablePresenceManagement bool
	// EnableMessageDeliveryConfirmation toggles seen-message receipts.
	EnableMessageDeliveryConfirmation bool

	// TypingIndicatorTimeout is how long an inbound typing indicator
	// stays active without being refreshed.
	TypingIndicatorTimeout time.Duration
	// OnlineStatusHeartbeat is the advisory interval at which callers
	// should re-send online status. The adapter records it but does not
	// enforce it; there is no heartbeat timeout on the online set.
	OnlineStatusHeartbeat time.Duration
	// PresenceUpdateInterval is the advisory interval for presence
	// refreshes, likewise not enforced by the adapter.
	PresenceUpdateInterval time.Duration
	// MaxMessageRetries is advisory to callers deciding whether to
	// re-submit a failed side-effecting send. The adapter itself never
	// retries a send.
	MaxMessageRetries int
}

// DefaultConfig returns the standard chat configuration.
func DefaultConfig() Config {
	return Config{
		EnableTypingIndicators:            true,
		EnableOnlineStatus:                true,
		EnablePresenceManagement:          true,
		EnableMessageDeliveryConfirmation: true,
		TypingIndicatorTimeout:            3 * time.Second,
		OnlineStatusHeartbeat:             30 * time.Second,
		PresenceUpdateInterval:            60 * time.Second,
		MaxMessageRetries:                 3,
	}
}

// withDefaults fills zero timing fields so a partially populated Config
// cannot disable expiry by accident.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TypingIndicatorTimeout <= 0 {
		c.TypingIndicatorTimeout = def.TypingIndicatorTimeout
	}
	if c.OnlineStatusHeartbeat <= 0 {
		c.OnlineStatusHeartbeat = def.OnlineStatusHeartbeat
	}
	if c.PresenceUpdateInterval <= 0 {
		c.PresenceUpdateInterval = def.PresenceUpdateInterval
	}
	if c.MaxMessageRetries <= 0 {
		c.MaxMessageRetries = def.MaxMessageRetries
	}
	return c
}
