// Package chatwire wires the chat messaging stack together: transports,
// routing, feature adapters, the migration router, and monitoring.
package chatwire

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/chatwire/chatwire-go/cache"
	"github.com/chatwire/chatwire-go/chat"
	"github.com/chatwire/chatwire-go/config"
	"github.com/chatwire/chatwire-go/migration"
	"github.com/chatwire/chatwire-go/monitor"
	"github.com/chatwire/chatwire-go/routing"
	amqptransport "github.com/chatwire/chatwire-go/transport/amqp"
	wstransport "github.com/chatwire/chatwire-go/transport/websocket"
)

// Client is the main entry point for chatwire-go. It owns the legacy
// WebSocket path, the optional enterprise AMQP path, and the migration
// router that decides which one carries each send.
type Client struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     cache.Store
	ownsStore bool
	collector *monitor.MetricsCollector
	health    *monitor.HealthRegistry

	legacyTransport     *wstransport.Transport
	enterpriseTransport *amqptransport.Transport
	legacyChat          *chat.Adapter
	enterpriseChat      *chat.Adapter
	router              *migration.Router
}

type clientConfig struct {
	logger *slog.Logger
	store  cache.Store
}

// ClientOption configures the client.
type ClientOption func(*clientConfig)

// WithLogger sets the logger used by every component the client builds.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithCacheStore overrides the cache store. When set, the client does not
// close the store on Close; the caller owns it.
func WithCacheStore(store cache.Store) ClientOption {
	return func(c *clientConfig) {
		c.store = store
	}
}

// NewClient builds and connects a client from the given configuration.
// The legacy transport is always dialed; the enterprise transport only
// when an AMQP URL is configured. On error nothing is left running.
func NewClient(ctx context.Context, cfg *config.Config, options ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &clientConfig{}
	for _, opt := range options {
		opt(opts)
	}

	logger := opts.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		}))
	}

	c := &Client{
		cfg:       cfg,
		logger:    logger,
		collector: monitor.NewMetricsCollector(),
		health:    monitor.NewHealthRegistry(),
	}

	if opts.store != nil {
		c.store = opts.store
	} else if cfg.RedisURL != "" {
		store, err := cache.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect cache: %w", err)
		}
		c.store = store
		c.ownsStore = true
	} else {
		c.store = cache.NewMemoryStore()
		c.ownsStore = true
	}

	if err := c.start(ctx); err != nil {
		c.shutdown()
		return nil, err
	}
	return c, nil
}

func (c *Client) start(ctx context.Context) error {
	cfg := c.cfg
	chatCfg := chatConfig(cfg)

	wsOpts := []wstransport.Option{wstransport.WithLogger(c.logger)}
	if cfg.AuthToken != "" {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+cfg.AuthToken)
		wsOpts = append(wsOpts, wstransport.WithHeader(header))
	}
	c.legacyTransport = wstransport.NewTransport(cfg.LegacyURL, wsOpts...)
	c.legacyChat = chat.NewAdapter(
		c.legacyTransport,
		routing.NewRouter(routing.WithLogger(c.logger)),
		chat.WithLogger(c.logger),
		chat.WithCache(c.store),
		chat.WithCollector(c.collector),
	)
	if err := c.legacyTransport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect legacy transport: %w", err)
	}
	if err := c.legacyChat.Initialize(ctx, chatCfg); err != nil {
		return fmt.Errorf("failed to initialize legacy chat adapter: %w", err)
	}
	c.health.Register(monitor.NewTransportChecker("legacy-websocket", c.legacyTransport))

	// The enterprise Sender stays a nil interface when no AMQP URL is
	// configured so the migration router sees it as absent.
	var enterprise migration.Sender
	if cfg.EnterpriseURL != "" {
		c.enterpriseTransport = amqptransport.NewTransport(cfg.EnterpriseURL,
			amqptransport.WithLogger(c.logger))
		c.enterpriseChat = chat.NewAdapter(
			c.enterpriseTransport,
			routing.NewRouter(routing.WithLogger(c.logger)),
			chat.WithLogger(c.logger),
			chat.WithCache(c.store),
			chat.WithCollector(c.collector),
		)
		if err := c.enterpriseTransport.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect enterprise transport: %w", err)
		}
		if err := c.enterpriseChat.Initialize(ctx, chatCfg); err != nil {
			return fmt.Errorf("failed to initialize enterprise chat adapter: %w", err)
		}
		c.health.Register(monitor.NewTransportChecker("enterprise-amqp", c.enterpriseTransport))
		enterprise = c.enterpriseChat
	}

	router, err := migration.NewRouter(c.legacyChat, enterprise,
		migration.WithMode(migration.Mode(cfg.Mode)),
		migration.WithFeatureFlags(migration.FeatureFlags{
			UseEnterpriseAdapter: cfg.UseEnterpriseAdapter,
		}),
		migration.WithLegacyFallback(cfg.EnableLegacyFallback),
		migration.WithLogger(c.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create migration router: %w", err)
	}
	c.router = router

	c.logger.Info("chatwire client started",
		"mode", cfg.Mode,
		"enterprise", cfg.EnterpriseURL != "",
		"fallback", cfg.EnableLegacyFallback)
	return nil
}

// Chat returns the migration router, the send surface callers use.
func (c *Client) Chat() *migration.Router {
	return c.router
}

// LegacyChat returns the legacy-path chat adapter, for subscriptions.
func (c *Client) LegacyChat() *chat.Adapter {
	return c.legacyChat
}

// EnterpriseChat returns the enterprise-path chat adapter, or nil when
// no AMQP URL was configured.
func (c *Client) EnterpriseChat() *chat.Adapter {
	return c.enterpriseChat
}

// Health runs all registered health checks.
func (c *Client) Health(ctx context.Context) monitor.OverallHealth {
	return c.health.CheckAll(ctx)
}

// Metrics returns a snapshot of send/receive counters.
func (c *Client) Metrics() monitor.MetricsSummary {
	return c.collector.Summary()
}

// Close tears everything down: adapters first, then transports, then the
// cache store if the client created it. Safe to call more than once.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	if c.enterpriseChat != nil {
		c.enterpriseChat.Cleanup()
	}
	if c.legacyChat != nil {
		c.legacyChat.Cleanup()
	}
	if c.enterpriseTransport != nil {
		if err := c.enterpriseTransport.Close(); err != nil {
			c.logger.Warn("failed to close enterprise transport", "error", err)
		}
	}
	if c.legacyTransport != nil {
		if err := c.legacyTransport.Close(); err != nil {
			c.logger.Warn("failed to close legacy transport", "error", err)
		}
	}
	if c.ownsStore && c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warn("failed to close cache store", "error", err)
		}
	}
}

func chatConfig(cfg *config.Config) chat.Config {
	return chat.Config{
		EnableTypingIndicators:            cfg.EnableTypingIndicators,
		EnableOnlineStatus:                cfg.EnableOnlineStatus,
		EnablePresenceManagement:          cfg.EnablePresenceManagement,
		EnableMessageDeliveryConfirmation: cfg.EnableMessageDeliveryConfirmation,
		TypingIndicatorTimeout:            cfg.TypingIndicatorTimeout,
		OnlineStatusHeartbeat:             cfg.OnlineStatusHeartbeat,
		PresenceUpdateInterval:            cfg.PresenceUpdateInterval,
		MaxMessageRetries:                 cfg.MaxMessageRetries,
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
