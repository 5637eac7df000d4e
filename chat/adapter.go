package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatwire/chatwire-go/cache"
	"github.com/chatwire/chatwire-go/contracts"
	"github.com/chatwire/chatwire-go/routing"
	"github.com/chatwire/chatwire-go/transport"
)

// Adapter lifecycle errors. Every outbound method fails fast with one of
// these when the adapter is not ready; a disposed adapter never silently
// no-ops.
var (
	ErrNotInitialized = errors.New("chat adapter not initialized")
	ErrDisposed       = errors.New("chat adapter disposed")
)

type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateInitializing
	stateReady
	stateDisposed
)

// Handlers are the adapter-level event callbacks.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnError      func(err *contracts.ChatError)
}

// Subscriber callback types.
type (
	MessageCallback   func(msg contracts.ChatMessage)
	TypingCallback    func(chatID string, typingUserIDs []string)
	OnlineCallback    func(userID string, isOnline bool)
	PresenceCallback  func(update contracts.PresenceUpdate)
	ChatEventCallback func(event contracts.ChatEvent)
)

type messageSub struct {
	chatID string
	cb     MessageCallback
}

type typingSub struct {
	chatID string
	cb     TypingCallback
}

type chatEventSub struct {
	chatID string
	cb     ChatEventCallback
}

type typingKey struct {
	chatID string
	userID string
}

// Adapter is the chat feature adapter: it translates domain actions into
// envelopes on the transport, maintains the typing and online sets from
// inbound envelopes, and tracks per-instance metrics.
//
// Side-effecting sends (SendMessage, DeleteMessage, MarkMessageAsSeen)
// return transport errors to the caller. Best-effort signals
// (SendTypingIndicator, SendOnlineStatus, UpdatePresence) swallow them:
// the failure is counted and reported through the error callback, but the
// UI must never block on presence loss.
type Adapter struct {
	transport transport.Transport
	router    *routing.Router
	store     cache.Store
	collector Collector
	logger    *slog.Logger

	mu          sync.Mutex
	state       lifecycle
	config      Config
	handlers    Handlers
	unsubscribe func()

	typing       map[typingKey]*time.Timer
	online       map[string]struct{}
	messageSubs  map[int]messageSub
	typingSubs   map[int]typingSub
	onlineSubs   map[int]OnlineCallback
	presenceSubs map[int]PresenceCallback
	eventSubs    map[int]chatEventSub
	nextSubID    int

	metrics   Metrics
	startTime time.Time
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithCache sets the read-model cache store. Without one, cache
// interactions are skipped entirely.
func WithCache(store cache.Store) Option {
	return func(a *Adapter) {
		a.store = store
	}
}

// WithCollector sets the observability collector.
func WithCollector(collector Collector) Option {
	return func(a *Adapter) {
		a.collector = collector
	}
}

// NewAdapter creates a chat adapter over the given transport and router.
// Call Initialize before sending.
func NewAdapter(t transport.Transport, r *routing.Router, options ...Option) *Adapter {
	a := &Adapter{
		transport:    t,
		router:       r,
		logger:       slog.Default(),
		config:       DefaultConfig(),
		typing:       make(map[typingKey]*time.Timer),
		online:       make(map[string]struct{}),
		messageSubs:  make(map[int]messageSub),
		typingSubs:   make(map[int]typingSub),
		onlineSubs:   make(map[int]OnlineCallback),
		presenceSubs: make(map[int]PresenceCallback),
		eventSubs:    make(map[int]chatEventSub),
		startTime:    time.Now(),
	}

	for _, opt := range options {
		opt(a)
	}

	return a
}

// Initialize registers the chat routes with the router and subscribes to
// the transport. It is idempotent: calling it again once ready is a no-op.
// A disposed adapter cannot be re-initialized.
func (a *Adapter) Initialize(ctx context.Context, config Config) error {
	a.mu.Lock()
	switch a.state {
	case stateDisposed:
		a.mu.Unlock()
		return ErrDisposed
	case stateReady, stateInitializing:
		a.mu.Unlock()
		return nil
	}
	a.state = stateInitializing
	a.config = config.withDefaults()
	a.mu.Unlock()

	a.registerRoutes()

	unsubscribe, err := a.transport.Subscribe(contracts.FeatureChat, transport.Callbacks{
		OnMessage: func(env *contracts.Envelope) {
			a.router.RouteMessage(context.Background(), env)
		},
		OnConnect: func() {
			a.mu.Lock()
			cb := a.handlers.OnConnect
			a.mu.Unlock()
			if cb != nil {
				cb()
			}
		},
		OnDisconnect: func(err error) {
			a.mu.Lock()
			cb := a.handlers.OnDisconnect
			a.mu.Unlock()
			if cb != nil {
				cb(err)
			}
		},
		OnError: func(err error) {
			a.recordError()
			a.notifyError(contracts.WrapChatError(contracts.ErrorTypeConnection, "transport error", true, err))
		},
	})
	if err != nil {
		a.router.UnregisterFeature(contracts.FeatureChat)
		a.mu.Lock()
		a.state = stateUninitialized
		a.mu.Unlock()
		return fmt.Errorf("failed to subscribe to transport: %w", err)
	}

	a.mu.Lock()
	a.unsubscribe = unsubscribe
	a.state = stateReady
	a.mu.Unlock()

	a.logger.Info("chat adapter initialized",
		"typingTimeout", a.config.TypingIndicatorTimeout,
		"typingIndicators", a.config.EnableTypingIndicators,
		"onlineStatus", a.config.EnableOnlineStatus,
	)
	return nil
}

// registerRoutes wires the inbound dispatch table. One route per message
// type; handlers update local state before fanning out to subscribers.
func (a *Adapter) registerRoutes() {
	routes := []struct {
		messageType contracts.MessageType
		handler     routing.Handler
	}{
		{contracts.MessageTypeMessage, a.handleInboundMessage},
		{contracts.MessageTypeTyping, a.handleInboundTyping},
		{contracts.MessageTypeOnlineStatus, a.handleInboundOnlineStatus},
		{contracts.MessageTypePresence, a.handleInboundPresence},
		{contracts.MessageTypeChatEvent, a.handleInboundChatEvent},
	}

	for _, route := range routes {
		a.router.RegisterRoute(routing.Route{
			Feature:     contracts.FeatureChat,
			MessageType: route.messageType,
			Handler:     route.handler,
			Enabled:     true,
		})
	}

	a.router.SetErrorCallback(contracts.FeatureChat, func(env *contracts.Envelope, err error) {
		a.recordError()
		a.notifyError(contracts.WrapChatError(contracts.ErrorTypeMessage,
			fmt.Sprintf("inbound %s handler failed", env.Type), true, err))
	})
}

// Cleanup unsubscribes from the transport, unregisters every chat route,
// stops all typing timers, and clears local state. It is idempotent and
// transitions the adapter to disposed: all outbound methods fail fast
// afterwards.
func (a *Adapter) Cleanup() {
	a.mu.Lock()
	if a.state == stateDisposed {
		a.mu.Unlock()
		return
	}
	a.state = stateDisposed

	for _, timer := range a.typing {
		timer.Stop()
	}
	a.typing = make(map[typingKey]*time.Timer)
	a.online = make(map[string]struct{})
	a.messageSubs = make(map[int]messageSub)
	a.typingSubs = make(map[int]typingSub)
	a.onlineSubs = make(map[int]OnlineCallback)
	a.presenceSubs = make(map[int]PresenceCallback)
	a.eventSubs = make(map[int]chatEventSub)

	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	a.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	a.router.UnregisterFeature(contracts.FeatureChat)

	a.logger.Info("chat adapter cleaned up")
}

// checkReady fails fast when the adapter cannot send.
func (a *Adapter) checkReady() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case stateReady:
		return nil
	case stateDisposed:
		return ErrDisposed
	default:
		return ErrNotInitialized
	}
}

// SendMessage sends a chat message. The returned error must be handled:
// message loss is always visible to the caller. On success the message is
// written through to the read cache and dependent aggregates for the chat
// are invalidated; cache failures are logged, never returned.
func (a *Adapter) SendMessage(ctx context.Context, chatID string, msg contracts.ChatMessage) error {
	if err := a.checkReady(); err != nil {
		return err
	}

	msg.ChatID = chatID
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	env := contracts.NewEnvelope(contracts.TypeChatMessage, contracts.FeatureChat, contracts.MessageTypeMessage)
	env.ChatID = chatID
	env.UserID = msg.SenderID
	if _, err := env.WithPayload(msg); err != nil {
		a.recordError()
		chatErr := contracts.WrapChatError(contracts.ErrorTypeValidation, "failed to encode message", false, err)
		a.notifyError(chatErr)
		return chatErr
	}

	if err := a.sendEnvelope(ctx, env, true); err != nil {
		return err
	}

	a.mu.Lock()
	a.metrics.MessagesSent++
	a.mu.Unlock()

	a.writeThroughCache(ctx, chatID, msg)
	return nil
}

// SendTypingIndicator signals that a user started or stopped typing. Loss
// is tolerated: transport errors are counted and reported, never returned.
func (a *Adapter) SendTypingIndicator(ctx context.Context, chatID, userID string, isTyping bool) error {
	if err := a.checkReady(); err != nil {
		return err
	}
	if !a.configSnapshot().EnableTypingIndicators {
		return nil
	}

	env := contracts.NewEnvelope(contracts.TypeTypingIndicator, contracts.FeatureChat, contracts.MessageTypeTyping)
	env.ChatID = chatID
	env.UserID = userID
	env.Metadata.Priority = contracts.PriorityLow
	if _, err := env.WithPayload(contracts.TypingIndicator{
		ChatID:    chatID,
		UserID:    userID,
		IsTyping:  isTyping,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return nil
	}

	if err := a.sendEnvelope(ctx, env, false); err != nil {
		return err
	}

	a.mu.Lock()
	a.metrics.TypingIndicatorsSent++
	a.mu.Unlock()
	return nil
}

// SendOnlineStatus signals online/offline. Best-effort like typing.
func (a *Adapter) SendOnlineStatus(ctx context.Context, userID string, isOnline bool) error {
	if err := a.checkReady(); err != nil {
		return err
	}
	if !a.configSnapshot().EnableOnlineStatus {
		return nil
	}

	env := contracts.NewEnvelope(contracts.TypeOnlineStatus, contracts.FeatureChat, contracts.MessageTypeOnlineStatus)
	env.UserID = userID
	env.Metadata.Priority = contracts.PriorityLow
	if _, err := env.WithPayload(contracts.OnlineStatus{
		UserID:    userID,
		IsOnline:  isOnline,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return nil
	}

	if err := a.sendEnvelope(ctx, env, false); err != nil {
		return err
	}

	a.mu.Lock()
	a.metrics.OnlineStatusUpdates++
	a.mu.Unlock()
	return nil
}

// UpdatePresence publishes a presence update. Best-effort like typing.
func (a *Adapter) UpdatePresence(ctx context.Context, presence contracts.PresenceUpdate) error {
	if err := a.checkReady(); err != nil {
		return err
	}
	if !a.configSnapshot().EnablePresenceManagement {
		return nil
	}

	if presence.Timestamp.IsZero() {
		presence.Timestamp = time.Now().UTC()
	}

	env := contracts.NewEnvelope(contracts.TypePresenceUpdate, contracts.FeatureChat, contracts.MessageTypePresence)
	env.UserID = presence.UserID
	env.Metadata.Priority = contracts.PriorityLow
	if _, err := env.WithPayload(presence); err != nil {
		return nil
	}

	if err := a.sendEnvelope(ctx, env, false); err != nil {
		return err
	}

	a.mu.Lock()
	a.metrics.PresenceUpdates++
	a.mu.Unlock()
	return nil
}

// DeleteMessage requests deletion of an existing message. Side-effecting:
// errors are returned. Dependent cached aggregates for the chat are
// invalidated on success.
func (a *Adapter) DeleteMessage(ctx context.Context, messageID, chatID string) error {
	if err := a.checkReady(); err != nil {
		return err
	}

	env := contracts.NewEnvelope(contracts.TypeDeleteMessage, contracts.FeatureChat, contracts.MessageTypeChatEvent)
	env.ChatID = chatID
	if _, err := env.WithPayload(contracts.MessageReference{
		MessageID: messageID,
		ChatID:    chatID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		a.recordError()
		chatErr := contracts.WrapChatError(contracts.ErrorTypeValidation, "failed to encode delete request", false, err)
		a.notifyError(chatErr)
		return chatErr
	}

	if err := a.sendEnvelope(ctx, env, true); err != nil {
		return err
	}

	a.mu.Lock()
	a.metrics.MessagesDeleted++
	a.mu.Unlock()

	a.invalidateChat(ctx, chatID)
	return nil
}

// MarkMessageAsSeen sends a delivery receipt. Side-effecting: errors are
// returned so the caller knows the receipt was not recorded.
func (a *Adapter) MarkMessageAsSeen(ctx context.Context, messageID, chatID string) error {
	if err := a.checkReady(); err != nil {
		return err
	}
	if !a.configSnapshot().EnableMessageDeliveryConfirmation {
		return nil
	}

	env := contracts.NewEnvelope(contracts.TypeSeenMessage, contracts.FeatureChat, contracts.MessageTypeChatEvent)
	env.ChatID = chatID
	if _, err := env.WithPayload(contracts.MessageReference{
		MessageID: messageID,
		ChatID:    chatID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		a.recordError()
		chatErr := contracts.WrapChatError(contracts.ErrorTypeValidation, "failed to encode seen receipt", false, err)
		a.notifyError(chatErr)
		return chatErr
	}

	if err := a.sendEnvelope(ctx, env, true); err != nil {
		return err
	}

	a.mu.Lock()
	a.metrics.MessagesSeen++
	a.mu.Unlock()
	return nil
}

// sendEnvelope performs one transport send with bookkeeping. rethrow
// selects the propagation policy: side-effecting sends return the typed
// error, best-effort signals swallow it after counting and reporting.
func (a *Adapter) sendEnvelope(ctx context.Context, env *contracts.Envelope, rethrow bool) error {
	start := time.Now()
	err := a.transport.Send(ctx, env)
	if a.collector != nil {
		a.collector.RecordSend(env.Type, time.Since(start), err == nil)
	}

	if err != nil {
		a.recordError()

		errType := contracts.ErrorTypeMessage
		if errors.Is(err, transport.ErrNotConnected) {
			errType = contracts.ErrorTypeConnection
		}
		chatErr := contracts.WrapChatError(errType, fmt.Sprintf("failed to send %s", env.Type), true, err)
		a.notifyError(chatErr)

		if rethrow {
			return chatErr
		}
		a.logger.Warn("best-effort send failed", "type", env.Type, "error", err)
		return nil
	}

	a.touchActivity()
	return nil
}

// writeThroughCache stores the sent message and invalidates dependent
// aggregates. The cache is a disposable read-model: failures are logged
// and swallowed.
func (a *Adapter) writeThroughCache(ctx context.Context, chatID string, msg contracts.ChatMessage) {
	if a.store == nil {
		return
	}

	env := contracts.NewEnvelope(contracts.TypeChatMessage, contracts.FeatureChat, contracts.MessageTypeMessage)
	payload, err := env.WithPayload(msg)
	if err != nil {
		a.logger.Warn("cache write skipped, message not encodable", "chatId", chatID, "error", err)
		return
	}

	if err := a.store.Set(ctx, cache.MessagesKey(chatID), payload.Payload, cache.MessageTTL); err != nil {
		a.logger.Warn("cache write failed", "chatId", chatID, "error", err)
	}
	a.invalidateChat(ctx, chatID)
}

func (a *Adapter) invalidateChat(ctx context.Context, chatID string) {
	if a.store == nil {
		return
	}
	if err := a.store.InvalidatePattern(ctx, cache.ChatPattern(chatID)); err != nil {
		a.logger.Warn("cache invalidation failed", "chatId", chatID, "error", err)
	}
}

// SubscribeToMessages registers a callback for inbound chat messages.
// An empty chatID receives messages for every chat. Returns an
// unsubscribe function.
func (a *Adapter) SubscribeToMessages(chatID string, cb MessageCallback) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateDisposed {
		return nil, ErrDisposed
	}

	id := a.nextSubID
	a.nextSubID++
	a.messageSubs[id] = messageSub{chatID: chatID, cb: cb}

	return func() {
		a.mu.Lock()
		delete(a.messageSubs, id)
		a.mu.Unlock()
	}, nil
}

// SubscribeToTypingIndicators registers a callback invoked with the full
// typing user list of a chat whenever it changes.
func (a *Adapter) SubscribeToTypingIndicators(chatID string, cb TypingCallback) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateDisposed {
		return nil, ErrDisposed
	}

	id := a.nextSubID
	a.nextSubID++
	a.typingSubs[id] = typingSub{chatID: chatID, cb: cb}

	return func() {
		a.mu.Lock()
		delete(a.typingSubs, id)
		a.mu.Unlock()
	}, nil
}

// SubscribeToOnlineStatus registers a callback for online/offline changes.
func (a *Adapter) SubscribeToOnlineStatus(cb OnlineCallback) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateDisposed {
		return nil, ErrDisposed
	}

	id := a.nextSubID
	a.nextSubID++
	a.onlineSubs[id] = cb

	return func() {
		a.mu.Lock()
		delete(a.onlineSubs, id)
		a.mu.Unlock()
	}, nil
}

// SubscribeToPresence registers a callback for presence updates.
func (a *Adapter) SubscribeToPresence(cb PresenceCallback) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateDisposed {
		return nil, ErrDisposed
	}

	id := a.nextSubID
	a.nextSubID++
	a.presenceSubs[id] = cb

	return func() {
		a.mu.Lock()
		delete(a.presenceSubs, id)
		a.mu.Unlock()
	}, nil
}

// SubscribeToChatEvents registers a callback for chat events. An empty
// chatID receives events for every chat.
func (a *Adapter) SubscribeToChatEvents(chatID string, cb ChatEventCallback) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == stateDisposed {
		return nil, ErrDisposed
	}

	id := a.nextSubID
	a.nextSubID++
	a.eventSubs[id] = chatEventSub{chatID: chatID, cb: cb}

	return func() {
		a.mu.Lock()
		delete(a.eventSubs, id)
		a.mu.Unlock()
	}, nil
}

// SetEventHandlers replaces the adapter-level event callbacks. Safe to
// call repeatedly, including after mode switches.
func (a *Adapter) SetEventHandlers(handlers Handlers) {
	a.mu.Lock()
	a.handlers = handlers
	a.mu.Unlock()
}

// Metrics returns a snapshot of the adapter's counters.
func (a *Adapter) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := a.metrics
	snapshot.ConnectionUptime = time.Since(a.startTime)
	return snapshot
}

// TypingIndicators returns the users currently typing in a chat, sorted.
func (a *Adapter) TypingIndicators(chatID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.typingUsersLocked(chatID)
}

// OnlineUsers returns the users currently known online, sorted.
func (a *Adapter) OnlineUsers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	users := make([]string, 0, len(a.online))
	for userID := range a.online {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

func (a *Adapter) configSnapshot() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

func (a *Adapter) touchActivity() {
	a.mu.Lock()
	a.metrics.LastActivity = time.Now().UTC()
	a.mu.Unlock()
}

func (a *Adapter) recordError() {
	a.mu.Lock()
	a.metrics.ErrorCount++
	a.mu.Unlock()
}

func (a *Adapter) notifyError(err *contracts.ChatError) {
	a.mu.Lock()
	cb := a.handlers.OnError
	a.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}
