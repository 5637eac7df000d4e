package chat

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chatwire/chatwire-go/contracts"
)

// handleInboundMessage updates metrics and fans the message out to
// subscribers whose chat filter matches.
func (a *Adapter) handleInboundMessage(ctx context.Context, env *contracts.Envelope) error {
	var msg contracts.ChatMessage
	if err := env.DecodePayload(&msg); err != nil {
		return fmt.Errorf("failed to decode chat message: %w", err)
	}
	if msg.ChatID == "" {
		msg.ChatID = env.ChatID
	}

	if a.collector != nil {
		a.collector.RecordReceive(env.Type)
	}

	a.mu.Lock()
	a.metrics.MessagesReceived++
	a.metrics.LastActivity = time.Now().UTC()
	callbacks := make([]MessageCallback, 0, len(a.messageSubs))
	for _, sub := range a.messageSubs {
		if sub.chatID == "" || sub.chatID == msg.ChatID {
			callbacks = append(callbacks, sub.cb)
		}
	}
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb(msg)
	}
	return nil
}

// handleInboundTyping maintains the typing set. An isTyping=true entry
// expires after the configured timeout unless refreshed; only one expiry
// timer exists per (chat, user), the latest event wins. An isTyping=false
// entry is removed immediately.
func (a *Adapter) handleInboundTyping(ctx context.Context, env *contracts.Envelope) error {
	var indicator contracts.TypingIndicator
	if err := env.DecodePayload(&indicator); err != nil {
		return fmt.Errorf("failed to decode typing indicator: %w", err)
	}
	if indicator.ChatID == "" {
		indicator.ChatID = env.ChatID
	}

	if a.collector != nil {
		a.collector.RecordReceive(env.Type)
	}

	key := typingKey{chatID: indicator.ChatID, userID: indicator.UserID}

	a.mu.Lock()
	if a.state == stateDisposed {
		a.mu.Unlock()
		return nil
	}
	a.metrics.TypingIndicatorsReceived++
	a.metrics.LastActivity = time.Now().UTC()

	if existing, ok := a.typing[key]; ok {
		existing.Stop()
		delete(a.typing, key)
	}
	if indicator.IsTyping {
		timeout := a.config.TypingIndicatorTimeout
		a.typing[key] = time.AfterFunc(timeout, func() {
			a.expireTyping(key)
		})
	}

	users := a.typingUsersLocked(indicator.ChatID)
	callbacks := a.typingCallbacksLocked(indicator.ChatID)
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb(indicator.ChatID, users)
	}
	return nil
}

// expireTyping fires when a typing entry outlives its timeout.
func (a *Adapter) expireTyping(key typingKey) {
	a.mu.Lock()
	if a.state == stateDisposed {
		a.mu.Unlock()
		return
	}
	if _, ok := a.typing[key]; !ok {
		// already removed by an explicit isTyping=false or a newer timer
		a.mu.Unlock()
		return
	}
	delete(a.typing, key)
	users := a.typingUsersLocked(key.chatID)
	callbacks := a.typingCallbacksLocked(key.chatID)
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb(key.chatID, users)
	}
}

func (a *Adapter) typingUsersLocked(chatID string) []string {
	users := make([]string, 0)
	for key := range a.typing {
		if key.chatID == chatID {
			users = append(users, key.userID)
		}
	}
	sort.Strings(users)
	return users
}

func (a *Adapter) typingCallbacksLocked(chatID string) []TypingCallback {
	callbacks := make([]TypingCallback, 0, len(a.typingSubs))
	for _, sub := range a.typingSubs {
		if sub.chatID == "" || sub.chatID == chatID {
			callbacks = append(callbacks, sub.cb)
		}
	}
	return callbacks
}

// handleInboundOnlineStatus maintains the online set. There is no TTL on
// entries: removal relies on explicit offline events.
func (a *Adapter) handleInboundOnlineStatus(ctx context.Context, env *contracts.Envelope) error {
	var status contracts.OnlineStatus
	if err := env.DecodePayload(&status); err != nil {
		return fmt.Errorf("failed to decode online status: %w", err)
	}

	if a.collector != nil {
		a.collector.RecordReceive(env.Type)
	}

	a.updateOnline(status.UserID, status.IsOnline)
	return nil
}

// handleInboundPresence forwards presence updates to subscribers and feeds
// the online set when the status maps onto online/offline.
func (a *Adapter) handleInboundPresence(ctx context.Context, env *contracts.Envelope) error {
	var presence contracts.PresenceUpdate
	if err := env.DecodePayload(&presence); err != nil {
		return fmt.Errorf("failed to decode presence update: %w", err)
	}

	if a.collector != nil {
		a.collector.RecordReceive(env.Type)
	}

	if presence.Status == contracts.PresenceStatusOnline {
		a.updateOnline(presence.UserID, true)
	} else if presence.Status == "offline" {
		a.updateOnline(presence.UserID, false)
	}

	a.mu.Lock()
	a.metrics.PresenceUpdates++
	callbacks := make([]PresenceCallback, 0, len(a.presenceSubs))
	for _, cb := range a.presenceSubs {
		callbacks = append(callbacks, cb)
	}
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb(presence)
	}
	return nil
}

func (a *Adapter) updateOnline(userID string, isOnline bool) {
	a.mu.Lock()
	if a.state == stateDisposed {
		a.mu.Unlock()
		return
	}
	_, was := a.online[userID]
	if isOnline {
		a.online[userID] = struct{}{}
	} else {
		delete(a.online, userID)
	}
	changed := was != isOnline
	a.metrics.OnlineStatusUpdates++
	a.metrics.LastActivity = time.Now().UTC()
	callbacks := make([]OnlineCallback, 0, len(a.onlineSubs))
	for _, cb := range a.onlineSubs {
		callbacks = append(callbacks, cb)
	}
	a.mu.Unlock()

	if !changed {
		return
	}
	for _, cb := range callbacks {
		cb(userID, isOnline)
	}
}

// handleInboundChatEvent fans out chat events, including remote deletions
// and seen receipts surfaced as events.
func (a *Adapter) handleInboundChatEvent(ctx context.Context, env *contracts.Envelope) error {
	var event contracts.ChatEvent
	if err := env.DecodePayload(&event); err != nil {
		return fmt.Errorf("failed to decode chat event: %w", err)
	}
	if event.ChatID == "" {
		event.ChatID = env.ChatID
	}
	if event.Event == "" {
		event.Event = env.Type
	}

	if a.collector != nil {
		a.collector.RecordReceive(env.Type)
	}

	a.mu.Lock()
	a.metrics.LastActivity = time.Now().UTC()
	callbacks := make([]ChatEventCallback, 0, len(a.eventSubs))
	for _, sub := range a.eventSubs {
		if sub.chatID == "" || sub.chatID == event.ChatID {
			callbacks = append(callbacks, sub.cb)
		}
	}
	a.mu.Unlock()

	for _, cb := range callbacks {
		cb(event)
	}
	return nil
}
