package contracts

import "time"

// ChatMessage is the payload of a chat_message envelope.
type ChatMessage struct {
	ID          string    `json:"id"`
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId,omitempty"`
	Content     string    `json:"content"`
	ContentType string    `json:"contentType,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TypingIndicator is the payload of a typing_indicator envelope.
type TypingIndicator struct {
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId"`
	IsTyping  bool      `json:"isTyping"`
	Timestamp time.Time `json:"timestamp"`
}

// OnlineStatus is the payload of an online_status envelope.
type OnlineStatus struct {
	UserID    string    `json:"userId"`
	IsOnline  bool      `json:"isOnline"`
	Timestamp time.Time `json:"timestamp"`
}

// PresenceUpdate is the payload of a presence_update envelope. Status is
// free-form ("online", "away", "busy", ...); Data carries feature-specific
// attributes the core does not interpret.
type PresenceUpdate struct {
	UserID    string         `json:"userId"`
	Status    string         `json:"status"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PresenceStatusOnline is the presence status that also feeds the online set.
const PresenceStatusOnline = "online"

// MessageReference identifies an existing message for delete_message and
// seen_message envelopes.
type MessageReference struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatEvent is the payload of a chat_event envelope, used for events that
// are not plain messages (member joined, chat renamed, ...).
type ChatEvent struct {
	ChatID    string         `json:"chatId"`
	Event     string         `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
