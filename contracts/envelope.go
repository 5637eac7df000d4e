package contracts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Feature is a namespace partitioning the shared transport connection.
// Every inbound and outbound envelope belongs to exactly one feature.
type Feature string

// FeatureChat is the chat messaging feature.
const FeatureChat Feature = "chat"

// MessageType is the secondary discriminator within a feature. Together
// with Feature it selects at most one active route in the router.
type MessageType string

const (
	MessageTypeMessage      MessageType = "message"
	MessageTypeTyping       MessageType = "typing"
	MessageTypeOnlineStatus MessageType = "online_status"
	MessageTypePresence     MessageType = "presence"
	MessageTypeChatEvent    MessageType = "chat_event"
)

// Wire-level envelope type discriminators.
const (
	TypeChatMessage     = "chat_message"
	TypeTypingIndicator = "typing_indicator"
	TypeOnlineStatus    = "online_status"
	TypeDeleteMessage   = "delete_message"
	TypeSeenMessage     = "seen_message"
	TypePresenceUpdate  = "presence_update"
)

// Priority is advisory envelope metadata. It is recorded for
// observability and backpressure tuning by the transport layer but does
// not affect delivery ordering on the single transport channel.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Metadata carries advisory envelope attributes.
type Metadata struct {
	Priority Priority `json:"priority,omitempty"`
}

// Envelope wraps messages for transport.
type Envelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Feature     Feature         `json:"feature"`
	MessageType MessageType     `json:"messageType"`
	ChatID      string          `json:"chatId,omitempty"`
	UserID      string          `json:"userId,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Metadata    Metadata        `json:"metadata"`
}

// NewEnvelope creates an envelope with a generated ID and current timestamp.
func NewEnvelope(envelopeType string, feature Feature, messageType MessageType) *Envelope {
	return &Envelope{
		ID:          uuid.New().String(),
		Type:        envelopeType,
		Feature:     feature,
		MessageType: messageType,
		Timestamp:   time.Now().UTC(),
		Metadata:    Metadata{Priority: PriorityMedium},
	}
}

// WithPayload marshals body into the envelope payload and returns the
// envelope for chaining. Marshal errors are returned, not swallowed,
// because an envelope with a half-built payload must never reach the wire.
func (e *Envelope) WithPayload(body any) (*Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	e.Payload = raw
	return e, nil
}

// DecodePayload unmarshals the envelope payload into out.
func (e *Envelope) DecodePayload(out any) error {
	return json.Unmarshal(e.Payload, out)
}
