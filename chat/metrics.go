package chat

import "time"

// Metrics is a snapshot of an adapter's counters. Counters reset only when
// a new adapter is constructed.
type Metrics struct {
	MessagesSent             int64         `json:"messagesSent"`
	MessagesReceived         int64         `json:"messagesReceived"`
	TypingIndicatorsSent     int64         `json:"typingIndicatorsSent"`
	TypingIndicatorsReceived int64         `json:"typingIndicatorsReceived"`
	OnlineStatusUpdates      int64         `json:"onlineStatusUpdates"`
	PresenceUpdates          int64         `json:"presenceUpdates"`
	MessagesDeleted          int64         `json:"messagesDeleted"`
	MessagesSeen             int64         `json:"messagesSeen"`
	ErrorCount               int64         `json:"errorCount"`
	LastActivity             time.Time     `json:"lastActivity"`
	ConnectionUptime         time.Duration `json:"connectionUptime"`
}

// Collector receives per-envelope observability records. Implemented by
// monitor.MetricsCollector; the adapter works without one.
type Collector interface {
	RecordSend(envelopeType string, duration time.Duration, success bool)
	RecordReceive(envelopeType string)
}
