package cache

import (
	"context"
	"fmt"
	"time"
)

// MessageTTL is the time-to-live for cached message read-models.
const MessageTTL = 5 * time.Minute

// Store is a keyed read-model cache with per-entry TTL. The cache is a
// derived, disposable view: callers treat every operation as best-effort
// and the message send itself remains the source of truth.
type Store interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// InvalidatePattern removes every key matching a glob pattern,
	// e.g. "chat:42:*".
	InvalidatePattern(ctx context.Context, pattern string) error

	// Close releases the store's resources.
	Close() error
}

// Key scheme for chat read-models.

// MessagesKey is the cache key for a chat's message read-model.
func MessagesKey(chatID string) string {
	return fmt.Sprintf("chat:%s:messages", chatID)
}

// TypingKey is the cache key for a chat's typing read-model.
func TypingKey(chatID string) string {
	return fmt.Sprintf("chat:%s:typing", chatID)
}

// OnlineKey is the cache key for a user's online read-model.
func OnlineKey(userID string) string {
	return fmt.Sprintf("chat:%s:online", userID)
}

// PresenceKey is the cache key for a user's presence read-model.
func PresenceKey(userID string) string {
	return fmt.Sprintf("chat:%s:presence", userID)
}

// ChatPattern matches every read-model key derived from a chat, used to
// invalidate dependent aggregates on each message write.
func ChatPattern(chatID string) string {
	return fmt.Sprintf("chat:%s:*", chatID)
}
