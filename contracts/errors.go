package contracts

import (
	"fmt"
	"time"
)

// ErrorType classifies chat errors.
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeMessage    ErrorType = "message"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSpam       ErrorType = "spam"
	ErrorTypePermission ErrorType = "permission"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
)

// ChatError is the typed error surfaced through adapter error callbacks
// and returned from side-effecting sends.
type ChatError struct {
	Type      ErrorType      `json:"type"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

// NewChatError creates a chat error with the current timestamp.
func NewChatError(errorType ErrorType, message string, retryable bool) *ChatError {
	return &ChatError{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Retryable: retryable,
	}
}

// WrapChatError wraps an underlying error.
func WrapChatError(errorType ErrorType, message string, retryable bool, cause error) *ChatError {
	e := NewChatError(errorType, message, retryable)
	e.Cause = cause
	return e
}

// Error implements error.
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// IsRetryable indicates if the error is retryable.
func (e *ChatError) IsRetryable() bool {
	return e.Retryable
}
