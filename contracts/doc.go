// Package contracts provides the core wire types for the chatwire messaging core.
//
// This package defines the types that flow through the system:
//   - Envelope: The typed unit of wire communication, discriminated by
//     feature and message type
//   - Payload types: ChatMessage, TypingIndicator, OnlineStatus,
//     PresenceUpdate, MessageReference, ChatEvent
//   - ChatError: The typed error surfaced through adapter callbacks
//
// Feature and MessageType are closed string enums decoded at the wire edge
// so dispatch happens over typed lookup tables rather than ad-hoc string
// matching.
package contracts
