// Package chat implements the chat feature adapter: the façade that turns
// domain actions (send message, typing, presence, receipts) into envelopes
// on a shared transport and maintains the derived local state driven by
// inbound envelopes.
//
// The adapter owns three pieces of derived state:
//   - the typing set: per-chat users currently typing, expired on a
//     per-(chat,user) timer
//   - the online set: users known online, driven purely by explicit events
//   - the metrics counters, reset only when a new adapter is constructed
//
// Error propagation is deliberately asymmetric. Message sends, deletions
// and seen receipts return their errors: the caller must see message
// loss. Typing, online status and presence are best-effort signals whose
// failures are counted and reported through the error callback but never
// returned, so presence loss can never block the UI.
package chat
