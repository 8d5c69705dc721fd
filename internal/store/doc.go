// Package store keeps conversations as JSON documents in a key-value store.
//
// # Layout
//
// Each conversation lives under one key:
//
//	conversation:<id>  ->  {"id":..., "messages":[...], "createdAt":..., "updatedAt":...}
//
// Timestamps are epoch milliseconds. Message order is insertion order;
// the per-message timestamp is informational.
//
// # Local conversations
//
// Ids starting with "local-" belong to conversations the client synthesized
// while the store was unreachable. They are never written: Get reports
// ErrNotFound without touching the backend and Append returns a well-formed
// message without persisting it.
//
// # Concurrency
//
// Append reads the whole document, adds one message and writes the whole
// document back. There is no lock and no compare-and-swap, so two concurrent
// appends to the same conversation can lose one of them. The expected access
// pattern is a single active client per conversation.
package store
