// Package conversation sequences one chat turn end to end.
//
// # Session
//
// A Session owns the in-memory copy of one conversation. Send runs a turn:
//
//	idle -> sending-user-msg -> routing -> generating -> sending-assistant-msg -> idle
//
// The user message is appended locally first, then persisted. The agent is
// chosen with agent.Decide, a reply is generated, and the assistant message is
// appended and persisted the same way. If generation fails the session passes
// through the error state and still appends an apology, so every user message
// gets exactly one assistant message.
//
// Persistence is best-effort. A failed or panicking Append is logged and the
// turn carries on with local state only. When an Append succeeds the local
// message is replaced by the stored one so ids match the durable copy.
//
// Only one Send may run at a time per Session; a concurrent call gets ErrBusy.
//
// # Client state
//
// ClientState is the file that remembers the current conversation id between
// runs of the chat client. Bootstrap reads it, falls back to creating a new
// durable conversation, and falls back again to a local-only conversation
// when the store is unreachable.
//
// # Hub
//
// Hub fans settled messages out to subscribers of a conversation id. The
// gateway uses it for its event stream.
package conversation
