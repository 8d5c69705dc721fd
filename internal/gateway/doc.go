// Package gateway serves the propdesk HTTP API.
//
// # Endpoints
//
//	POST /conversation                  create an empty conversation
//	GET  /conversation?id=X             fetch one conversation
//	GET  /conversation?limit=N          most recently updated conversations (default 10)
//	POST /chat                          run one chat turn, returns the assistant message
//	GET  /conversation/transcript?id=X  HTML transcript, assistant markdown rendered
//	GET  /conversation/events?id=X      SSE stream of messages appended via /chat
//	GET  /health                        liveness
//	GET  /health/ready                  store reachability
//
// Errors are JSON objects of the form {"error": "..."}.
//
// # Chat
//
// POST /chat takes:
//
//	{
//	  "conversationId": "…",
//	  "message": {"content": "My roof has a leak"},
//	  "imageData": "<base64 or data URI>",   // optional
//	  "agentType": "tenancy",                // optional explicit agent
//	  "requestId": "…"                       // optional idempotency key
//	}
//
// Status codes: 400 for a malformed body, missing fields or an unknown
// agentType; 404 when the conversation does not exist; 409 when requestId
// was already used (the earlier reply is included once it is known); 413
// for bodies over 10 MiB; 500 otherwise.
//
// A failed LLM call is not an error at this level: the turn completes with
// an apology message. A failed store write is logged and the reply is still
// returned.
package gateway
