// Package agent decides which specialized agent answers a message.
//
// # Agents
//
// Three agents exist:
//
//   - troubleshooting: property defects, repairs, maintenance
//   - tenancy: leases, rent, deposits, landlord/tenant rights
//   - general: fallback that asks the user for more detail
//
// # Routing
//
// Route scores a message against two fixed keyword sets using
// case-insensitive substring matching:
//
//	troubleshooting: repair broken leak damage mold issue problem fix maintenance
//	tenancy:         lease rent tenant landlord agreement deposit eviction notice rights
//
// The higher score wins. No hits at all yields general. A tie with hits on
// both sides yields troubleshooting.
//
// A message carrying an image is always routed to troubleshooting, since
// images are assumed to show property defects.
//
// # Decide
//
// Callers that let the user pick an agent use Decide:
//
//	agent.Decide(selected, text, hasImage)
//
// An image overrides everything, an explicit selection overrides the
// keyword router, and with no selection the router decides.
//
// Everything in this package is pure and safe to call on every message
// before any network I/O.
package agent
