// Package group implements composite entity groups for Gray Logic Groups.
//
// A group watches a set of member entities and derives a single composite
// state and attribute set from them, using per-domain merge policies. The
// composite is republished into the state store under the group's own
// entity ID (group.<slug>), which makes groups themselves aggregatable by
// other groups.
//
// # Architecture
//
//	member_refs ──▶ Resolver ──▶ Expand (nested groups, cycle guard)
//	                                  │
//	                                  ▼
//	state store ◀── Entity ◀── Aggregate(members, mode, policy)
//	     │             ▲
//	     └── Watch ────┘        Manager owns entity lifecycle
//
// The package splits into:
//   - Resolver: member_refs → ordered, de-duplicated entity IDs, with
//     registry-backed unique-ID resolution
//   - Expand: recursive flattening of nested groups with ancestor/self
//     exclusion
//   - Aggregate: the pure composite-state function (availability and
//     unknown rules, ANY/ALL modes, priority chains, numeric means,
//     feature-mask union)
//   - Entity: the addressable façade; recompute-and-republish plus
//     service fan-out to members
//   - Manager: creation from static config and runtime calls, removal,
//     and reload semantics
//
// # Concurrency
//
// Aggregate is pure and synchronous; a group's recompute may trigger a
// parent group's recompute in the same call stack. Termination is
// guaranteed structurally because Expand produces acyclic memberships.
// Service fan-out is the only suspension point and uses an errgroup to
// join member calls.
package group
