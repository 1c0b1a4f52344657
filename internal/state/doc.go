// Package state provides the in-memory entity state store for Gray Logic Groups.
//
// The store maps entity IDs to their last known state record and notifies
// registered watchers synchronously when a state changes. Synchronous
// dispatch is what allows a group that contains another group to recompute
// in the same call stack as the inner group's republish, so nested
// composites settle without scheduling delays.
//
// # Architecture
//
//	MQTT ingress ──▶ Store.Set ──▶ watchers (group recompute) ──▶ Store.Set (group.*)
//	                                                          └──▶ MQTT egress
//
// # Sentinel states
//
// Two sentinel values are never treated as ordinary states:
//   - "unavailable": the entity's source is offline or gone
//   - "unknown": the source is reachable but has not reported yet
//
// An entity missing from the store entirely is treated as unavailable by
// consumers.
//
// # Thread Safety
//
// All Store methods are safe for concurrent use. Watcher callbacks are
// invoked outside the store lock; a callback may call back into the store.
package state
