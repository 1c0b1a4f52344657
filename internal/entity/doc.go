// Package entity provides the entity registry for Gray Logic Groups.
//
// The registry maps stable unique IDs (assigned by bridges at discovery
// time) to entity IDs (the user-facing, renameable identifiers used on the
// state topics). Groups declared against unique IDs resolve through this
// registry, so renaming an entity never breaks group membership.
//
// # Architecture
//
//	discovery announcement ──▶ Registry.Upsert ──▶ listeners (group re-resolve)
//	                                          └──▶ SQLite (survives restart)
//
// # Unmapped IDs
//
// A unique ID with no registry entry resolves to nothing. Consumers skip
// such members silently; the mapping may arrive later, at which point
// listeners fire and membership is recomputed.
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Listener callbacks are
// invoked outside the registry lock.
package entity
