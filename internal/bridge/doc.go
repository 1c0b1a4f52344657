// Package bridge connects the in-memory state store to the MQTT bus.
//
// Three flows run through it:
//
//	ingress    graylogic/state/+/+      -> store.Set (group domain skipped)
//	egress     group composite changes  -> graylogic/state/group/<slug> (retained)
//	discovery  graylogic/discovery/+    -> entity registry upserts
//
// The bridge is also the production Invoker: group service calls fan out
// as command messages on graylogic/command/{domain}/{object_id}.
//
// Group-domain state messages are ignored on ingress because this service
// is their only publisher; consuming our own retained composites would
// overwrite live recomputation with stale snapshots at startup.
package bridge
