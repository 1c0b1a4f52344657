package group

import (
	"sync"

	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// Entity is a live group: it watches its resolved members in the state
// store, recomputes the composite on every member change, and republishes
// it under the group's own entity ID.
//
// Because the store dispatches change notifications synchronously, a
// member change settles through any chain of nested groups in a single
// call stack before the triggering Set returns.
type Entity struct {
	def      Definition
	store    *state.Store
	resolver *Resolver
	policies *PolicySet
	lookup   MembersFunc
	logger   Logger

	mu       sync.RWMutex
	resolved []string
	unsubs   []func()
	started  bool
}

// NewEntity wires a group entity. It does not subscribe or publish until
// Start is called.
//
// Parameters:
//   - def: Validated group definition
//   - store: Shared entity state store
//   - resolver: Member reference resolver
//   - policies: Domain policy table
//   - lookup: Direct-membership lookup for nested group expansion
//   - logger: Logger (nil for silent operation)
func NewEntity(def Definition, store *state.Store, resolver *Resolver, policies *PolicySet, lookup MembersFunc, logger Logger) *Entity {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Entity{
		def:      def,
		store:    store,
		resolver: resolver,
		policies: policies,
		lookup:   lookup,
		logger:   logger,
	}
}

// Definition returns a copy of the group's definition.
func (e *Entity) Definition() Definition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	def := e.def
	def.MemberRefs = make([]MemberRef, len(e.def.MemberRefs))
	copy(def.MemberRefs, e.def.MemberRefs)
	return def
}

// EntityID returns the ID the group publishes under.
func (e *Entity) EntityID() string {
	return e.def.EntityID()
}

// Members returns the currently resolved leaf member entity IDs.
func (e *Entity) Members() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, len(e.resolved))
	copy(out, e.resolved)
	return out
}

// Start resolves the membership, subscribes to member and registry
// changes, and publishes the initial composite.
func (e *Entity) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.rebuild()
}

// Stop releases all subscriptions and withdraws the published composite.
func (e *Entity) Stop() {
	e.mu.Lock()
	unsubs := e.unsubs
	e.unsubs = nil
	e.started = false
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	e.store.Remove(e.def.EntityID())
}

// Refresh re-resolves the membership and recomputes. Called by the
// manager when nested group definitions change underneath this one.
func (e *Entity) Refresh() {
	e.mu.RLock()
	started := e.started
	e.mu.RUnlock()
	if started {
		e.rebuild()
	}
}

// rebuild re-resolves membership, re-subscribes, and recomputes.
//
// Store and registry watches dispatch from a snapshot taken before the
// callback runs, so a stale dispatch can land here after Stop. Every
// section re-checks started under the lock: a stopped entity must not
// swap state, install watches, or republish.
func (e *Entity) rebuild() {
	direct := e.resolver.Resolve(e.def.MemberRefs)
	resolved := Expand(e.def.EntityID(), direct, e.lookup)

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	old := e.unsubs
	e.unsubs = nil
	e.resolved = resolved
	e.mu.Unlock()

	for _, unsub := range old {
		unsub()
	}

	var unsubs []func()
	if len(resolved) > 0 {
		// An empty watch list means "all entities" to the store; an
		// empty membership must watch nothing.
		unsubs = append(unsubs, e.store.Watch(resolved, func(entityID string, oldState, newState state.State) {
			e.update()
		}))
	}
	if e.def.hasUniqueRefs() || anyGroupEntity(direct) {
		// Literal-only groups never change shape on a mapping update, so
		// they skip the registry watch — unless a member is itself a
		// group, whose leaf set can change on a rename inside it.
		unsubs = append(unsubs, e.resolver.WatchRegistry(func() {
			e.rebuild()
		}))
	}

	e.mu.Lock()
	if !e.started {
		// Stop won the race while we were subscribing; the fresh
		// watches must not outlive the entity.
		e.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
		return
	}
	e.unsubs = append(e.unsubs, unsubs...)
	e.mu.Unlock()

	e.logger.Debug("group membership resolved",
		"group", e.def.EntityID(),
		"members", len(resolved),
	)

	e.update()
}

// update recomputes the composite and republishes it.
func (e *Entity) update() {
	e.mu.RLock()
	if !e.started {
		// A watcher snapshotted before Stop can still dispatch here;
		// republishing would resurrect the withdrawn composite.
		e.mu.RUnlock()
		return
	}
	resolved := e.resolved
	mode := e.def.Mode
	e.mu.RUnlock()

	members := make([]MemberState, len(resolved))
	for i, id := range resolved {
		st, ok := e.store.Get(id)
		members[i] = MemberState{EntityID: id, Found: ok, State: st}
	}

	result := Aggregate(members, mode, e.policies)
	if result.AssumedState {
		result.Attributes[AttrAssumedState] = true
	}
	if e.def.Icon != "" {
		result.Attributes["icon"] = e.def.Icon
	}
	if e.def.Name != "" {
		result.Attributes["friendly_name"] = e.def.Name
	}

	e.store.Set(e.def.EntityID(), result.State, result.Attributes)
}
