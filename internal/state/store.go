package state

import (
	"reflect"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// ChangeFunc is the callback signature for state change notifications.
//
// Callbacks run synchronously in the caller's goroutine, outside the store
// lock, in registration order. They may call back into the store; a callback
// that writes a state triggers nested dispatch in the same call stack.
type ChangeFunc func(entityID string, old, updated State)

// watcher is a registered change subscription.
type watcher struct {
	id  uint64
	ids map[string]struct{} // nil means all entities
	fn  ChangeFunc
}

// Store is the in-memory entity state table.
//
// All public methods are thread-safe. Watcher dispatch is synchronous so
// that composite recomputation (groups watching members) settles in the
// same call stack as the triggering write.
type Store struct {
	mu       sync.RWMutex
	states   map[string]State
	watchers []watcher
	nextID   uint64
	logger   Logger
}

// NewStore creates an empty state store.
func NewStore() *Store {
	return &Store{
		states: make(map[string]State),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Get retrieves the state record for an entity.
//
// Parameters:
//   - entityID: Entity ID, case-insensitive
//
// Returns:
//   - State: Deep copy of the record (zero value if absent)
//   - bool: false if the entity has never been written
func (s *Store) Get(entityID string) (State, bool) {
	id := NormaliseEntityID(entityID)

	s.mu.RLock()
	st, ok := s.states[id]
	s.mu.RUnlock()

	if !ok {
		return State{}, false
	}
	return st.Copy(), true
}

// Set writes a state record and notifies matching watchers.
//
// The write always updates LastUpdated, even when value and attributes are
// unchanged. Watchers are only notified when the value or attributes differ
// from the previous record.
//
// Parameters:
//   - entityID: Entity ID, case-insensitive
//   - value: State value ("on", "unavailable", "21.5", ...)
//   - attributes: Domain metadata; the map is copied, callers keep ownership
func (s *Store) Set(entityID string, value string, attributes map[string]any) {
	id := NormaliseEntityID(entityID)
	if !ValidEntityID(id) {
		s.getLogger().Warn("state write for malformed entity ID dropped", "entity_id", entityID)
		return
	}

	updated := State{
		Value:       value,
		Attributes:  attributes,
		LastUpdated: time.Now().UTC(),
	}.Copy()

	s.mu.Lock()
	old, existed := s.states[id]
	s.states[id] = updated

	changed := !existed || old.Value != updated.Value || !attrsEqual(old.Attributes, updated.Attributes)
	var toNotify []watcher
	if changed {
		toNotify = s.matchingWatchers(id)
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	s.getLogger().Debug("state changed", "entity_id", id, "value", value)

	// Dispatch outside the lock so callbacks can call back into the store.
	for _, w := range toNotify {
		w.fn(id, old.Copy(), updated.Copy())
	}
}

// Remove deletes an entity's state record and notifies matching watchers
// with an unavailable state. Removal is how source teardown propagates:
// watchers see the entity go unavailable rather than silently vanish.
func (s *Store) Remove(entityID string) {
	id := NormaliseEntityID(entityID)

	s.mu.Lock()
	old, existed := s.states[id]
	if existed {
		delete(s.states, id)
	}
	var toNotify []watcher
	if existed {
		toNotify = s.matchingWatchers(id)
	}
	s.mu.Unlock()

	if !existed {
		return
	}

	gone := State{Value: StateUnavailable, LastUpdated: time.Now().UTC()}
	for _, w := range toNotify {
		w.fn(id, old.Copy(), gone)
	}
}

// All returns a deep copy of every state record.
func (s *Store) All() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]State, len(s.states))
	for id, st := range s.states {
		out[id] = st.Copy()
	}
	return out
}

// EntityIDs returns the IDs of every entity with a state record.
func (s *Store) EntityIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of entities with a state record.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Watch registers a change callback for a set of entities.
//
// Parameters:
//   - entityIDs: Entities to watch; nil or empty watches every entity
//   - fn: Callback invoked synchronously on each change
//
// Returns:
//   - func(): Unsubscribe function; safe to call more than once
func (s *Store) Watch(entityIDs []string, fn ChangeFunc) func() {
	var idSet map[string]struct{}
	if len(entityIDs) > 0 {
		idSet = make(map[string]struct{}, len(entityIDs))
		for _, id := range entityIDs {
			idSet[NormaliseEntityID(id)] = struct{}{}
		}
	}

	s.mu.Lock()
	s.nextID++
	w := watcher{id: s.nextID, ids: idSet, fn: fn}
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i := range s.watchers {
				if s.watchers[i].id == w.id {
					s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
					break
				}
			}
		})
	}
}

// matchingWatchers returns watchers interested in the given entity.
// Callers must hold at least a read lock.
func (s *Store) matchingWatchers(entityID string) []watcher {
	var matched []watcher
	for _, w := range s.watchers {
		if w.ids == nil {
			matched = append(matched, w)
			continue
		}
		if _, ok := w.ids[entityID]; ok {
			matched = append(matched, w)
		}
	}
	return matched
}

// getLogger returns the current logger.
func (s *Store) getLogger() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

// attrsEqual compares two attribute maps by shallow value equality.
// Attribute values are JSON scalars, slices, or maps; slices and maps are
// compared by recursion.
func attrsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !valueEqual(av, bv) {
			return false
		}
	}
	return true
}

// valueEqual compares two attribute values. Scalars compare directly;
// anything else (slices of any element type, nested maps) goes through
// reflect.DeepEqual, which never panics on uncomparable types.
func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			return false
		}
		return attrsEqual(av, bv)
	case nil, bool, string, float64, float32, int, int32, int64, uint32, uint64:
		return a == b
	default:
		return reflect.DeepEqual(a, b)
	}
}
