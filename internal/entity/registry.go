package entity

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// ChangeFunc is the callback signature for mapping change notifications.
//
// oldEntityID is "" when the mapping is new; newEntityID is "" when the
// mapping was removed.
type ChangeFunc func(uniqueID, oldEntityID, newEntityID string)

// listener is a registered change subscription.
type listener struct {
	id uint64
	fn ChangeFunc
}

// Registry provides unique-ID to entity-ID resolution with caching.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the mutating operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo      Repository
	cache     map[string]Mapping // by unique ID
	listeners []listener
	nextID    uint64
	mu        sync.RWMutex
	logger    Logger
}

// NewRegistry creates a new entity registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]Mapping),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// RefreshCache reloads all mappings from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	mappings, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entity mappings: %w", err)
	}

	r.mu.Lock()
	r.cache = make(map[string]Mapping, len(mappings))
	for _, m := range mappings {
		r.cache[m.UniqueID] = m
	}
	logger := r.logger
	r.mu.Unlock()

	logger.Info("entity registry cache refreshed", "count", len(mappings))
	return nil
}

// Resolve returns the entity ID mapped to a unique ID.
//
// Returns:
//   - string: Entity ID, lowercased
//   - bool: false if the unique ID is unmapped
func (r *Registry) Resolve(uniqueID string) (string, bool) {
	r.mu.RLock()
	m, ok := r.cache[uniqueID]
	r.mu.RUnlock()

	if !ok {
		return "", false
	}
	return state.NormaliseEntityID(m.EntityID), true
}

// Get retrieves the full mapping for a unique ID.
// Returns ErrMappingNotFound if the unique ID is unmapped.
func (r *Registry) Get(uniqueID string) (*Mapping, error) {
	r.mu.RLock()
	m, ok := r.cache[uniqueID]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrMappingNotFound
	}
	out := m
	return &out, nil
}

// List returns all cached mappings.
func (r *Registry) List() []Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mappings := make([]Mapping, 0, len(r.cache))
	for _, m := range r.cache {
		mappings = append(mappings, m)
	}
	return mappings
}

// Count returns the number of cached mappings.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Upsert creates or updates a mapping and notifies listeners when the
// resolved entity ID changes.
func (r *Registry) Upsert(ctx context.Context, mapping *Mapping) error {
	if err := mapping.Validate(); err != nil {
		return err
	}
	mapping.EntityID = state.NormaliseEntityID(mapping.EntityID)

	if err := r.repo.Upsert(ctx, mapping); err != nil {
		return err
	}

	r.mu.Lock()
	old, existed := r.cache[mapping.UniqueID]
	r.cache[mapping.UniqueID] = *mapping
	toNotify := r.changedListeners(existed, old.EntityID, mapping.EntityID)
	logger := r.logger
	r.mu.Unlock()

	logger.Info("entity mapping upserted",
		"unique_id", mapping.UniqueID, "entity_id", mapping.EntityID)

	oldEntityID := ""
	if existed {
		oldEntityID = old.EntityID
	}
	for _, l := range toNotify {
		l.fn(mapping.UniqueID, oldEntityID, mapping.EntityID)
	}

	return nil
}

// Remove deletes a mapping and notifies listeners.
func (r *Registry) Remove(ctx context.Context, uniqueID string) error {
	if err := r.repo.Delete(ctx, uniqueID); err != nil {
		return err
	}

	r.mu.Lock()
	old, existed := r.cache[uniqueID]
	delete(r.cache, uniqueID)
	var toNotify []listener
	if existed {
		toNotify = append(toNotify, r.listeners...)
	}
	logger := r.logger
	r.mu.Unlock()

	logger.Info("entity mapping removed", "unique_id", uniqueID)

	for _, l := range toNotify {
		l.fn(uniqueID, old.EntityID, "")
	}

	return nil
}

// Watch registers a callback for mapping changes.
//
// Returns:
//   - func(): Unsubscribe function; safe to call more than once
func (r *Registry) Watch(fn ChangeFunc) func() {
	r.mu.Lock()
	r.nextID++
	l := listener{id: r.nextID, fn: fn}
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i := range r.listeners {
				if r.listeners[i].id == l.id {
					r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// changedListeners returns the listeners to notify for an upsert.
// Callers must hold the lock. No notification when the entity ID is
// unchanged: a name edit is not a membership-relevant event.
func (r *Registry) changedListeners(existed bool, oldEntityID, newEntityID string) []listener {
	if existed && oldEntityID == newEntityID {
		return nil
	}
	out := make([]listener, len(r.listeners))
	copy(out, r.listeners)
	return out
}
