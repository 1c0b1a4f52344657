package group

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// Manager owns the lifecycle of every live group entity.
//
// Groups come from two sources: static definitions in the configuration
// file, and user-defined groups created at runtime through the API. Both
// are persisted; reload recreates the static set and leaves user-defined
// groups untouched.
type Manager struct {
	repo     Repository
	store    *state.Store
	resolver *Resolver
	policies *PolicySet
	logger   Logger

	mu       sync.RWMutex
	entities map[string]*Entity // keyed by group ID
	bySlug   map[string]string  // slug -> group ID
}

// NewManager creates a manager. Call Start to load persisted groups.
func NewManager(repo Repository, store *state.Store, resolver *Resolver, policies *PolicySet, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	if policies == nil {
		policies = DefaultPolicies()
	}
	return &Manager{
		repo:     repo,
		store:    store,
		resolver: resolver,
		policies: policies,
		logger:   logger,
		entities: make(map[string]*Entity),
		bySlug:   make(map[string]string),
	}
}

// Start loads all persisted groups and brings their entities live.
func (m *Manager) Start() error {
	defs, err := m.repo.List()
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}

	started := make([]*Entity, 0, len(defs))

	m.mu.Lock()
	for _, def := range defs {
		ent := m.newEntity(*def)
		m.entities[def.ID] = ent
		m.bySlug[def.Slug] = def.ID
		started = append(started, ent)
	}
	m.mu.Unlock()

	// Start outside the lock: rebuild walks nested memberships through
	// membersOf, which takes a read lock.
	for _, ent := range started {
		ent.Start()
	}

	m.logger.Info("group manager started", "groups", len(started))
	return nil
}

// Stop tears down every live entity.
func (m *Manager) Stop() {
	m.mu.Lock()
	entities := make([]*Entity, 0, len(m.entities))
	for _, ent := range m.entities {
		entities = append(entities, ent)
	}
	m.entities = make(map[string]*Entity)
	m.bySlug = make(map[string]string)
	m.mu.Unlock()

	for _, ent := range entities {
		ent.Stop()
	}
}

// Create validates, persists, and starts a new group.
//
// Missing IDs and slugs are generated; the mode defaults to any. Groups
// created through this path are marked user-defined unless the caller
// says otherwise.
func (m *Manager) Create(def *Definition) (*Definition, error) {
	if def.ID == "" {
		def.ID = GenerateID()
	}
	if def.Slug == "" {
		def.Slug = GenerateSlug(def.Name)
	}
	if def.Mode == "" {
		def.Mode = ModeAny
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	_, taken := m.bySlug[def.Slug]
	m.mu.RUnlock()
	if taken {
		return nil, fmt.Errorf("%w: slug %q", ErrGroupExists, def.Slug)
	}

	if err := m.repo.Create(def); err != nil {
		return nil, err
	}

	ent := m.newEntity(*def)
	m.mu.Lock()
	m.entities[def.ID] = ent
	m.bySlug[def.Slug] = def.ID
	m.mu.Unlock()

	ent.Start()
	m.refreshOthers(def.ID)

	m.logger.Info("group created",
		"group", def.EntityID(),
		"mode", string(def.Mode),
		"user_defined", def.UserDefined,
	)
	return def, nil
}

// Update replaces a group's definition and rebuilds its entity.
func (m *Manager) Update(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	m.mu.RLock()
	old, ok := m.entities[def.ID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, def.ID)
	}
	oldDef := old.Definition()

	if otherID, taken := m.slugOwner(def.Slug); taken && otherID != def.ID {
		return fmt.Errorf("%w: slug %q", ErrGroupExists, def.Slug)
	}

	def.UserDefined = oldDef.UserDefined
	def.CreatedAt = oldDef.CreatedAt
	if err := m.repo.Update(def); err != nil {
		return err
	}

	ent := m.newEntity(*def)
	m.mu.Lock()
	m.entities[def.ID] = ent
	delete(m.bySlug, oldDef.Slug)
	m.bySlug[def.Slug] = def.ID
	m.mu.Unlock()

	old.Stop()
	ent.Start()
	m.refreshOthers(def.ID)

	m.logger.Info("group updated", "group", def.EntityID())
	return nil
}

// Delete removes a group, withdrawing its published composite.
func (m *Manager) Delete(id string) error {
	m.mu.RLock()
	ent, ok := m.entities[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}

	if err := m.repo.Delete(id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.entities, id)
	delete(m.bySlug, ent.Definition().Slug)
	m.mu.Unlock()

	ent.Stop()
	m.refreshOthers(id)

	m.logger.Info("group deleted", "group", ent.EntityID())
	return nil
}

// Get returns a group's definition by ID.
func (m *Manager) Get(id string) (*Definition, error) {
	m.mu.RLock()
	ent, ok := m.entities[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	def := ent.Definition()
	return &def, nil
}

// GetBySlug returns a group's definition by slug.
func (m *Manager) GetBySlug(slug string) (*Definition, error) {
	m.mu.RLock()
	id, ok := m.bySlug[slug]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: slug %s", ErrGroupNotFound, slug)
	}
	return m.Get(id)
}

// List returns every live group's definition.
func (m *Manager) List() []*Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	defs := make([]*Definition, 0, len(m.entities))
	for _, ent := range m.entities {
		def := ent.Definition()
		defs = append(defs, &def)
	}
	return defs
}

// Members returns a group's currently resolved leaf members.
func (m *Manager) Members(id string) ([]string, error) {
	m.mu.RLock()
	ent, ok := m.entities[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	return ent.Members(), nil
}

// Call forwards a service call to a group identified by ID or slug.
func (m *Manager) Call(ctx context.Context, idOrSlug string, invoker Invoker, call ServiceCall) error {
	m.mu.RLock()
	id := idOrSlug
	if mapped, ok := m.bySlug[idOrSlug]; ok {
		id = mapped
	}
	ent, ok := m.entities[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, idOrSlug)
	}
	return ent.Forward(ctx, invoker, call)
}

// Reload replaces all static groups with the given definitions.
// User-defined groups are preserved untouched.
func (m *Manager) Reload(static []*Definition) error {
	m.mu.RLock()
	var stale []*Entity
	for _, ent := range m.entities {
		if !ent.Definition().UserDefined {
			stale = append(stale, ent)
		}
	}
	m.mu.RUnlock()

	for _, ent := range stale {
		def := ent.Definition()
		m.mu.Lock()
		delete(m.entities, def.ID)
		delete(m.bySlug, def.Slug)
		m.mu.Unlock()
		ent.Stop()
	}

	if err := m.repo.DeleteStatic(); err != nil {
		return err
	}

	for _, def := range static {
		def.UserDefined = false
		if _, err := m.Create(def); err != nil {
			m.logger.Error("failed to recreate static group",
				"group", def.Slug,
				"error", err,
			)
			return err
		}
	}

	m.refreshOthers("")

	m.logger.Info("groups reloaded",
		"static", len(static),
		"total", m.Count(),
	)
	return nil
}

// Count returns the number of live groups.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// newEntity builds an entity wired to this manager's nested lookup.
func (m *Manager) newEntity(def Definition) *Entity {
	return NewEntity(def, m.store, m.resolver, m.policies, m.membersOf, m.logger)
}

// membersOf resolves a nested group reference to its direct membership.
// Satisfies MembersFunc for Expand.
func (m *Manager) membersOf(entityID string) ([]string, bool) {
	slug := state.ObjectID(entityID)

	m.mu.RLock()
	id, ok := m.bySlug[slug]
	var ent *Entity
	if ok {
		ent = m.entities[id]
	}
	m.mu.RUnlock()

	if ent == nil {
		return nil, false
	}
	return m.resolver.Resolve(ent.Definition().MemberRefs), true
}

// refreshOthers re-resolves every other group, picking up membership
// changes caused by a nested group appearing or disappearing.
func (m *Manager) refreshOthers(exceptID string) {
	m.mu.RLock()
	others := make([]*Entity, 0, len(m.entities))
	for id, ent := range m.entities {
		if id != exceptID {
			others = append(others, ent)
		}
	}
	m.mu.RUnlock()

	for _, ent := range others {
		ent.Refresh()
	}
}

// slugOwner returns the ID owning a slug, if any.
func (m *Manager) slugOwner(slug string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.bySlug[slug]
	return id, ok
}
