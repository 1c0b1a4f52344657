package group

import (
	"github.com/nerrad567/gray-logic-groups/internal/entity"
	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// Resolver turns declared member references into entity IDs.
//
// Literal references pass through case-folded; unique-ID references are
// looked up in the entity registry. References the registry cannot map
// are silently omitted: the devices they point at do not exist yet, and
// resolution runs again when the registry changes.
type Resolver struct {
	registry *entity.Registry
}

// NewResolver creates a resolver backed by the given registry.
// A nil registry resolves literal references only.
func NewResolver(registry *entity.Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve maps member references to an ordered, de-duplicated entity ID
// list. First occurrence wins, so declaration order is stable across
// repeated resolutions.
func (r *Resolver) Resolve(refs []MemberRef) []string {
	out := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))

	for _, ref := range refs {
		var id string
		switch ref.Type {
		case RefEntityID:
			id = state.NormaliseEntityID(ref.Ref)
			if !state.ValidEntityID(id) {
				continue
			}
		case RefUniqueID:
			if r.registry == nil {
				continue
			}
			resolved, ok := r.registry.Resolve(ref.Ref)
			if !ok {
				continue
			}
			id = resolved
		default:
			continue
		}

		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}

// WatchRegistry subscribes to registry mapping changes, invoking fn for
// changes that could alter a resolution containing unique-ID references.
// Returns an unsubscribe handle; no-op when no registry is attached.
func (r *Resolver) WatchRegistry(fn func()) func() {
	if r.registry == nil {
		return func() {}
	}
	return r.registry.Watch(func(uniqueID, oldEntityID, newEntityID string) {
		fn()
	})
}
