package group

import (
	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// groupDomain is the entity domain groups publish under.
const groupDomain = "group"

// MembersFunc returns the direct (unexpanded) member entity IDs of a
// group entity, or false when no such group exists.
type MembersFunc func(entityID string) ([]string, bool)

// IsGroupEntity reports whether an entity ID belongs to the group domain.
func IsGroupEntity(entityID string) bool {
	return state.Domain(entityID) == groupDomain
}

// anyGroupEntity reports whether any of the IDs belongs to the group domain.
func anyGroupEntity(ids []string) bool {
	for _, id := range ids {
		if IsGroupEntity(id) {
			return true
		}
	}
	return false
}

// Expand flattens a group's direct member list into leaf entity IDs.
//
// Group-typed members are replaced by their own membership, recursively.
// A member equal to the expanding group itself, or to any group already
// on the expansion path, is skipped: cycles degrade to partial
// memberships instead of hanging. Duplicates keep their first occurrence
// so declaration order survives. Inputs that are not well-formed entity
// IDs, or that are sentinel values, are dropped.
//
// Parameters:
//   - self: Entity ID of the group being expanded (excluded from output)
//   - ids: The group's direct member entity IDs
//   - lookup: Resolves a nested group's direct membership
//
// Returns:
//   - []string: Ordered, de-duplicated leaf entity IDs
func Expand(self string, ids []string, lookup MembersFunc) []string {
	seen := make(map[string]struct{})
	ancestors := map[string]struct{}{self: {}}

	var out []string
	out = expand(out, ids, lookup, seen, ancestors)
	if out == nil {
		out = []string{}
	}
	return out
}

func expand(out []string, ids []string, lookup MembersFunc, seen, ancestors map[string]struct{}) []string {
	for _, raw := range ids {
		// Malformed IDs and bare sentinel values ("unknown", "none")
		// share the same fate: no dot, no pass.
		id := state.NormaliseEntityID(raw)
		if !state.ValidEntityID(id) {
			continue
		}
		if _, ok := ancestors[id]; ok {
			continue
		}

		if IsGroupEntity(id) {
			nested, ok := lookup(id)
			if !ok {
				// Unknown group entity: keep it as an opaque member so
				// the composite reflects its published state, if any.
				out = appendUnique(out, id, seen)
				continue
			}
			ancestors[id] = struct{}{}
			out = expand(out, nested, lookup, seen, ancestors)
			delete(ancestors, id)
			continue
		}

		out = appendUnique(out, id, seen)
	}
	return out
}

func appendUnique(out []string, id string, seen map[string]struct{}) []string {
	if _, ok := seen[id]; ok {
		return out
	}
	seen[id] = struct{}{}
	return append(out, id)
}
