package state

import (
	"strings"
	"time"
)

// Sentinel state values.
//
// These are reserved words in the state vocabulary: every consumer checks
// them before interpreting a value as a domain state.
const (
	// StateUnavailable indicates the entity's source is offline or gone.
	StateUnavailable = "unavailable"

	// StateUnknown indicates the source is reachable but has not reported.
	StateUnknown = "unknown"

	// StateOn and StateOff are the canonical binary states shared by most
	// domains (light, switch, fan, siren, binary_sensor).
	StateOn  = "on"
	StateOff = "off"
)

// entityIDParts is the number of segments in a valid entity ID.
// Format: {domain}.{object_id}
const entityIDParts = 2

// State is a point-in-time record of an entity's state.
type State struct {
	// Value is the state value, e.g. "on", "open", "locked", "21.5".
	Value string `json:"value"`

	// Attributes carries domain-specific metadata alongside the value,
	// e.g. brightness, supported_features, current_position.
	Attributes map[string]any `json:"attributes,omitempty"`

	// LastUpdated is when this record was written to the store.
	LastUpdated time.Time `json:"last_updated"`
}

// IsSentinel reports whether the state value is one of the reserved
// sentinel values rather than a domain state.
func (s State) IsSentinel() bool {
	return s.Value == StateUnavailable || s.Value == StateUnknown
}

// Copy returns a deep copy of the state record.
// The returned state's attribute map can be mutated safely.
func (s State) Copy() State {
	out := s
	if s.Attributes != nil {
		out.Attributes = make(map[string]any, len(s.Attributes))
		for k, v := range s.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// ValidEntityID reports whether the string is a well-formed entity ID
// of the form {domain}.{object_id} with non-empty halves.
func ValidEntityID(entityID string) bool {
	parts := strings.SplitN(entityID, ".", entityIDParts)
	return len(parts) == entityIDParts && parts[0] != "" && parts[1] != ""
}

// Domain returns the domain portion of an entity ID.
// Returns "" if the entity ID is malformed.
//
// Example: Domain("light.living_main") == "light"
func Domain(entityID string) string {
	idx := strings.IndexByte(entityID, '.')
	if idx <= 0 || idx == len(entityID)-1 {
		return ""
	}
	return entityID[:idx]
}

// ObjectID returns the object portion of an entity ID.
// Returns "" if the entity ID is malformed.
//
// Example: ObjectID("light.living_main") == "living_main"
func ObjectID(entityID string) string {
	idx := strings.IndexByte(entityID, '.')
	if idx <= 0 || idx == len(entityID)-1 {
		return ""
	}
	return entityID[idx+1:]
}

// NormaliseEntityID lowercases and trims an entity ID for comparisons.
// Entity IDs are case-insensitive identifiers; the lowercase form is
// canonical everywhere in the store.
func NormaliseEntityID(entityID string) string {
	return strings.ToLower(strings.TrimSpace(entityID))
}
