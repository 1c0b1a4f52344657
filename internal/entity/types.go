package entity

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// Mapping associates a stable unique ID with an entity ID.
type Mapping struct {
	// UniqueID is the stable identifier assigned at discovery time,
	// e.g. "knx-1-1-20". It never changes for the life of the entity.
	UniqueID string `json:"unique_id"`

	// EntityID is the user-facing identifier on the state topics,
	// e.g. "light.living_main". It may be renamed.
	EntityID string `json:"entity_id"`

	// Name is an optional human-readable label.
	Name string `json:"name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the mapping for structural errors.
func (m *Mapping) Validate() error {
	if m.UniqueID == "" {
		return fmt.Errorf("%w: unique_id is required", ErrInvalidMapping)
	}
	if !state.ValidEntityID(m.EntityID) {
		return fmt.Errorf("%w: entity_id %q is not of the form domain.object_id", ErrInvalidMapping, m.EntityID)
	}
	return nil
}
