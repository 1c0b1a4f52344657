package group

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects how concrete member states combine into the composite.
type Mode string

const (
	// ModeAny is a logical OR: the group is active if at least one
	// concrete member is active.
	ModeAny Mode = "any"
	// ModeAll is a logical AND: the group is inactive if at least one
	// concrete member is inactive.
	ModeAll Mode = "all"
)

// RefType distinguishes the two kinds of member reference.
type RefType string

const (
	// RefEntityID is a literal entity ID reference.
	RefEntityID RefType = "entity_id"
	// RefUniqueID is a stable registry unique ID, resolved at runtime.
	RefUniqueID RefType = "unique_id"
)

// maxSlugLength bounds generated slugs; slugs become MQTT topic segments.
const maxSlugLength = 64

// MemberRef is one declared member of a group.
type MemberRef struct {
	Ref  string  `json:"ref"`
	Type RefType `json:"type"`
}

// Definition is a named, resolvable group of entities.
//
// MemberRefs is ordered and never empty after setup; resolution preserves
// declaration order. UserDefined marks groups created at runtime through
// the API, which survive a config reload.
type Definition struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Slug        string      `json:"slug"`
	Mode        Mode        `json:"mode"`
	Icon        string      `json:"icon,omitempty"`
	UniqueID    string      `json:"unique_id,omitempty"`
	MemberRefs  []MemberRef `json:"member_refs"`
	UserDefined bool        `json:"user_defined"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// EntityID returns the entity ID the group publishes under.
//
// Example: a group with slug "downstairs_lights" publishes as
// "group.downstairs_lights".
func (d *Definition) EntityID() string {
	return "group." + d.Slug
}

// Validate checks the definition for structural errors.
func (d *Definition) Validate() error {
	if d.Name == "" && d.Slug == "" {
		return fmt.Errorf("%w: name or slug is required", ErrInvalidGroup)
	}
	if d.Slug != "" && !validSlug(d.Slug) {
		return fmt.Errorf("%w: slug %q is not topic-safe", ErrInvalidGroup, d.Slug)
	}
	if len(d.MemberRefs) == 0 {
		return fmt.Errorf("%w: at least one member is required", ErrInvalidGroup)
	}
	if d.Mode != ModeAny && d.Mode != ModeAll {
		return fmt.Errorf("%w: mode must be %q or %q", ErrInvalidGroup, ModeAny, ModeAll)
	}
	for _, ref := range d.MemberRefs {
		if ref.Ref == "" {
			return fmt.Errorf("%w: empty member reference", ErrInvalidGroup)
		}
		if ref.Type != RefEntityID && ref.Type != RefUniqueID {
			return fmt.Errorf("%w: unknown member reference type %q", ErrInvalidGroup, ref.Type)
		}
	}
	return nil
}

// validSlug reports whether the slug is lowercase alphanumeric/underscore.
func validSlug(slug string) bool {
	if slug == "" {
		return false
	}
	for _, r := range slug {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// hasUniqueRefs reports whether any member is resolved through the
// entity registry.
func (d *Definition) hasUniqueRefs() bool {
	for _, ref := range d.MemberRefs {
		if ref.Type == RefUniqueID {
			return true
		}
	}
	return false
}

// GenerateID creates a new UUID for a group.
func GenerateID() string {
	return uuid.New().String()
}

// GenerateSlug creates a topic-safe slug from a name.
// Slugs use underscores because they double as entity object IDs.
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)

	slug = strings.ReplaceAll(slug, " ", "_")
	slug = strings.ReplaceAll(slug, "-", "_")

	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	slug = result.String()

	slug = strings.Trim(slug, "_")
	for strings.Contains(slug, "__") {
		slug = strings.ReplaceAll(slug, "__", "_")
	}

	if len(slug) > maxSlugLength {
		slug = slug[:maxSlugLength]
		slug = strings.TrimRight(slug, "_")
	}

	if slug == "" {
		// Names with no ASCII alphanumerics (e.g. fully non-Latin) strip
		// to nothing; an empty slug would publish under "group." and the
		// store would drop every write. Fall back to a generated one.
		slug = "group_" + strings.ReplaceAll(uuid.New().String(), "-", "_")
	}

	return slug
}
