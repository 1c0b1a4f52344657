package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the Gray Logic MQTT scheme.
//
// All entity topics use the flat scheme: graylogic/{category}/{domain}/{object_id}
// Group composite states are republished under the "group" domain, which is
// what makes groups of groups observable over the same scheme.
const (
	// TopicPrefix is the base for all entity topics.
	// Flat scheme: graylogic/{category}/{domain}/{object_id}
	TopicPrefix = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// topicStateParts is the number of segments in an entity state topic.
// Format: graylogic/state/{domain}/{object_id}
const topicStateParts = 4

// Topics provides builders for Gray Logic MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.EntityState("light", "living_main")
//	// Returns: "graylogic/state/light/living_main"
type Topics struct{}

// =============================================================================
// Entity Topics
// =============================================================================

// EntityState returns the topic for entity state updates.
// State payloads are published retained so late subscribers see current state.
//
// Example: graylogic/state/light/living_main
func (Topics) EntityState(domain, objectID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, domain, objectID)
}

// EntityCommand returns the topic for commands to an entity.
//
// Example: graylogic/command/light/living_main
func (Topics) EntityCommand(domain, objectID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, domain, objectID)
}

// GroupState returns the topic for a group's composite state.
// Groups publish on the same state scheme as ordinary entities.
//
// Example: graylogic/state/group/downstairs_lights
func (t Topics) GroupState(slug string) string {
	return t.EntityState("group", slug)
}

// Discovery returns the topic a bridge announces entities on.
//
// Example: graylogic/discovery/knx
func (Topics) Discovery(source string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, source)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the service status topic, used for the broker LWT.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllEntityStates returns a pattern matching all entity state updates,
// including group composites.
//
// Pattern: graylogic/state/+/+
func (Topics) AllEntityStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// AllEntityCommands returns a pattern matching all entity commands.
//
// Pattern: graylogic/command/+/+
func (Topics) AllEntityCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefix)
}

// AllDiscovery returns a pattern matching all discovery announcements.
//
// Pattern: graylogic/discovery/+
func (Topics) AllDiscovery() string {
	return fmt.Sprintf("%s/discovery/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Gray Logic topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graylogic/#
func (Topics) AllTopics() string {
	return "graylogic/#"
}

// =============================================================================
// Topic Parsing
// =============================================================================

// ParseStateTopic extracts the domain and object ID from an entity state topic.
//
// Parameters:
//   - topic: Full topic, e.g. "graylogic/state/light/living_main"
//
// Returns:
//   - domain: Entity domain ("light")
//   - objectID: Object identifier ("living_main")
//   - ok: false if the topic is not an entity state topic
func (Topics) ParseStateTopic(topic string) (domain, objectID string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != topicStateParts || parts[0] != TopicPrefix || parts[1] != "state" {
		return "", "", false
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// ParseDiscoveryTopic extracts the announcing source from a discovery topic.
//
// Parameters:
//   - topic: Full topic, e.g. "graylogic/discovery/knx"
//
// Returns:
//   - source: Announcing bridge identifier ("knx")
//   - ok: false if the topic is not a discovery topic
func (Topics) ParseDiscoveryTopic(topic string) (source string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[1] != "discovery" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
