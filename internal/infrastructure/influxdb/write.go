package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteGroupState records a composite group state transition.
//
// This is the primary method for recording group history.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - slug: Group slug (e.g., "downstairs_lights")
//   - state: The composite state value (e.g., "on", "unavailable")
//   - memberCount: Number of resolved members at transition time
//   - assumed: Whether the composite state is assumed rather than confirmed
//
// Example:
//
//	client.WriteGroupState("downstairs_lights", "on", 4, false)
func (c *Client) WriteGroupState(slug string, state string, memberCount int, assumed bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"group_state",
		map[string]string{
			"slug": slug,
		},
		map[string]interface{}{
			"state":        state,
			"member_count": memberCount,
			"assumed":      assumed,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEntityState records an entity state transition.
//
// Used for member-level history alongside the composite group record.
//
// Parameters:
//   - entityID: Full entity ID (e.g., "light.living_main")
//   - domain: Entity domain (e.g., "light")
//   - state: The state value
func (c *Client) WriteEntityState(entityID string, domain string, state string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"entity_state",
		map[string]string{
			"entity_id": entityID,
			"domain":    domain,
		},
		map[string]interface{}{
			"state": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "groups-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
