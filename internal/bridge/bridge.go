package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-groups/internal/entity"
	"github.com/nerrad567/gray-logic-groups/internal/group"
	"github.com/nerrad567/gray-logic-groups/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// commandQoS is the QoS level for forwarded service commands.
// At-least-once: a dropped turn_off is worse than a duplicate one.
const commandQoS = 1

// Broker is the MQTT surface the bridge needs. *mqtt.Client satisfies it;
// tests substitute a fake.
type Broker interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// Recorder receives state changes for time-series persistence.
// *influxdb.Client satisfies it. Writes are fire-and-forget.
type Recorder interface {
	WriteGroupState(slug string, state string, memberCount int, assumed bool)
	WriteEntityState(entityID string, domain string, state string)
}

// Logger is the minimal logging interface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// statePayload is the wire format for entity state messages.
type statePayload struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
}

// commandPayload is the wire format for entity command messages.
type commandPayload struct {
	Service string         `json:"service"`
	Data    map[string]any `json:"data,omitempty"`
}

// announcement is one entity in a discovery message payload.
type announcement struct {
	UniqueID string `json:"unique_id"`
	EntityID string `json:"entity_id"`
	Name     string `json:"name,omitempty"`
}

// Bridge moves state between the MQTT bus and the in-memory store.
type Bridge struct {
	broker   Broker
	store    *state.Store
	registry *entity.Registry
	recorder Recorder
	topics   mqtt.Topics
	logger   Logger

	unwatch func()
}

// New creates a bridge. Call Start to subscribe and begin mirroring.
//
// Parameters:
//   - broker: Connected MQTT client
//   - store: Shared entity state store
//   - registry: Entity registry fed by discovery announcements
//   - recorder: Time-series sink; nil disables recording
//   - logger: Logger (nil for silent operation)
func New(broker Broker, store *state.Store, registry *entity.Registry, recorder Recorder, logger Logger) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		broker:   broker,
		store:    store,
		registry: registry,
		recorder: recorder,
		logger:   logger,
	}
}

// Start subscribes to ingress and discovery topics and begins mirroring
// group composites out to the bus.
func (b *Bridge) Start() error {
	if err := b.broker.Subscribe(b.topics.AllEntityStates(), 1, b.handleState); err != nil {
		return fmt.Errorf("failed to subscribe to entity states: %w", err)
	}
	if err := b.broker.Subscribe(b.topics.AllDiscovery(), 1, b.handleDiscovery); err != nil {
		return fmt.Errorf("failed to subscribe to discovery: %w", err)
	}

	b.unwatch = b.store.Watch(nil, b.handleStoreChange)

	b.logger.Info("bridge started")
	return nil
}

// Stop releases subscriptions and the store watch.
func (b *Bridge) Stop() {
	if b.unwatch != nil {
		b.unwatch()
		b.unwatch = nil
	}
	if err := b.broker.Unsubscribe(b.topics.AllEntityStates()); err != nil {
		b.logger.Warn("failed to unsubscribe entity states", "error", err)
	}
	if err := b.broker.Unsubscribe(b.topics.AllDiscovery()); err != nil {
		b.logger.Warn("failed to unsubscribe discovery", "error", err)
	}
	b.logger.Info("bridge stopped")
}

// Invoke publishes a service command to one entity.
// Satisfies group.Invoker.
func (b *Bridge) Invoke(_ context.Context, entityID, service string, payload map[string]any) error {
	domain := state.Domain(entityID)
	objectID := state.ObjectID(entityID)
	if domain == "" || objectID == "" {
		return fmt.Errorf("malformed entity ID %q", entityID)
	}

	body, err := json.Marshal(commandPayload{Service: service, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	topic := b.topics.EntityCommand(domain, objectID)
	if err := b.broker.Publish(topic, body, commandQoS, false); err != nil {
		return fmt.Errorf("failed to publish command: %w", err)
	}

	b.logger.Debug("command published", "entity_id", entityID, "service", service)
	return nil
}

// handleState ingests one entity state message from the bus.
func (b *Bridge) handleState(topic string, payload []byte) error {
	domain, objectID, ok := b.topics.ParseStateTopic(topic)
	if !ok {
		return nil
	}

	// Our own composites echo back on the same wildcard; consuming them
	// would overwrite live recomputation with retained snapshots.
	if domain == "group" {
		return nil
	}

	var msg statePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("malformed state payload dropped", "topic", topic, "error", err)
		return nil
	}

	entityID := domain + "." + objectID
	if msg.State == "" {
		// Empty state (or cleared retained message) means the source
		// withdrew the entity.
		b.store.Remove(entityID)
		return nil
	}

	b.store.Set(entityID, msg.State, msg.Attributes)

	if b.recorder != nil {
		b.recorder.WriteEntityState(entityID, domain, msg.State)
	}
	return nil
}

// handleDiscovery ingests one discovery announcement batch.
func (b *Bridge) handleDiscovery(topic string, payload []byte) error {
	source, ok := b.topics.ParseDiscoveryTopic(topic)
	if !ok {
		return nil
	}

	var announcements []announcement
	if err := json.Unmarshal(payload, &announcements); err != nil {
		b.logger.Warn("malformed discovery payload dropped", "topic", topic, "error", err)
		return nil
	}

	accepted := 0
	for _, a := range announcements {
		mapping := &entity.Mapping{
			UniqueID: a.UniqueID,
			EntityID: a.EntityID,
			Name:     a.Name,
		}
		if err := b.registry.Upsert(context.Background(), mapping); err != nil {
			b.logger.Warn("discovery mapping rejected",
				"source", source,
				"unique_id", a.UniqueID,
				"error", err,
			)
			continue
		}
		accepted++
	}

	b.logger.Info("discovery processed", "source", source, "accepted", accepted)
	return nil
}

// handleStoreChange mirrors group composite changes out to the bus.
func (b *Bridge) handleStoreChange(entityID string, _, updated state.State) {
	if !group.IsGroupEntity(entityID) {
		return
	}
	slug := state.ObjectID(entityID)

	body, err := json.Marshal(statePayload{
		State:      updated.Value,
		Attributes: updated.Attributes,
		UpdatedAt:  updated.LastUpdated,
	})
	if err != nil {
		b.logger.Error("failed to encode composite state", "entity_id", entityID, "error", err)
		return
	}

	if err := b.broker.PublishRetained(b.topics.GroupState(slug), body); err != nil {
		b.logger.Warn("failed to publish composite state", "entity_id", entityID, "error", err)
		return
	}

	if b.recorder != nil {
		members := 0
		if ids, ok := updated.Attributes[group.AttrMembers].([]string); ok {
			members = len(ids)
		}
		assumed, _ := updated.Attributes[group.AttrAssumedState].(bool)
		b.recorder.WriteGroupState(slug, updated.Value, members, assumed)
	}
}
