package group

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-groups/internal/entity"
	"github.com/nerrad567/gray-logic-groups/internal/state"
)

func testDefinition(slug string, mode Mode, refs ...MemberRef) Definition {
	return Definition{
		ID:         GenerateID(),
		Name:       slug,
		Slug:       slug,
		Mode:       mode,
		MemberRefs: refs,
	}
}

func literalRefs(ids ...string) []MemberRef {
	refs := make([]MemberRef, len(ids))
	for i, id := range ids {
		refs[i] = MemberRef{Ref: id, Type: RefEntityID}
	}
	return refs
}

func noLookup(string) ([]string, bool) { return nil, false }

func TestEntity_PublishesComposite(t *testing.T) {
	store := state.NewStore()
	store.Set("light.a", state.StateOn, nil)
	store.Set("light.b", state.StateOff, nil)

	def := testDefinition("test_lights", ModeAny, literalRefs("light.a", "light.b")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)

	ent.Start()
	defer ent.Stop()

	got, ok := store.Get("group.test_lights")
	if !ok {
		t.Fatal("composite was not published")
	}
	if got.Value != state.StateOn {
		t.Errorf("composite = %q, want on", got.Value)
	}
}

func TestEntity_RecomputesOnMemberChange(t *testing.T) {
	store := state.NewStore()
	store.Set("light.a", state.StateOff, nil)
	store.Set("light.b", state.StateOff, nil)

	def := testDefinition("test_lights", ModeAny, literalRefs("light.a", "light.b")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)

	ent.Start()
	defer ent.Stop()

	if got, _ := store.Get("group.test_lights"); got.Value != state.StateOff {
		t.Fatalf("initial composite = %q, want off", got.Value)
	}

	store.Set("light.b", state.StateOn, nil)

	// Dispatch is synchronous: the composite is settled by now.
	if got, _ := store.Get("group.test_lights"); got.Value != state.StateOn {
		t.Errorf("composite after member change = %q, want on", got.Value)
	}
}

func TestEntity_MissingMembersAreUnavailable(t *testing.T) {
	store := state.NewStore()

	def := testDefinition("test_lights", ModeAny, literalRefs("light.ghost")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)

	ent.Start()
	defer ent.Stop()

	got, ok := store.Get("group.test_lights")
	if !ok {
		t.Fatal("composite was not published")
	}
	if got.Value != state.StateUnavailable {
		t.Errorf("composite = %q, want unavailable", got.Value)
	}
}

func TestEntity_StopWithdrawsComposite(t *testing.T) {
	store := state.NewStore()
	store.Set("light.a", state.StateOn, nil)

	def := testDefinition("test_lights", ModeAny, literalRefs("light.a")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)

	ent.Start()
	ent.Stop()

	if _, ok := store.Get("group.test_lights"); ok {
		t.Error("composite should be removed after Stop")
	}

	// Member changes after Stop must not resurrect the composite.
	store.Set("light.a", state.StateOff, nil)
	if _, ok := store.Get("group.test_lights"); ok {
		t.Error("stopped entity recomputed on member change")
	}
}

func TestEntity_StopDuringDispatchDoesNotRepublish(t *testing.T) {
	store := state.NewStore()
	store.Set("light.a", state.StateOn, nil)

	def := testDefinition("test_lights", ModeAny, literalRefs("light.a")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)

	// The store snapshots watchers before dispatching, so a watcher
	// registered ahead of the group can stop it mid-dispatch: the group's
	// already-snapshotted callback still runs and must not republish the
	// withdrawn composite.
	unsub := store.Watch([]string{"light.a"}, func(string, state.State, state.State) {
		ent.Stop()
	})
	defer unsub()

	ent.Start()
	if _, ok := store.Get("group.test_lights"); !ok {
		t.Fatal("composite was not published")
	}

	store.Set("light.a", state.StateOff, nil)

	if got, ok := store.Get("group.test_lights"); ok {
		t.Errorf("stopped group resurrected in store with state %q", got.Value)
	}
}

func TestEntity_StaleRebuildAfterStopIsIgnored(t *testing.T) {
	store := state.NewStore()
	store.Set("light.a", state.StateOn, nil)

	def := testDefinition("test_lights", ModeAny, literalRefs("light.a")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)

	ent.Start()
	ent.Stop()

	// A registry dispatch snapshotted before Stop can still invoke
	// rebuild; it must neither republish nor install fresh watches.
	ent.rebuild()

	if _, ok := store.Get("group.test_lights"); ok {
		t.Fatal("stale rebuild republished the composite")
	}

	store.Set("light.a", state.StateOff, nil)
	if _, ok := store.Get("group.test_lights"); ok {
		t.Error("stale rebuild left a live member watch behind")
	}
}

func TestEntity_LiteralOnlyGroupIgnoresRegistryChanges(t *testing.T) {
	registry := newTestRegistry(t)
	store := state.NewStore()
	store.Set("light.a", state.StateOn, nil)

	def := testDefinition("test_lights", ModeAny, literalRefs("light.a")...)
	ent := NewEntity(def, store, NewResolver(registry), DefaultPolicies(), noLookup, nil)

	ent.Start()
	defer ent.Stop()

	before, ok := store.Get("group.test_lights")
	if !ok {
		t.Fatal("composite was not published")
	}

	// Mapping changes cannot alter a literal-only membership; the group
	// must not rebuild (and so must not rewrite its composite).
	err := registry.Upsert(context.Background(), &entity.Mapping{
		UniqueID: "zigbee-001",
		EntityID: "light.unrelated",
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	after, _ := store.Get("group.test_lights")
	if !after.LastUpdated.Equal(before.LastUpdated) {
		t.Error("literal-only group rebuilt on a registry mapping change")
	}
}

func TestEntity_CompositeAttributes(t *testing.T) {
	store := state.NewStore()
	store.Set("light.a", state.StateOn, map[string]any{"brightness": float64(50)})
	store.Set("light.b", state.StateOn, map[string]any{"brightness": float64(75)})

	def := testDefinition("test_lights", ModeAny, literalRefs("light.a", "light.b")...)
	def.Icon = "mdi:lightbulb-group"
	def.Name = "Test Lights"
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)

	ent.Start()
	defer ent.Stop()

	got, _ := store.Get("group.test_lights")
	if b := got.Attributes["brightness"]; b != 63 {
		t.Errorf("brightness = %v, want 63", b)
	}
	if a := got.Attributes[AttrAssumedState]; a != true {
		t.Errorf("assumed_state = %v, want true", a)
	}
	if icon := got.Attributes["icon"]; icon != "mdi:lightbulb-group" {
		t.Errorf("icon = %v", icon)
	}
	if name := got.Attributes["friendly_name"]; name != "Test Lights" {
		t.Errorf("friendly_name = %v", name)
	}
}

func TestEntity_RegistryRenameRebuildsMembership(t *testing.T) {
	registry := newTestRegistry(t,
		entity.Mapping{UniqueID: "zigbee-001", EntityID: "light.old_name"},
	)
	store := state.NewStore()
	store.Set("light.old_name", state.StateOn, nil)
	store.Set("light.new_name", state.StateOff, nil)

	def := testDefinition("test_lights", ModeAny,
		MemberRef{Ref: "zigbee-001", Type: RefUniqueID},
	)
	ent := NewEntity(def, store, NewResolver(registry), DefaultPolicies(), noLookup, nil)

	ent.Start()
	defer ent.Stop()

	if got, _ := store.Get("group.test_lights"); got.Value != state.StateOn {
		t.Fatalf("initial composite = %q, want on", got.Value)
	}

	err := registry.Upsert(context.Background(), &entity.Mapping{
		UniqueID: "zigbee-001",
		EntityID: "light.new_name",
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	members := ent.Members()
	if len(members) != 1 || members[0] != "light.new_name" {
		t.Fatalf("members after rename = %v, want [light.new_name]", members)
	}
	if got, _ := store.Get("group.test_lights"); got.Value != state.StateOff {
		t.Errorf("composite after rename = %q, want off", got.Value)
	}
}

// fakeInvoker records service invocations for fan-out tests.
type fakeInvoker struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeInvoker) Invoke(_ context.Context, entityID, service string, _ map[string]any) error {
	f.mu.Lock()
	f.calls = append(f.calls, entityID+":"+service)
	f.mu.Unlock()
	if err, ok := f.fail[entityID]; ok {
		return err
	}
	return nil
}

func (f *fakeInvoker) sorted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	sort.Strings(out)
	return out
}

func TestEntity_ForwardFansOut(t *testing.T) {
	store := state.NewStore()
	store.Set("light.a", state.StateOn, nil)
	store.Set("light.b", state.StateOff, nil)

	def := testDefinition("test_lights", ModeAny, literalRefs("light.a", "light.b")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)
	ent.Start()
	defer ent.Stop()

	invoker := &fakeInvoker{}
	err := ent.Forward(context.Background(), invoker, ServiceCall{
		Service:  "turn_on",
		Blocking: true,
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	want := []string{"light.a:turn_on", "light.b:turn_on"}
	if got := invoker.sorted(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestEntity_ForwardFeatureScoped(t *testing.T) {
	store := state.NewStore()
	store.Set("fan.smart", state.StateOn, map[string]any{
		"supported_features": float64(FeatureFanDirection),
	})
	store.Set("fan.basic", state.StateOn, nil)

	def := testDefinition("test_fans", ModeAny, literalRefs("fan.smart", "fan.basic")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)
	ent.Start()
	defer ent.Stop()

	invoker := &fakeInvoker{}
	err := ent.Forward(context.Background(), invoker, ServiceCall{
		Service:  "set_direction",
		Payload:  map[string]any{"direction": "reverse"},
		Blocking: true,
	})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	got := invoker.sorted()
	if len(got) != 1 || got[0] != "fan.smart:set_direction" {
		t.Errorf("calls = %v, want only the direction-capable fan", got)
	}
}

func TestEntity_ForwardUnsupportedService(t *testing.T) {
	store := state.NewStore()
	store.Set("fan.basic", state.StateOn, nil)

	def := testDefinition("test_fans", ModeAny, literalRefs("fan.basic")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)
	ent.Start()
	defer ent.Stop()

	invoker := &fakeInvoker{}
	err := ent.Forward(context.Background(), invoker, ServiceCall{
		Service:  "set_direction",
		Blocking: true,
	})
	if !errors.Is(err, ErrServiceNotSupported) {
		t.Errorf("Forward() error = %v, want ErrServiceNotSupported", err)
	}
	if len(invoker.sorted()) != 0 {
		t.Error("no member should have been invoked")
	}
}

func TestEntity_ForwardBlockingReportsMemberError(t *testing.T) {
	store := state.NewStore()
	store.Set("light.a", state.StateOn, nil)
	store.Set("light.b", state.StateOn, nil)

	def := testDefinition("test_lights", ModeAny, literalRefs("light.a", "light.b")...)
	ent := NewEntity(def, store, NewResolver(nil), DefaultPolicies(), noLookup, nil)
	ent.Start()
	defer ent.Stop()

	invoker := &fakeInvoker{fail: map[string]error{
		"light.b": errors.New("publish timeout"),
	}}
	err := ent.Forward(context.Background(), invoker, ServiceCall{
		Service:  "turn_off",
		Blocking: true,
	})
	if err == nil {
		t.Fatal("expected member failure to surface on blocking call")
	}
}
