package entity

import (
	"context"
	"errors"
	"testing"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(NewSQLiteRepository(setupTestDB(t)))
}

func TestRegistry_UpsertAndResolve(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	err := reg.Upsert(ctx, &Mapping{UniqueID: "knx-1-1-20", EntityID: "Light.Living_Main"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	entityID, ok := reg.Resolve("knx-1-1-20")
	if !ok {
		t.Fatal("Resolve() ok = false, want true")
	}
	// Entity IDs are normalised to lowercase
	if entityID != "light.living_main" {
		t.Errorf("Resolve() = %q, want %q", entityID, "light.living_main")
	}
}

func TestRegistry_ResolveUnmapped(t *testing.T) {
	reg := setupRegistry(t)

	if _, ok := reg.Resolve("unmapped-id"); ok {
		t.Error("Resolve() ok = true for unmapped ID, want false")
	}
}

func TestRegistry_RefreshCache(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	// Seed the repository directly, then build a fresh registry on top
	if err := repo.Upsert(ctx, &Mapping{UniqueID: "knx-1-1-20", EntityID: "light.living_main"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	reg := NewRegistry(repo)
	if _, ok := reg.Resolve("knx-1-1-20"); ok {
		t.Fatal("Resolve() should miss before RefreshCache()")
	}

	if err := reg.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	if _, ok := reg.Resolve("knx-1-1-20"); !ok {
		t.Error("Resolve() should hit after RefreshCache()")
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestRegistry_WatchNotifiesOnRename(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	if err := reg.Upsert(ctx, &Mapping{UniqueID: "knx-1-1-20", EntityID: "light.living_main"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	var gotUnique, gotOld, gotNew string
	calls := 0
	unsubscribe := reg.Watch(func(uniqueID, oldEntityID, newEntityID string) {
		calls++
		gotUnique = uniqueID
		gotOld = oldEntityID
		gotNew = newEntityID
	})
	defer unsubscribe()

	if err := reg.Upsert(ctx, &Mapping{UniqueID: "knx-1-1-20", EntityID: "light.lounge_main"}); err != nil {
		t.Fatalf("Upsert() rename error = %v", err)
	}

	if calls != 1 {
		t.Fatalf("listener called %d times, want 1", calls)
	}
	if gotUnique != "knx-1-1-20" || gotOld != "light.living_main" || gotNew != "light.lounge_main" {
		t.Errorf("notification = (%q, %q, %q)", gotUnique, gotOld, gotNew)
	}
}

func TestRegistry_WatchSkipsNameOnlyChange(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	if err := reg.Upsert(ctx, &Mapping{UniqueID: "knx-1-1-20", EntityID: "light.living_main"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	calls := 0
	unsubscribe := reg.Watch(func(string, string, string) { calls++ })
	defer unsubscribe()

	// Same entity ID, new label: membership is unaffected
	if err := reg.Upsert(ctx, &Mapping{UniqueID: "knx-1-1-20", EntityID: "light.living_main", Name: "Lounge"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if calls != 0 {
		t.Errorf("listener called %d times for name-only change, want 0", calls)
	}
}

func TestRegistry_WatchNotifiesOnNewMapping(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	var gotOld string
	calls := 0
	unsubscribe := reg.Watch(func(_, oldEntityID, _ string) {
		calls++
		gotOld = oldEntityID
	})
	defer unsubscribe()

	if err := reg.Upsert(ctx, &Mapping{UniqueID: "knx-1-1-20", EntityID: "light.living_main"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if calls != 1 {
		t.Fatalf("listener called %d times, want 1", calls)
	}
	if gotOld != "" {
		t.Errorf("oldEntityID = %q for new mapping, want empty", gotOld)
	}
}

func TestRegistry_RemoveNotifies(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	if err := reg.Upsert(ctx, &Mapping{UniqueID: "knx-1-1-20", EntityID: "light.living_main"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	var gotNew string
	calls := 0
	unsubscribe := reg.Watch(func(_, _, newEntityID string) {
		calls++
		gotNew = newEntityID
	})
	defer unsubscribe()

	if err := reg.Remove(ctx, "knx-1-1-20"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if calls != 1 {
		t.Fatalf("listener called %d times, want 1", calls)
	}
	if gotNew != "" {
		t.Errorf("newEntityID = %q for removal, want empty", gotNew)
	}

	if _, ok := reg.Resolve("knx-1-1-20"); ok {
		t.Error("Resolve() should miss after Remove()")
	}
}

func TestRegistry_Unsubscribe(t *testing.T) {
	reg := setupRegistry(t)
	ctx := context.Background()

	calls := 0
	unsubscribe := reg.Watch(func(string, string, string) { calls++ })

	if err := reg.Upsert(ctx, &Mapping{UniqueID: "a-1", EntityID: "light.a"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	unsubscribe()
	unsubscribe() // Safe to call twice
	if err := reg.Upsert(ctx, &Mapping{UniqueID: "b-1", EntityID: "light.b"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("listener called %d times, want 1", calls)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	reg := setupRegistry(t)

	_, err := reg.Get("nonexistent")
	if !errors.Is(err, ErrMappingNotFound) {
		t.Errorf("Get() error = %v, want ErrMappingNotFound", err)
	}
}
