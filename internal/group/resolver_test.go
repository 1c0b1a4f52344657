package group

import (
	"context"
	"reflect"
	"testing"

	"github.com/nerrad567/gray-logic-groups/internal/entity"
)

// fakeMappingRepo is an in-memory entity.Repository for resolver tests.
type fakeMappingRepo struct {
	mappings map[string]entity.Mapping
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{mappings: make(map[string]entity.Mapping)}
}

func (f *fakeMappingRepo) GetByUniqueID(_ context.Context, uniqueID string) (*entity.Mapping, error) {
	m, ok := f.mappings[uniqueID]
	if !ok {
		return nil, entity.ErrMappingNotFound
	}
	return &m, nil
}

func (f *fakeMappingRepo) List(_ context.Context) ([]entity.Mapping, error) {
	out := make([]entity.Mapping, 0, len(f.mappings))
	for _, m := range f.mappings {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMappingRepo) Upsert(_ context.Context, m *entity.Mapping) error {
	f.mappings[m.UniqueID] = *m
	return nil
}

func (f *fakeMappingRepo) Delete(_ context.Context, uniqueID string) error {
	if _, ok := f.mappings[uniqueID]; !ok {
		return entity.ErrMappingNotFound
	}
	delete(f.mappings, uniqueID)
	return nil
}

func newTestRegistry(t *testing.T, mappings ...entity.Mapping) *entity.Registry {
	t.Helper()

	repo := newFakeMappingRepo()
	for i := range mappings {
		if err := repo.Upsert(context.Background(), &mappings[i]); err != nil {
			t.Fatalf("failed to seed mapping: %v", err)
		}
	}

	registry := entity.NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("failed to refresh registry cache: %v", err)
	}
	return registry
}

func TestResolver_Resolve(t *testing.T) {
	registry := newTestRegistry(t,
		entity.Mapping{UniqueID: "zigbee-001", EntityID: "light.hall"},
		entity.Mapping{UniqueID: "zigbee-002", EntityID: "Light.Porch"},
	)
	resolver := NewResolver(registry)

	tests := []struct {
		name string
		refs []MemberRef
		want []string
	}{
		{
			name: "literal references pass through case folded",
			refs: []MemberRef{
				{Ref: "Light.Kitchen", Type: RefEntityID},
				{Ref: "switch.garden", Type: RefEntityID},
			},
			want: []string{"light.kitchen", "switch.garden"},
		},
		{
			name: "unique ids resolve through the registry",
			refs: []MemberRef{
				{Ref: "zigbee-001", Type: RefUniqueID},
				{Ref: "zigbee-002", Type: RefUniqueID},
			},
			want: []string{"light.hall", "light.porch"},
		},
		{
			name: "unmapped unique id is silently omitted",
			refs: []MemberRef{
				{Ref: "light.kitchen", Type: RefEntityID},
				{Ref: "zigbee-missing", Type: RefUniqueID},
			},
			want: []string{"light.kitchen"},
		},
		{
			name: "duplicates keep first occurrence across ref kinds",
			refs: []MemberRef{
				{Ref: "light.hall", Type: RefEntityID},
				{Ref: "zigbee-001", Type: RefUniqueID},
			},
			want: []string{"light.hall"},
		},
		{
			name: "malformed literals are dropped",
			refs: []MemberRef{
				{Ref: "not-an-entity", Type: RefEntityID},
				{Ref: "light.ok", Type: RefEntityID},
			},
			want: []string{"light.ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolver.Resolve(tt.refs)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolver_NilRegistry(t *testing.T) {
	resolver := NewResolver(nil)

	got := resolver.Resolve([]MemberRef{
		{Ref: "light.ok", Type: RefEntityID},
		{Ref: "zigbee-001", Type: RefUniqueID},
	})
	want := []string{"light.ok"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}

	// WatchRegistry must be a safe no-op.
	unsub := resolver.WatchRegistry(func() { t.Error("unexpected notification") })
	unsub()
}

func TestResolver_WatchRegistry(t *testing.T) {
	registry := newTestRegistry(t)
	resolver := NewResolver(registry)

	notified := 0
	unsub := resolver.WatchRegistry(func() { notified++ })
	defer unsub()

	err := registry.Upsert(context.Background(), &entity.Mapping{
		UniqueID: "zigbee-003",
		EntityID: "light.study",
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if notified != 1 {
		t.Errorf("notified = %d, want 1", notified)
	}

	unsub()
	err = registry.Upsert(context.Background(), &entity.Mapping{
		UniqueID: "zigbee-004",
		EntityID: "light.attic",
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if notified != 1 {
		t.Errorf("notified after unsubscribe = %d, want 1", notified)
	}
}
