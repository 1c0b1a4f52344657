package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-groups/internal/group"
	"github.com/nerrad567/gray-logic-groups/internal/infrastructure/config"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	originalEnv := os.Getenv("GLGROUPS_CONFIG")
	defer os.Setenv("GLGROUPS_CONFIG", originalEnv)

	os.Setenv("GLGROUPS_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("GLGROUPS_CONFIG")
	defer os.Setenv("GLGROUPS_CONFIG", originalEnv)

	os.Unsetenv("GLGROUPS_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("GLGROUPS_CONFIG")
	defer os.Setenv("GLGROUPS_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("GLGROUPS_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestStaticDefinitions verifies config group declarations convert into
// group definitions with the right member reference types and modes.
func TestStaticDefinitions(t *testing.T) {
	defs := staticDefinitions([]config.GroupConfig{
		{
			Name:            "Downstairs Lights",
			Slug:            "downstairs_lights",
			Entities:        []string{"light.hall", "light.kitchen"},
			MemberUniqueIDs: []string{"knx-1-1-20"},
			Icon:            "mdi:lightbulb-group",
		},
		{
			Name:     "All Doors",
			Entities: []string{"lock.front", "lock.back"},
			All:      true,
		},
	})

	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}

	first := defs[0]
	if first.Slug != "downstairs_lights" || first.Mode != group.ModeAny {
		t.Errorf("first = %s/%s, want downstairs_lights/any", first.Slug, first.Mode)
	}
	if len(first.MemberRefs) != 3 {
		t.Fatalf("first has %d member refs, want 3", len(first.MemberRefs))
	}
	if first.MemberRefs[0].Type != group.RefEntityID || first.MemberRefs[0].Ref != "light.hall" {
		t.Errorf("ref[0] = %+v, want entity_id light.hall", first.MemberRefs[0])
	}
	if first.MemberRefs[2].Type != group.RefUniqueID || first.MemberRefs[2].Ref != "knx-1-1-20" {
		t.Errorf("ref[2] = %+v, want unique_id knx-1-1-20", first.MemberRefs[2])
	}

	second := defs[1]
	if second.Mode != group.ModeAll {
		t.Errorf("second mode = %s, want all", second.Mode)
	}
	if second.Slug != "" {
		t.Errorf("second slug = %q, want empty (manager generates it)", second.Slug)
	}
}
