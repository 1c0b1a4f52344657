package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
service:
  id: "test-groups"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8090
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
groups:
  - name: "Downstairs Lights"
    slug: "downstairs_lights"
    entities:
      - light.hall
      - light.kitchen
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.ID != "test-groups" {
		t.Errorf("Service.ID = %q, want %q", cfg.Service.ID, "test-groups")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	if len(cfg.Groups) != 1 {
		t.Fatalf("len(Groups) = %d, want 1", len(cfg.Groups))
	}
	if cfg.Groups[0].Slug != "downstairs_lights" {
		t.Errorf("Groups[0].Slug = %q, want %q", cfg.Groups[0].Slug, "downstairs_lights")
	}
	if len(cfg.Groups[0].Entities) != 2 {
		t.Errorf("len(Groups[0].Entities) = %d, want 2", len(cfg.Groups[0].Entities))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
service:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8090
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty service.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	// validJWTSecret is a secret that meets the 32-character minimum requirement
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	valid := func() *Config {
		return &Config{
			Service:  ServiceConfig{ID: "groups-001"},
			Database: DatabaseConfig{Path: "/data/groups.db"},
			MQTT:     MQTTConfig{QoS: 1},
			API:      APIConfig{Port: 8090},
			Security: SecurityConfig{JWT: JWTConfig{Secret: validJWTSecret}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing service ID",
			mutate:  func(c *Config) { c.Service.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
		{
			name: "static group without members",
			mutate: func(c *Config) {
				c.Groups = []GroupConfig{{Name: "Empty Group", Slug: "empty_group"}}
			},
			wantErr: true,
		},
		{
			name: "static group without name or slug",
			mutate: func(c *Config) {
				c.Groups = []GroupConfig{{Entities: []string{"light.hall"}}}
			},
			wantErr: true,
		},
		{
			name: "static group with unique-ID members only",
			mutate: func(c *Config) {
				c.Groups = []GroupConfig{{
					Name:            "Tracked Lights",
					Slug:            "tracked_lights",
					MemberUniqueIDs: []string{"knx-1-1-20"},
				}}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("GLGROUPS_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GLGROUPS_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GLGROUPS_MQTT_USERNAME", "testuser")
	t.Setenv("GLGROUPS_MQTT_PASSWORD", "testpass")
	t.Setenv("GLGROUPS_API_HOST", "192.168.1.1")
	t.Setenv("GLGROUPS_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GLGROUPS_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Service.ID == "" {
		t.Error("defaultConfig should have non-empty Service.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
}
