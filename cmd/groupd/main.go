// Gray Logic Groups - Entity Group Aggregation Service
//
// This is the main entry point for the Gray Logic Groups service.
// It maintains named groups of entities, aggregates their states into
// a single composite state per group, and fans service calls out to
// capable members:
//   - State ingress and composite egress over MQTT
//   - Group definitions persisted in SQLite, static groups from YAML
//   - REST + WebSocket API for management and live state
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-groups/migrations"

	"github.com/nerrad567/gray-logic-groups/internal/api"
	"github.com/nerrad567/gray-logic-groups/internal/bridge"
	"github.com/nerrad567/gray-logic-groups/internal/entity"
	"github.com/nerrad567/gray-logic-groups/internal/group"
	"github.com/nerrad567/gray-logic-groups/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-groups/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-groups/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-groups/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-groups/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Groups",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise entity registry (unique ID -> entity ID mappings)
	mappingRepo := entity.NewSQLiteRepository(db.DB)
	registry := entity.NewRegistry(mappingRepo)
	registry.SetLogger(log)

	if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entity registry: %w", refreshErr)
	}
	log.Info("entity registry initialised", "mappings", registry.Count())

	// In-memory state store, shared by the bridge, groups, and API
	store := state.NewStore()
	store.SetLogger(log)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the MQTT bridge before the group manager so retained entity
	// states begin flowing into the store as early as possible.
	// Avoid a typed-nil Recorder when InfluxDB is disabled.
	var recorder bridge.Recorder
	if influxClient != nil {
		recorder = influxClient
	}
	stateBridge := bridge.New(mqttClient, store, registry, recorder, log)
	if startErr := stateBridge.Start(); startErr != nil {
		return fmt.Errorf("starting state bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping state bridge")
		stateBridge.Stop()
	}()

	// Group manager: load persisted groups, then reconcile static groups
	// from the config file (user-defined groups survive the reconcile).
	groupRepo := group.NewSQLiteRepository(db.DB)
	resolver := group.NewResolver(registry)
	manager := group.NewManager(groupRepo, store, resolver, group.DefaultPolicies(), log)

	if startErr := manager.Start(); startErr != nil {
		return fmt.Errorf("starting group manager: %w", startErr)
	}
	defer func() {
		log.Info("stopping group manager")
		manager.Stop()
	}()

	if reloadErr := manager.Reload(staticDefinitions(cfg.Groups)); reloadErr != nil {
		return fmt.Errorf("loading static groups: %w", reloadErr)
	}
	log.Info("group manager started", "groups", manager.Count())

	// Start the API server
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Manager:  manager,
		Store:    store,
		Registry: registry,
		Invoker:  stateBridge,
		ReloadGroups: func(context.Context) error {
			// Re-read the config file so edits made since boot apply.
			fresh, loadErr := config.Load(configPath)
			if loadErr != nil {
				return fmt.Errorf("reloading config: %w", loadErr)
			}
			return manager.Reload(staticDefinitions(fresh.Groups))
		},
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Group manager
	// 3. State bridge
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("Gray Logic Groups stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GLGROUPS_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GLGROUPS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// staticDefinitions converts config file group declarations into group
// definitions. Defaults (ID, slug, mode) are filled in by the manager.
//
// Parameters:
//   - groups: Static group declarations from config.yaml
//
// Returns:
//   - []*group.Definition: Definitions ready for Manager.Reload
func staticDefinitions(groups []config.GroupConfig) []*group.Definition {
	defs := make([]*group.Definition, 0, len(groups))
	for _, gc := range groups {
		refs := make([]group.MemberRef, 0, len(gc.Entities)+len(gc.MemberUniqueIDs))
		for _, id := range gc.Entities {
			refs = append(refs, group.MemberRef{Ref: id, Type: group.RefEntityID})
		}
		for _, id := range gc.MemberUniqueIDs {
			refs = append(refs, group.MemberRef{Ref: id, Type: group.RefUniqueID})
		}

		mode := group.ModeAny
		if gc.All {
			mode = group.ModeAll
		}

		defs = append(defs, &group.Definition{
			Name:       gc.Name,
			Slug:       gc.Slug,
			Mode:       mode,
			Icon:       gc.Icon,
			UniqueID:   gc.UniqueID,
			MemberRefs: refs,
		})
	}
	return defs
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
