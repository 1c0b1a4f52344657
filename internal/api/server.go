// Package api provides the HTTP REST API and WebSocket server for Gray
// Logic Groups.
//
// It exposes group management, entity state reads, and registry mapping
// operations to user interfaces, plus a WebSocket feed of live state
// changes.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-groups/internal/entity"
	"github.com/nerrad567/gray-logic-groups/internal/group"
	"github.com/nerrad567/gray-logic-groups/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-groups/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-groups/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Manager  *group.Manager
	Store    *state.Store
	Registry *entity.Registry
	Invoker  group.Invoker

	// ReloadGroups re-reads static group definitions and applies them.
	// Wired by the composition root; nil disables POST /groups/reload.
	ReloadGroups func(ctx context.Context) error

	Version string
}

// Server is the HTTP API server for Gray Logic Groups.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	manager  *group.Manager
	store    *state.Store
	registry *entity.Registry
	invoker  group.Invoker
	reload   func(ctx context.Context) error
	version  string

	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc // cancels background goroutines on Close()
	unwatch func()             // releases the store watch feeding the hub
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, manager, store)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("group manager is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		manager:  deps.Manager,
		store:    deps.Store,
		registry: deps.Registry,
		invoker:  deps.Invoker,
		reload:   deps.ReloadGroups,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, watches the state
// store for real-time WebSocket broadcast, and launches the HTTP
// listener in a background goroutine. The server can be stopped with
// Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Periodic ticket cleanup so abandoned tickets don't accumulate.
	go s.cleanTicketsLoop(srvCtx)

	s.unwatch = s.store.Watch(nil, s.broadcastStateChange)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unwatch != nil {
		s.unwatch()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// broadcastStateChange relays store changes to WebSocket subscribers.
// Group composites and ordinary entities go to separate channels so
// panels can subscribe to just the level they render.
func (s *Server) broadcastStateChange(entityID string, _, updated state.State) {
	if s.hub == nil {
		return
	}

	channel := "entity.state_changed"
	if group.IsGroupEntity(entityID) {
		channel = "group.state_changed"
	}

	s.hub.Broadcast(channel, map[string]any{
		"entity_id":    entityID,
		"state":        updated.Value,
		"attributes":   updated.Attributes,
		"last_updated": updated.LastUpdated,
	})
}
