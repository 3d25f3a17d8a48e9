// Package api provides the HTTP REST API and WebSocket server for Occulog.
//
// The API is read-only over the pipeline's view of the world: devices,
// zones, settings, and runtime status. The single mutation — flipping the
// recording gate — requires a JWT signed with the configured secret. The
// WebSocket feed streams recorded occupancy events to live dashboards.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/occulog/occulog-core/internal/dispatch"
	"github.com/occulog/occulog-core/internal/infrastructure/config"
	"github.com/occulog/occulog-core/internal/infrastructure/logging"
	"github.com/occulog/occulog-core/internal/listener"
	"github.com/occulog/occulog-core/internal/recorder"
	"github.com/occulog/occulog-core/internal/registry"
	"github.com/occulog/occulog-core/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Logger     *logging.Logger
	Registry   *registry.Registry
	Settings   store.Repository
	Recorder   *recorder.Recorder
	Listeners  *listener.Manager
	Dispatcher *dispatch.Dispatcher
	Version    string
}

// Server is the HTTP API server for Occulog.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket hub.
// All methods are safe for concurrent use.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	logger     *logging.Logger
	registry   *registry.Registry
	settings   store.Repository
	recorder   *recorder.Recorder
	listeners  *listener.Manager
	dispatcher *dispatch.Dispatcher
	version    string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings store is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		registry:   deps.Registry,
		settings:   deps.Settings,
		recorder:   deps.Recorder,
		listeners:  deps.Listeners,
		dispatcher: deps.Dispatcher,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. Stop the server with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

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
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// BroadcastOccupancy pushes a recorded event to WebSocket subscribers.
// It implements recorder.Broadcaster.
func (s *Server) BroadcastOccupancy(event recorder.OccupancyEvent) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(ChannelOccupancy, event)
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
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

// HealthCheck verifies the API server is running.
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
