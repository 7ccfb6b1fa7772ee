// Package api provides the local control API and WebSocket server for gatewayctl.
//
// It exposes the cached device directory, single-device status reads and the
// scene entry points to local tooling, and streams scene events to
// WebSocket clients.
//
// The server follows the same lifecycle pattern as other infrastructure components:
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

	"github.com/nerrad567/gatewayctl/internal/device"
	"github.com/nerrad567/gatewayctl/internal/infrastructure/config"
	"github.com/nerrad567/gatewayctl/internal/infrastructure/influxdb"
	"github.com/nerrad567/gatewayctl/internal/infrastructure/logging"
	"github.com/nerrad567/gatewayctl/internal/infrastructure/mqtt"
	"github.com/nerrad567/gatewayctl/internal/scene"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceDirectory is the cached device list served by the API.
type DeviceDirectory interface {
	Devices(ctx context.Context) ([]device.Device, error)
	Refresh(ctx context.Context) ([]device.Device, error)
	Get(ctx context.Context, id string) (device.Device, error)
	Len() int
	Loaded() bool
}

// StatusReader reads one device's live status from the gateway.
type StatusReader interface {
	DeviceStatus(ctx context.Context, id string) (any, error)
}

// SceneRunner runs whole-fleet and first-N scenes.
type SceneRunner interface {
	ApplyAll(ctx context.Context, name string, state bool) (*scene.Execution, error)
	ApplyFirstN(ctx context.Context, name string, state bool, n int) (*scene.Execution, error)
	Stats() scene.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Directory   DeviceDirectory
	Status      StatusReader
	Scenes      SceneRunner
	MQTT        *mqtt.Client     // optional, reported in metrics
	InfluxDB    *influxdb.Client // optional, reported in metrics
	ExternalHub *Hub             // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the local control API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	directory   DeviceDirectory
	status      StatusReader
	scenes      SceneRunner
	mqtt        *mqtt.Client
	influx      *influxdb.Client
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	runCtx      context.Context    // parent of scene runs started over HTTP
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("device directory is required")
	}
	if deps.Scenes == nil {
		return nil, fmt.Errorf("scene runner is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		directory: deps.Directory,
		status:    deps.Status,
		scenes:    deps.Scenes,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		version:   deps.Version,
		startTime: time.Now(),
		runCtx:    context.Background(),
	}

	// Use an externally-provided hub when the orchestrator already broadcasts to it.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub used for scene event broadcasts.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless injected) and launches the HTTP
// listener in a background goroutine. Scene runs started over HTTP are
// cancelled when ctx ends or Close is called. The server can be stopped
// with Close().
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.runCtx = srvCtx

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running and responsive.
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
