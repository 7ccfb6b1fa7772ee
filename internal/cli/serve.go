package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gatewayctl/internal/api"
	"github.com/nerrad567/gatewayctl/internal/device"
	"github.com/nerrad567/gatewayctl/internal/infrastructure/influxdb"
	"github.com/nerrad567/gatewayctl/internal/infrastructure/mqtt"
	"github.com/nerrad567/gatewayctl/internal/scene"
)

const healthCheckTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local control API",
		Long: `Run the local control API until interrupted.

Scene runs can be started over HTTP, over MQTT when mqtt.enabled is set, and
are broadcast to WebSocket subscribers. Run metrics go to InfluxDB when
influxdb.enabled is set.

Example:
  gatewayctl serve -c configs/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return serve(ctx, rootOpts)
		},
	}
}

func serve(ctx context.Context, opts *RootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	log := a.logger
	log.Info("gatewayctl starting", "gateway", a.cfg.GatewayBaseURL(), "mode", a.cfg.Dispatch.Mode)

	// MQTT is optional: runs can still be started over HTTP.
	mqttClient, err := connectMQTT(ctx, a)
	if err != nil {
		return WrapExitError(ExitCommandError, "connecting to MQTT", err)
	}
	if mqttClient != nil {
		defer func() {
			log.Info("closing MQTT connection")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	}

	influxClient, err := connectInfluxDB(a)
	if err != nil {
		return WrapExitError(ExitCommandError, "connecting to InfluxDB", err)
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		a.orchestrator.SetMetrics(influxClient)
	}

	dir := snapshotDirectory{Directory: a.directory, influx: influxClient, gateway: a.cfg.GatewayBaseURL()}

	// Warm the directory so the first scene run does not pay for the fetch.
	// A failure here is not fatal; the next read retries.
	if devices, loadErr := a.directory.Devices(ctx); loadErr != nil {
		log.Warn("initial device fetch failed", "error", loadErr)
	} else {
		dir.record(devices)
	}

	// The orchestrator and API share one hub.
	hub := api.NewHub(a.cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)
	a.orchestrator.SetHub(hub)

	server, err := api.New(api.Deps{
		Config:      a.cfg.API,
		WS:          a.cfg.WebSocket,
		Logger:      log.Component("api"),
		Directory:   dir,
		Status:      a.gateway,
		Scenes:      a.orchestrator,
		MQTT:        mqttClient,
		InfluxDB:    influxClient,
		ExternalHub: hub,
		Version:     opts.Version,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "creating API server", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("gatewayctl started", "api", fmt.Sprintf("%s:%d", a.cfg.API.Host, a.cfg.API.Port))

	checkHealth(ctx, log, healthChecks(server, mqttClient, influxClient))

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// HealthChecker is a component that can report its health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type warnLogger interface {
	Warn(msg string, args ...any)
}

// healthChecks lists the started components worth checking. Disabled
// clients are nil and left out.
func healthChecks(server *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) map[string]HealthChecker {
	checks := map[string]HealthChecker{"api": server}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	return checks
}

// checkHealth runs every check once. Failures are logged; the service keeps
// running because both clients reconnect on their own.
func checkHealth(ctx context.Context, log warnLogger, checks map[string]HealthChecker) int {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	failed := 0
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			log.Warn("health check failed", "component", name, "error", err)
			failed++
		}
	}
	return failed
}

// connectMQTT connects to the broker and subscribes to scene commands.
// It returns nil, nil when MQTT is disabled.
func connectMQTT(ctx context.Context, a *app) (*mqtt.Client, error) {
	log := a.logger
	client, err := mqtt.Connect(a.cfg.MQTT)
	if errors.Is(err, mqtt.ErrDisabled) {
		log.Info("MQTT disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	topics := client.Topics()
	a.orchestrator.SetMQTT(client, scene.EventTopics{
		Started:   topics.SceneStarted(),
		Completed: topics.SceneCompleted(),
	})

	handler := sceneCommandHandler(ctx, a.orchestrator, log)
	if err := client.Subscribe(topics.SceneCommand(), byte(a.cfg.MQTT.QoS), handler); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info("MQTT scene commands subscribed", "broker", a.cfg.MQTT.Broker.Host, "commands", topics.SceneCommand())
	return client, nil
}

// connectInfluxDB connects to InfluxDB. It returns nil, nil when disabled.
func connectInfluxDB(a *app) (*influxdb.Client, error) {
	log := a.logger
	client, err := influxdb.Connect(a.cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected", "url", a.cfg.InfluxDB.URL, "bucket", client.Bucket())
	return client, nil
}

// TriggerHandler starts scene runs from decoded triggers.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, t scene.Trigger) (*scene.Execution, error)
}

// sceneCommandHandler decodes a scene trigger and runs it in the background
// so the MQTT client keeps delivering messages during long runs.
func sceneCommandHandler(ctx context.Context, h TriggerHandler, log Logger) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		t, err := scene.ParseTrigger(payload)
		if err != nil {
			return fmt.Errorf("scene command on %s: %w", topic, err)
		}

		go func() {
			if _, err := h.HandleTrigger(ctx, t); err != nil {
				log.Error("scene command failed", "scene", t.Name(), "error", err)
			}
		}()
		return nil
	}
}

// snapshotDirectory writes a directory snapshot to InfluxDB after every
// successful refresh.
type snapshotDirectory struct {
	*device.Directory
	influx  *influxdb.Client
	gateway string
}

// Refresh reloads the device list and records its size.
func (d snapshotDirectory) Refresh(ctx context.Context) ([]device.Device, error) {
	devices, err := d.Directory.Refresh(ctx)
	if err == nil {
		d.record(devices)
	}
	return devices, err
}

func (d snapshotDirectory) record(devices []device.Device) {
	if d.influx == nil {
		return
	}
	controllable := 0
	for _, dev := range devices {
		if dev.Type.Controllable() {
			controllable++
		}
	}
	d.influx.WriteDirectorySnapshot(d.gateway, len(devices), controllable)
}
