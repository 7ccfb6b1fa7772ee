package scene

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gatewayctl/internal/device"
	"github.com/nerrad567/gatewayctl/internal/dispatch"
)

// Command attributes and values sent to the gateway.
const (
	AttrStatus   = "status"
	AttrDimLevel = "dimLevel"

	// FullDimLevel is sent to dimmers being switched on.
	FullDimLevel = 100
)

// DefaultReadConcurrency bounds parallel status reads during pre-check and verification.
const DefaultReadConcurrency = 10

// Directory is the device list the orchestrator reads. *device.Directory satisfies it.
type Directory interface {
	Devices(ctx context.Context) ([]device.Device, error)
	First(ctx context.Context, n int) ([]device.Device, error)
}

// StatusReader reads a device's live status. *gateway.Client satisfies it.
type StatusReader interface {
	DeviceStatus(ctx context.Context, id string) (any, error)
}

// Runner drives a command list to completion. *dispatch.Scheduler satisfies it.
type Runner interface {
	RunProgressive(ctx context.Context, cmds []dispatch.Command, opts dispatch.Options) dispatch.Result
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// MQTTClient publishes run events. *mqtt.Client satisfies it.
type MQTTClient interface {
	PublishJSON(topic string, v any) error
}

// EventTopics names the MQTT topics run events are published to.
// An empty topic disables that event.
type EventTopics struct {
	Started   string
	Completed string
}

// MetricsWriter records run metrics. *influxdb.Client satisfies it.
type MetricsWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

// Logger defines the logging interface used by the orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Orchestrator turns a target on/off state into device commands, drives them
// through the scheduler and optionally verifies the result.
//
// Every run follows Idle → FetchingDevices → BuildingCommands →
// Dispatching → [Verifying] → Done. A directory failure ends the run
// immediately with Success=false and zero elapsed time.
//
// Thread Safety: all methods are safe for concurrent use. Concurrent runs
// share the dispatcher's concurrency cap.
type Orchestrator struct {
	dir     Directory
	status  StatusReader
	runner  Runner
	opts    dispatch.Options
	readCap int
	logger  Logger

	sinksMu sync.RWMutex // Protects sinks below
	hub     WSHub
	mqtt    MQTTClient
	topics  EventTopics
	metrics MetricsWriter

	statsMu sync.Mutex
	stats   Stats
}

// NewOrchestrator creates an orchestrator.
//
// Parameters:
//   - dir: device directory (cached device list)
//   - status: live status reader for pre-check and verification
//   - runner: batch scheduler
//   - opts: dispatch options applied to every run
//   - logger: Logger instance (may be nil)
func NewOrchestrator(dir Directory, status StatusReader, runner Runner, opts dispatch.Options, logger Logger) *Orchestrator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Orchestrator{
		dir:     dir,
		status:  status,
		runner:  runner,
		opts:    opts,
		readCap: DefaultReadConcurrency,
		logger:  logger,
	}
}

// SetReadConcurrency bounds parallel status reads. Values below 1 are ignored.
func (o *Orchestrator) SetReadConcurrency(n int) {
	if n > 0 {
		o.readCap = n
	}
}

// SetHub sets the WebSocket hub for run events (may be nil).
func (o *Orchestrator) SetHub(hub WSHub) {
	o.sinksMu.Lock()
	o.hub = hub
	o.sinksMu.Unlock()
}

// SetMQTT sets the MQTT client and the topics run events go to (client may be nil).
func (o *Orchestrator) SetMQTT(client MQTTClient, topics EventTopics) {
	o.sinksMu.Lock()
	o.mqtt = client
	o.topics = topics
	o.sinksMu.Unlock()
}

// SetMetrics sets the run metrics writer (may be nil).
func (o *Orchestrator) SetMetrics(w MetricsWriter) {
	o.sinksMu.Lock()
	o.metrics = w
	o.sinksMu.Unlock()
}

// ApplyAll sets every device in the directory to state, skipping devices
// already in that state and verifying the result afterwards.
//
// The returned error is non-nil only when the directory could not be read;
// the Execution is always returned and carries Success and Elapsed.
func (o *Orchestrator) ApplyAll(ctx context.Context, name string, state bool) (*Execution, error) {
	opts := ApplyOptions{Scene: name, Scope: ScopeAll, PreCheck: true, Verify: true}

	devices, err := o.dir.Devices(ctx)
	if err != nil {
		return o.abort(ctx, state, opts, err), err
	}
	return o.ApplyState(ctx, state, devices, opts)
}

// ApplyFirstN sets the first n devices in directory order to state without
// pre-check or verification. n larger than the directory selects every device.
func (o *Orchestrator) ApplyFirstN(ctx context.Context, name string, state bool, n int) (*Execution, error) {
	opts := ApplyOptions{Scene: name, Scope: ScopeFirstN, Limit: n}

	if n < 1 {
		err := fmt.Errorf("%w: %d", ErrInvalidLimit, n)
		return o.abort(ctx, state, opts, err), err
	}

	devices, err := o.dir.First(ctx, n)
	if err != nil {
		return o.abort(ctx, state, opts, err), err
	}
	return o.ApplyState(ctx, state, devices, opts)
}

// ApplyState applies state to subset and records the run.
//
// An empty subset fails fast with ErrNoDevices: no command is sent and no
// verification runs. Otherwise the error is always nil and per-device
// failures are reported in the Execution.
func (o *Orchestrator) ApplyState(ctx context.Context, state bool, subset []device.Device, opts ApplyOptions) (*Execution, error) {
	if len(subset) == 0 {
		err := ErrNoDevices
		return o.abort(ctx, state, opts, err), err
	}

	exec := o.newExecution(state, opts)
	exec.DevicesTotal = len(subset)

	o.logger.Info("scene run started",
		"scene", opts.Scene,
		"execution_id", exec.ID,
		"scope", opts.Scope,
		"state", state,
		"devices", len(subset),
	)

	cmds := o.BuildCommands(ctx, state, subset, opts.PreCheck)
	exec.CommandsTotal = len(cmds)
	started := map[string]any{
		"execution_id": exec.ID,
		"scene":        opts.Scene,
		"scope":        opts.Scope,
		"state":        state,
		"commands":     len(cmds),
	}
	o.broadcast("scene.started", started)
	o.publish(func(t EventTopics) string { return t.Started }, started)

	res := o.runner.RunProgressive(ctx, cmds, o.opts)
	exec.Elapsed = res.Elapsed
	exec.Batches = res.Batches
	exec.CommandsSucceeded = res.Succeeded()
	exec.CommandsFailed = len(res.Failed)
	exec.Reconciled = res.Reconciled
	exec.Success = res.Success

	if opts.Verify {
		if ctx.Err() != nil {
			// An unverified run cannot claim success.
			o.logger.Warn("verification skipped", "execution_id", exec.ID, "error", ctx.Err())
			exec.Success = false
		} else {
			exec.Mismatches = o.Verify(ctx, state, subset)
			verified := len(exec.Mismatches) == 0
			exec.Verified = &verified
			exec.Success = exec.Success && verified
		}
	}

	o.finish(ctx, exec, res.Outcomes)
	return exec, nil
}

// BuildCommands generates the commands for state over devices in order.
//
// Switches and dimmers get a status command; dimmers switched on also get a
// full dim level. Other device types produce nothing. With preCheck the
// current status of each controllable device is read first and devices
// already at state are skipped entirely. A device whose status cannot be
// read is commanded anyway.
func (o *Orchestrator) BuildCommands(ctx context.Context, state bool, devices []device.Device, preCheck bool) []dispatch.Command {
	var skip []bool
	if preCheck {
		skip = make([]bool, len(devices))
		o.readStatuses(ctx, devices, func(i int, status any, err error) {
			if err != nil {
				o.logger.Warn("pre-check status read failed",
					"device_id", devices[i].ID,
					"error", err,
				)
				return
			}
			skip[i] = device.MatchesState(status, state)
		})
	}

	cmds := make([]dispatch.Command, 0, len(devices))
	for i, d := range devices {
		if !d.Type.Controllable() {
			continue
		}
		if skip != nil && skip[i] {
			o.logger.Debug("device already in target state", "device_id", d.ID, "state", state)
			continue
		}

		cmds = append(cmds, dispatch.Command{DeviceID: d.ID, Attribute: AttrStatus, Value: state})
		if d.Type == device.TypeDimmer && state {
			cmds = append(cmds, dispatch.Command{DeviceID: d.ID, Attribute: AttrDimLevel, Value: FullDimLevel})
		}
	}
	return cmds
}

// Verify re-reads every controllable device and returns the ones not at state,
// in device order. Each mismatch is logged at warn.
func (o *Orchestrator) Verify(ctx context.Context, state bool, devices []device.Device) []Mismatch {
	slots := make([]*Mismatch, len(devices))

	o.readStatuses(ctx, devices, func(i int, status any, err error) {
		id := devices[i].ID
		switch {
		case err != nil:
			slots[i] = &Mismatch{DeviceID: id, Expected: state, Error: err.Error()}
			o.logger.Warn("verification read failed", "device_id", id, "error", err)
		case !device.MatchesState(status, state):
			slots[i] = &Mismatch{DeviceID: id, Expected: state, Actual: status}
			o.logger.Warn("device not in expected state",
				"device_id", id,
				"expected", state,
				"actual", status,
			)
		}
	})

	var mismatches []Mismatch
	for _, m := range slots {
		if m != nil {
			mismatches = append(mismatches, *m)
		}
	}
	return mismatches
}

// readStatuses reads the status of every controllable device with bounded
// parallelism and calls fn with the device's index. fn calls for distinct
// indexes may run concurrently.
func (o *Orchestrator) readStatuses(ctx context.Context, devices []device.Device, fn func(i int, status any, err error)) {
	var g errgroup.Group
	g.SetLimit(o.readCap)

	for i := range devices {
		if !devices[i].Type.Controllable() {
			continue
		}
		g.Go(func() error {
			status, err := o.status.DeviceStatus(ctx, devices[i].ID)
			fn(i, status, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) newExecution(state bool, opts ApplyOptions) *Execution {
	return &Execution{
		ID:          GenerateID(),
		Scene:       opts.Scene,
		Scope:       opts.Scope,
		State:       state,
		Limit:       opts.Limit,
		TriggeredAt: time.Now().UTC(),
	}
}

// abort records a run that ended before dispatch.
func (o *Orchestrator) abort(ctx context.Context, state bool, opts ApplyOptions, cause error) *Execution {
	exec := o.newExecution(state, opts)
	exec.Error = cause.Error()

	o.logger.Error("scene run aborted",
		"scene", opts.Scene,
		"execution_id", exec.ID,
		"error", cause,
	)
	o.finish(ctx, exec, nil)
	return exec
}

// finish sets the final status, updates counters and fans the run out to
// every configured sink. Sink failures are logged, never returned.
func (o *Orchestrator) finish(ctx context.Context, exec *Execution, outcomes []dispatch.Outcome) {
	completedAt := time.Now().UTC()
	exec.CompletedAt = &completedAt
	exec.ElapsedMS = exec.Elapsed.Milliseconds()

	switch {
	case exec.Success:
		exec.Status = StatusCompleted
	case exec.Error != "":
		exec.Status = StatusFailed
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		exec.Status = StatusCancelled
	case exec.CommandsTotal > 0 && exec.CommandsSucceeded == 0:
		exec.Status = StatusFailed
	default:
		exec.Status = StatusPartial
	}

	o.statsMu.Lock()
	o.stats.Runs++
	if exec.Success {
		o.stats.Succeeded++
	} else {
		o.stats.Failed++
	}
	o.stats.LastRunAt = &completedAt
	o.stats.LastExecution = exec.ID
	o.statsMu.Unlock()

	o.logger.Info("scene run complete",
		"scene", exec.Scene,
		"execution_id", exec.ID,
		"status", exec.Status,
		"commands", exec.CommandsTotal,
		"failed", exec.CommandsFailed,
		"reconciled", exec.Reconciled,
		"mismatches", len(exec.Mismatches),
		"elapsed_ms", exec.ElapsedMS,
		"success", exec.Success,
	)

	o.broadcast("scene.completed", exec)
	o.publish(func(t EventTopics) string { return t.Completed }, exec)
	o.writeMetrics(exec, outcomes)
}

func (o *Orchestrator) broadcast(channel string, payload any) {
	o.sinksMu.RLock()
	hub := o.hub
	o.sinksMu.RUnlock()
	if hub != nil {
		hub.Broadcast(channel, payload)
	}
}

func (o *Orchestrator) publish(pick func(EventTopics) string, payload any) {
	o.sinksMu.RLock()
	client, topic := o.mqtt, pick(o.topics)
	o.sinksMu.RUnlock()
	if client == nil || topic == "" {
		return
	}
	if err := client.PublishJSON(topic, payload); err != nil {
		o.logger.Warn("publishing scene event failed", "topic", topic, "error", err)
	}
}

func (o *Orchestrator) writeMetrics(exec *Execution, outcomes []dispatch.Outcome) {
	o.sinksMu.RLock()
	w := o.metrics
	o.sinksMu.RUnlock()
	if w == nil {
		return
	}

	ts := exec.TriggeredAt
	if exec.CompletedAt != nil {
		ts = *exec.CompletedAt
	}

	fields := map[string]interface{}{
		"elapsed_ms":         exec.ElapsedMS,
		"devices":            exec.DevicesTotal,
		"commands":           exec.CommandsTotal,
		"commands_succeeded": exec.CommandsSucceeded,
		"commands_failed":    exec.CommandsFailed,
		"reconciled":         exec.Reconciled,
		"batches":            exec.Batches,
		"mismatches":         len(exec.Mismatches),
		"success":            exec.Success,
	}
	w.WritePointWithTime("scene_runs", map[string]string{
		"scene":  exec.Scene,
		"scope":  string(exec.Scope),
		"status": string(exec.Status),
		"state":  strconv.FormatBool(exec.State),
	}, fields, ts)

	for _, out := range outcomes {
		w.WritePointWithTime("command_outcomes", map[string]string{
			"device_id":    out.Command.DeviceID,
			"attribute":    out.Command.Attribute,
			"execution_id": exec.ID,
		}, map[string]interface{}{
			"succeeded":   out.Succeeded,
			"attempts":    out.Attempts,
			"status_code": out.StatusCode,
			"duration_ms": out.Duration.Milliseconds(),
		}, ts)
	}
}

// Stats returns a snapshot of the run counters.
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return o.stats
}
