package scene

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gatewayctl/internal/device"
	"github.com/nerrad567/gatewayctl/internal/dispatch"
)

// ─── Mock Dependencies ─────────────────────────────────────────

type mockDirectory struct {
	devices []device.Device
	err     error
	calls   int
}

func (m *mockDirectory) Devices(context.Context) ([]device.Device, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.devices, nil
}

func (m *mockDirectory) First(ctx context.Context, n int) ([]device.Device, error) {
	devices, err := m.Devices(ctx)
	if err != nil {
		return nil, err
	}
	if n < len(devices) {
		devices = devices[:n]
	}
	return devices, nil
}

// mockGateway stores device states; it reads statuses and applies commands.
type mockGateway struct {
	mu        sync.Mutex
	states    map[string]bool
	readErr   map[string]error
	ignore    map[string]bool // commands accepted but not applied
	reads     int
	commanded []dispatch.Command
}

func newMockGateway(states map[string]bool) *mockGateway {
	return &mockGateway{states: states, readErr: map[string]error{}, ignore: map[string]bool{}}
}

func (m *mockGateway) DeviceStatus(_ context.Context, id string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if err := m.readErr[id]; err != nil {
		return nil, err
	}
	return map[string]any{"on": m.states[id]}, nil
}

func (m *mockGateway) SendCommand(_ context.Context, id, attribute string, value any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commanded = append(m.commanded, dispatch.Command{DeviceID: id, Attribute: attribute, Value: value})
	if attribute == AttrStatus && !m.ignore[id] {
		m.states[id] = value.(bool)
	}
	return 200, nil
}

func (m *mockGateway) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// recordingRunner captures the commands it is asked to run.
type recordingRunner struct {
	mu     sync.Mutex
	calls  int
	cmds   []dispatch.Command
	result dispatch.Result
	onRun  func()
}

func (r *recordingRunner) RunProgressive(_ context.Context, cmds []dispatch.Command, _ dispatch.Options) dispatch.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.cmds = append(r.cmds, cmds...)
	if r.onRun != nil {
		r.onRun()
	}
	res := r.result
	if res.Outcomes == nil {
		res.Success = true
		for _, c := range cmds {
			res.Outcomes = append(res.Outcomes, dispatch.Outcome{Command: c, Succeeded: true, Attempts: 1})
		}
	}
	return res
}

type mockHub struct {
	mu       sync.Mutex
	channels []string
}

func (h *mockHub) Broadcast(channel string, _ any) {
	h.mu.Lock()
	h.channels = append(h.channels, channel)
	h.mu.Unlock()
}

type mockMQTT struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (m *mockMQTT) PublishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, payload)
	return m.err
}

type mockMetrics struct {
	mu           sync.Mutex
	measurements []string
}

func (m *mockMetrics) WritePointWithTime(measurement string, _ map[string]string, _ map[string]interface{}, _ time.Time) {
	m.mu.Lock()
	m.measurements = append(m.measurements, measurement)
	m.mu.Unlock()
}

func fleet() []device.Device {
	return []device.Device{
		{ID: "a", Type: device.TypeSwitch},
		{ID: "b", Type: device.TypeDimmer},
		{ID: "c", Type: device.Type("sensor")},
	}
}

func fastOptions() dispatch.Options {
	opts := dispatch.DefaultOptions()
	opts.BatchDelay = time.Millisecond
	opts.Retry.Delay = time.Millisecond
	opts.ReconcileRetry.Delay = time.Millisecond
	return opts
}

// ─── Command Generation ────────────────────────────────────────

func TestApplyAll_PreCheckedCommands(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": false, "b": false})
	runner := &recordingRunner{}
	o := NewOrchestrator(&mockDirectory{devices: fleet()}, gw, runner, fastOptions(), nil)

	_, err := o.ApplyAll(context.Background(), "Turn All On", true)
	require.NoError(t, err)

	assert.Equal(t, []dispatch.Command{
		{DeviceID: "a", Attribute: "status", Value: true},
		{DeviceID: "b", Attribute: "status", Value: true},
		{DeviceID: "b", Attribute: "dimLevel", Value: 100},
	}, runner.cmds)
}

func TestApplyAll_SkipsDevicesAlreadyAtState(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": true, "b": false})
	runner := &recordingRunner{}
	o := NewOrchestrator(&mockDirectory{devices: fleet()}, gw, runner, fastOptions(), nil)

	_, err := o.ApplyAll(context.Background(), "Turn All On", true)
	require.NoError(t, err)

	assert.Equal(t, []dispatch.Command{
		{DeviceID: "b", Attribute: "status", Value: true},
		{DeviceID: "b", Attribute: "dimLevel", Value: 100},
	}, runner.cmds)
}

func TestApplyAll_OffHasNoDimLevel(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": true, "b": true})
	runner := &recordingRunner{}
	o := NewOrchestrator(&mockDirectory{devices: fleet()}, gw, runner, fastOptions(), nil)

	_, err := o.ApplyAll(context.Background(), "Turn All Off", false)
	require.NoError(t, err)

	assert.Equal(t, []dispatch.Command{
		{DeviceID: "a", Attribute: "status", Value: false},
		{DeviceID: "b", Attribute: "status", Value: false},
	}, runner.cmds)
}

func TestApplyAll_UnreadableDeviceIsCommanded(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": true, "b": true})
	gw.readErr["a"] = errors.New("timeout")
	runner := &recordingRunner{}
	o := NewOrchestrator(&mockDirectory{devices: fleet()}, gw, runner, fastOptions(), nil)

	_, _ = o.ApplyAll(context.Background(), "Turn All On", true)

	assert.Equal(t, []dispatch.Command{{DeviceID: "a", Attribute: "status", Value: true}}, runner.cmds)
}

func TestApplyFirstN_NoPreCheck(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": false, "b": false})
	runner := &recordingRunner{}
	o := NewOrchestrator(&mockDirectory{devices: fleet()}, gw, runner, fastOptions(), nil)

	exec, err := o.ApplyFirstN(context.Background(), "Turn First 2 Off", false, 2)
	require.NoError(t, err)

	assert.Equal(t, []dispatch.Command{
		{DeviceID: "a", Attribute: "status", Value: false},
		{DeviceID: "b", Attribute: "status", Value: false},
	}, runner.cmds)
	assert.Zero(t, gw.readCount(), "first-N runs never read device state")
	assert.Nil(t, exec.Verified)
	assert.True(t, exec.Success)
	assert.Equal(t, ScopeFirstN, exec.Scope)
	assert.Equal(t, 2, exec.Limit)
}

func TestApplyFirstN_LimitLargerThanDirectory(t *testing.T) {
	runner := &recordingRunner{}
	o := NewOrchestrator(&mockDirectory{devices: fleet()}, newMockGateway(map[string]bool{}), runner, fastOptions(), nil)

	exec, err := o.ApplyFirstN(context.Background(), "Turn First 20 On", true, 20)
	require.NoError(t, err)

	assert.Equal(t, 3, exec.DevicesTotal)
	assert.Len(t, runner.cmds, 3)
}

func TestApplyFirstN_InvalidLimit(t *testing.T) {
	dir := &mockDirectory{devices: fleet()}
	runner := &recordingRunner{}
	o := NewOrchestrator(dir, newMockGateway(nil), runner, fastOptions(), nil)

	exec, err := o.ApplyFirstN(context.Background(), "bad", true, 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	assert.False(t, exec.Success)
	assert.Zero(t, dir.calls)
	assert.Zero(t, runner.calls)
}

// ─── Failure Paths ─────────────────────────────────────────────

func TestApplyAll_DirectoryFailure(t *testing.T) {
	gw := newMockGateway(map[string]bool{})
	runner := &recordingRunner{}
	dirErr := errors.Join(device.ErrDirectoryUnavailable, errors.New("connection refused"))
	o := NewOrchestrator(&mockDirectory{err: dirErr}, gw, runner, fastOptions(), nil)

	exec, err := o.ApplyAll(context.Background(), "Turn All On", true)

	assert.ErrorIs(t, err, device.ErrDirectoryUnavailable)
	assert.False(t, exec.Success)
	assert.Zero(t, exec.Elapsed)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Zero(t, runner.calls, "no command may be dispatched")
	assert.Zero(t, gw.readCount(), "no verification may run")
}

func TestApplyState_EmptySubset(t *testing.T) {
	runner := &recordingRunner{}
	o := NewOrchestrator(&mockDirectory{}, newMockGateway(nil), runner, fastOptions(), nil)

	exec, err := o.ApplyState(context.Background(), true, nil, ApplyOptions{Scene: "x", Scope: ScopeAll, Verify: true})

	assert.ErrorIs(t, err, ErrNoDevices)
	assert.False(t, exec.Success)
	assert.Zero(t, exec.Elapsed)
	assert.Zero(t, runner.calls)
}

func TestApplyAll_DispatchFailure(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": false, "b": false})
	runner := &recordingRunner{result: dispatch.Result{
		Success:  false,
		Outcomes: []dispatch.Outcome{{Succeeded: false}},
		Failed:   []dispatch.Command{{DeviceID: "a"}},
	}}
	o := NewOrchestrator(&mockDirectory{devices: fleet()}, gw, runner, fastOptions(), nil)

	exec, err := o.ApplyAll(context.Background(), "Turn All On", true)
	require.NoError(t, err)

	assert.False(t, exec.Success)
	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, 1, exec.CommandsFailed)
}

func TestApplyAll_CancelledBeforeVerification(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": false, "b": false})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &recordingRunner{onRun: cancel}
	o := NewOrchestrator(&mockDirectory{devices: fleet()}, gw, runner, fastOptions(), nil)

	exec, err := o.ApplyAll(ctx, "Turn All On", true)
	require.NoError(t, err)

	readsAfterPreCheck := 2
	assert.Equal(t, readsAfterPreCheck, gw.readCount(), "verification must not run")
	assert.Nil(t, exec.Verified)
	assert.False(t, exec.Success, "an unverified run is not a success")
	assert.Equal(t, StatusCancelled, exec.Status)
	assert.Equal(t, int64(1), o.Stats().Failed)
}

func TestApplyFirstN_CancelledRunStillSucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := &recordingRunner{onRun: cancel}
	o := NewOrchestrator(&mockDirectory{devices: fleet()}, newMockGateway(map[string]bool{}), runner, fastOptions(), nil)

	exec, err := o.ApplyFirstN(ctx, "Turn First 2 On", true, 2)
	require.NoError(t, err)

	// First-N runs never verify, so cancellation after dispatch changes nothing.
	assert.True(t, exec.Success)
	assert.Equal(t, StatusCompleted, exec.Status)
}

// ─── End To End With The Scheduler ─────────────────────────────

func newLiveOrchestrator(gw *mockGateway, devices []device.Device) *Orchestrator {
	d := dispatch.NewConcurrent(gw, 10)
	s := dispatch.NewScheduler(d)
	return NewOrchestrator(&mockDirectory{devices: devices}, gw, s, fastOptions(), nil)
}

func TestApplyAll_VerifiesEndState(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": false, "b": false})
	o := newLiveOrchestrator(gw, fleet())

	exec, err := o.ApplyAll(context.Background(), "Turn All On", true)
	require.NoError(t, err)

	require.NotNil(t, exec.Verified)
	assert.True(t, *exec.Verified)
	assert.True(t, exec.Success)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, 3, exec.CommandsTotal)
	assert.Equal(t, 3, exec.CommandsSucceeded)
}

func TestApplyAll_VerificationMismatch(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": false, "b": false})
	gw.ignore["b"] = true
	o := newLiveOrchestrator(gw, fleet())

	exec, err := o.ApplyAll(context.Background(), "Turn All On", true)
	require.NoError(t, err)

	require.NotNil(t, exec.Verified)
	assert.False(t, *exec.Verified)
	assert.False(t, exec.Success)
	assert.Equal(t, StatusPartial, exec.Status)
	require.Len(t, exec.Mismatches, 1)
	assert.Equal(t, "b", exec.Mismatches[0].DeviceID)
	assert.True(t, exec.Mismatches[0].Expected)
}

func TestApplyAll_Idempotent(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": true, "b": true})
	o := newLiveOrchestrator(gw, fleet())

	exec, err := o.ApplyAll(context.Background(), "Turn All On", true)
	require.NoError(t, err)

	assert.Zero(t, exec.CommandsTotal)
	assert.Empty(t, gw.commanded)
	require.NotNil(t, exec.Verified)
	assert.True(t, *exec.Verified)
	assert.True(t, exec.Success)
}

func TestApplyAll_ElapsedExcludesVerification(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": true, "b": true})
	o := newLiveOrchestrator(gw, fleet())

	exec, err := o.ApplyAll(context.Background(), "Turn All On", true)
	require.NoError(t, err)

	// No commands were generated, so only verification took time.
	assert.Zero(t, exec.Elapsed)
	assert.Positive(t, gw.readCount())
}

// ─── Sinks ─────────────────────────────────────────────────────

func TestApplyAll_EventsAndMetrics(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": false, "b": false})
	o := newLiveOrchestrator(gw, fleet())

	hub := &mockHub{}
	mq := &mockMQTT{err: errors.New("not connected")}
	metrics := &mockMetrics{}
	o.SetHub(hub)
	o.SetMQTT(mq, EventTopics{Started: "gatewayctl/scene/started", Completed: "gatewayctl/scene/completed"})
	o.SetMetrics(metrics)

	exec, err := o.ApplyAll(context.Background(), "Turn All On", true)
	require.NoError(t, err, "sink failures must not propagate")
	assert.True(t, exec.Success)

	assert.Equal(t, []string{"scene.started", "scene.completed"}, hub.channels)

	require.Len(t, mq.payloads, 2)
	assert.Equal(t, []string{"gatewayctl/scene/started", "gatewayctl/scene/completed"}, mq.topics)

	var started map[string]any
	require.NoError(t, json.Unmarshal(mq.payloads[0], &started))
	assert.Equal(t, exec.ID, started["execution_id"])
	assert.Equal(t, float64(3), started["commands"])

	var published Execution
	require.NoError(t, json.Unmarshal(mq.payloads[1], &published))
	assert.Equal(t, exec.ID, published.ID)
	assert.Equal(t, StatusCompleted, published.Status)

	assert.Equal(t, []string{"scene_runs", "command_outcomes", "command_outcomes", "command_outcomes"}, metrics.measurements)
}

func TestApplyAll_CompletedTopicOnly(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": false, "b": false})
	o := newLiveOrchestrator(gw, fleet())

	mq := &mockMQTT{}
	o.SetMQTT(mq, EventTopics{Completed: "gatewayctl/scene/completed"})

	_, err := o.ApplyAll(context.Background(), "Turn All On", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"gatewayctl/scene/completed"}, mq.topics)
}

func TestOrchestrator_Stats(t *testing.T) {
	gw := newMockGateway(map[string]bool{"a": false, "b": false})
	o := newLiveOrchestrator(gw, fleet())

	_, _ = o.ApplyFirstN(context.Background(), "Turn First 1 On", true, 1)
	_, _ = o.ApplyFirstN(context.Background(), "bad", true, -1)

	stats := o.Stats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(1), stats.Succeeded)
	assert.Equal(t, int64(1), stats.Failed)
	assert.NotNil(t, stats.LastRunAt)
}

func TestName(t *testing.T) {
	assert.Equal(t, "Turn All On", Name(true, 0))
	assert.Equal(t, "Turn All Off", Name(false, 0))
	assert.Equal(t, "Turn First 5 On", Name(true, 5))
	assert.Equal(t, "Turn First 20 Off", Name(false, 20))
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
