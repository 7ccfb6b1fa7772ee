// Package scene implements the scene orchestrator.
//
// A scene run turns a logical intent ("turn all dimmers on") into device
// commands, drives them through the dispatch scheduler and, for
// whole-fleet runs, verifies the end state against live device status.
//
// # Entry Modes
//
//   - ApplyAll: every device, pre-check on, verification on
//   - ApplyFirstN: first N devices in directory order, neither pre-check nor verification
//
// # Command Generation
//
//	switch  ──▶ status=<state>
//	dimmer  ──▶ status=<state> [+ dimLevel=100 when state is on]
//	other   ──▶ (nothing)
//
// Each run produces an Execution record that is logged, broadcast to the
// WebSocket hub, published to MQTT and written to InfluxDB when those sinks
// are configured.
package scene
