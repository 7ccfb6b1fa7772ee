// Package influxdb provides InfluxDB connectivity for gatewayctl.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing and health monitoring.
//
// # Purpose
//
// Every scene run is recorded as time-series data:
//   - scene_runs: one point per run (elapsed time, counts, status)
//   - command_outcomes: one point per dispatched command (attempts, status code)
//   - device_directory: directory size after each load or refresh
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without metrics
//	}
//	defer client.Close()
//
//	orchestrator.SetMetrics(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
