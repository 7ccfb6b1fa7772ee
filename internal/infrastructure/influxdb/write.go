package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by gatewayctl.
const (
	MeasurementSceneRuns       = "scene_runs"
	MeasurementCommandOutcomes = "command_outcomes"
	MeasurementDirectory       = "device_directory"
)

// WriteDirectorySnapshot records the size of the device directory after a
// load or refresh.
//
// Parameters:
//   - gateway: Gateway base URL, stored as a tag
//   - total: Number of devices returned by the gateway
//   - controllable: Number of switches and dimmers among them
func (c *Client) WriteDirectorySnapshot(gateway string, total, controllable int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementDirectory,
		map[string]string{
			"gateway": gateway,
		},
		map[string]interface{}{
			"devices":      total,
			"controllable": controllable,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Scene runs are written with their completion time so a run and its
// command outcomes share one timestamp.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
