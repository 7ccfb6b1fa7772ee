package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gatewayctl/internal/scene"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          MQTTMetrics    `json:"mqtt"`
	InfluxDB      InfluxMetrics  `json:"influxdb"`
	Devices       DeviceMetrics  `json:"devices"`
	Scenes        scene.Stats    `json:"scenes"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int   `json:"connected_clients"`
	DroppedEvents    int64 `json:"dropped_events"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// InfluxMetrics reports whether run metrics are being recorded.
type InfluxMetrics struct {
	Connected bool `json:"connected"`
}

// DeviceMetrics contains device directory statistics.
type DeviceMetrics struct {
	Loaded bool `json:"loaded"`
	Total  int  `json:"total"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			DroppedEvents:    s.hub.Dropped(),
		},
		// Both clients are nil-safe.
		MQTT:     MQTTMetrics{Connected: s.mqtt.IsConnected()},
		InfluxDB: InfluxMetrics{Connected: s.influx.IsConnected()},
		Devices: DeviceMetrics{
			Loaded: s.directory.Loaded(),
			Total:  s.directory.Len(),
		},
		Scenes: s.scenes.Stats(),
	}

	writeJSON(w, http.StatusOK, metrics)
}
