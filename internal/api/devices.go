package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gatewayctl/internal/device"
)

// maxQueryParamLen bounds path and query parameters.
const maxQueryParamLen = 128

// handleListDevices returns the cached device directory, fetching it on
// first use.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.directory.Devices(r.Context())
	if err != nil {
		s.logger.Warn("listing devices failed", "error", err)
		writeUnavailable(w, "no devices available")
		return
	}

	if t := r.URL.Query().Get("type"); t != "" {
		filtered := make([]device.Device, 0, len(devices))
		for _, d := range devices {
			if string(d.Type) == t {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleRefreshDevices drops the cached directory and fetches it again.
func (s *Server) handleRefreshDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.directory.Refresh(r.Context())
	if err != nil {
		s.logger.Warn("refreshing devices failed", "error", err)
		writeUnavailable(w, "no devices available")
		return
	}

	s.logger.Info("device directory refreshed", "count", len(devices))
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDeviceStatus reads one device's live status from the gateway.
func (s *Server) handleGetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}
	if s.status == nil {
		writeUnavailable(w, "status reads not configured")
		return
	}

	ctx := r.Context()
	dev, err := s.directory.Get(ctx, id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeUnavailable(w, "no devices available")
		return
	}

	status, err := s.status.DeviceStatus(ctx, id)
	if err != nil {
		s.logger.Warn("device status read failed", "device_id", id, "error", err)
		writeUnavailable(w, "device status unavailable")
		return
	}

	resp := map[string]any{
		"id":     dev.ID,
		"type":   dev.Type,
		"status": status,
	}
	if on, ok := device.StatusValue(status); ok {
		resp["on"] = on
	}
	writeJSON(w, http.StatusOK, resp)
}
