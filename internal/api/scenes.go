package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gatewayctl/internal/device"
	"github.com/nerrad567/gatewayctl/internal/scene"
)

// sceneRequest is the body of a scene run request.
type sceneRequest struct {
	State *bool  `json:"state"`
	Name  string `json:"name,omitempty"`
}

// decodeSceneRequest reads and validates the request body.
func decodeSceneRequest(r *http.Request) (sceneRequest, bool) {
	var req sceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, false
	}
	return req, req.State != nil && len(req.Name) <= maxQueryParamLen
}

// handleRunAll sets every device to the requested state and returns the
// execution record once the run has finished.
func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSceneRequest(r)
	if !ok {
		writeBadRequest(w, `body must be {"state": bool, "name": string?}`)
		return
	}

	name := req.Name
	if name == "" {
		name = scene.Name(*req.State, 0)
	}

	exec, err := s.scenes.ApplyAll(s.runContext(), name, *req.State)
	s.writeExecution(w, exec, err)
}

// handleRunFirstN sets the first n devices to the requested state.
func (s *Server) handleRunFirstN(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "n must be a positive integer")
		return
	}

	req, ok := decodeSceneRequest(r)
	if !ok {
		writeBadRequest(w, `body must be {"state": bool, "name": string?}`)
		return
	}

	name := req.Name
	if name == "" {
		name = scene.Name(*req.State, n)
	}

	exec, err := s.scenes.ApplyFirstN(s.runContext(), name, *req.State, n)
	s.writeExecution(w, exec, err)
}

// handleSceneStats returns the run counters.
func (s *Server) handleSceneStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scenes.Stats())
}

// runContext detaches the run from the HTTP request so a disconnecting
// client does not abort it halfway; server shutdown still cancels it.
func (s *Server) runContext() context.Context {
	return s.runCtx
}

// writeExecution maps the orchestrator result onto an HTTP response.
func (s *Server) writeExecution(w http.ResponseWriter, exec *scene.Execution, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, exec)
	case errors.Is(err, scene.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrDirectoryUnavailable), errors.Is(err, scene.ErrNoDevices):
		writeUnavailable(w, "no devices available")
	default:
		s.logger.Error("scene run failed", "error", err)
		writeInternalError(w, "scene run failed")
	}
}
