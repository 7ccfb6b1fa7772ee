// Package api implements the local control API and WebSocket server for gatewayctl.
//
// This package provides:
//   - REST endpoints for the device directory and single-device status reads
//   - Scene endpoints running the whole-fleet and first-N entry points
//   - WebSocket hub broadcasting scene.started and scene.completed events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, token)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/metrics
//	GET  /api/v1/devices[?type=switch]
//	POST /api/v1/devices/refresh
//	GET  /api/v1/devices/{id}/status
//	GET  /api/v1/scenes/stats
//	POST /api/v1/scenes/all        {"state": true}
//	POST /api/v1/scenes/first/{n}  {"state": false, "name": "Evening"}
//	GET  /api/v1/ws
//
// Scene requests block until the run finishes and return the execution
// record. A client disconnecting mid-run does not cancel it.
//
// # Security
//
// When api.token is set every route except health and metrics requires
// "Authorization: Bearer <token>" (or ?token= for WebSocket clients).
// The server binds to 127.0.0.1 by default.
package api
