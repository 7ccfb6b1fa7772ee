// Package device provides the device model and the cached Device Directory.
//
// The gateway is the source of truth for which devices exist. The Directory
// fetches the list once per process through a Source (normally the gateway
// client) and serves every later read from memory.
//
// # Architecture
//
//	┌───────────────────────┐        ┌───────────────────────┐
//	│       Directory       │        │        Source         │
//	│    (directory.go)     │───────▶│  (gateway.Client)     │
//	│                       │        │                       │
//	│ • single-flight fetch │        │ • GET /devices        │
//	│ • read-only cache     │        └───────────────────────┘
//	│ • Invalidate/Refresh  │
//	└───────────────────────┘
//
// # Key Types
//
//   - Device: id, type and name plus the opaque fields the gateway returned
//   - Type: switch, dimmer or anything else
//
// # Usage
//
//	dir := device.NewDirectory(gatewayClient)
//	dir.SetLogger(log)
//
//	devices, err := dir.Devices(ctx)
//	if errors.Is(err, device.ErrDirectoryUnavailable) {
//	    return err
//	}
//
// # Thread Safety
//
// The Directory is safe for concurrent use. Concurrent first reads are
// collapsed into one gateway request.
package device
