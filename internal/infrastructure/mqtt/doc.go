// Package mqtt provides MQTT client connectivity for gatewayctl.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing scene run events
//   - The scene trigger subscription used by the serve command
//   - Last Will and Testament (LWT) for offline detection
//
// # Topics
//
// Every topic lives under the configured prefix (default "gatewayctl"):
//
//	<prefix>/scene/started     scene run accepted, with its command count
//	<prefix>/scene/completed   finished scene executions (JSON)
//	<prefix>/command/scene     {"scope":"all"|"first_n","state":bool,"n":int}
//	<prefix>/system/status     retained online/offline status
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if errors.Is(err, mqtt.ErrDisabled) {
//	    // run without MQTT
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().SceneCommand(), 1, handler)
package mqtt
