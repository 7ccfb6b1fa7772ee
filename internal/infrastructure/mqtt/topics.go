package mqtt

import "strings"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "gatewayctl"

// Topics builds gatewayctl MQTT topics under a configurable prefix.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics("gatewayctl")
//	topics.SceneCompleted() // "gatewayctl/scene/completed"
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics for prefix, trimming any trailing slash.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SceneStarted returns the topic announcing a scene run has begun.
//
// Example: gatewayctl/scene/started
func (t Topics) SceneStarted() string {
	return t.prefix() + "/scene/started"
}

// SceneCompleted returns the topic carrying finished scene executions.
//
// Example: gatewayctl/scene/completed
func (t Topics) SceneCompleted() string {
	return t.prefix() + "/scene/completed"
}

// SceneCommand returns the topic on which scene runs can be triggered.
//
// Example: gatewayctl/command/scene
func (t Topics) SceneCommand() string {
	return t.prefix() + "/command/scene"
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: gatewayctl/system/status
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}
