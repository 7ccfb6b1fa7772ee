package device

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// Type classifies a gateway device. Only switches and dimmers are commanded;
// every other type is carried through untouched.
type Type string

// Device types the orchestrator acts on.
const (
	TypeSwitch Type = "switch"
	TypeDimmer Type = "dimmer"
)

// Controllable reports whether devices of this type accept on/off commands.
func (t Type) Controllable() bool {
	return t == TypeSwitch || t == TypeDimmer
}

// Device is one entry of the gateway's device list.
//
// Only id, type and name are interpreted. Every other field the gateway
// returns is kept in Attributes and written back unchanged by MarshalJSON.
type Device struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	Name       string         `json:"name,omitempty"`
	Attributes map[string]any `json:"-"`
}

// UnmarshalJSON decodes a gateway device object, keeping unknown fields.
func (d *Device) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, ok := raw["id"]
	if !ok || id == nil {
		return fmt.Errorf("%w: missing id", ErrInvalidDevice)
	}
	switch v := id.(type) {
	case string:
		d.ID = v
	case float64:
		d.ID = fmt.Sprintf("%.0f", v)
	default:
		return fmt.Errorf("%w: id has type %T", ErrInvalidDevice, id)
	}

	t, _ := raw["type"].(string)
	d.Type = Type(strings.ToLower(t))
	d.Name, _ = raw["name"].(string)

	delete(raw, "id")
	delete(raw, "type")
	delete(raw, "name")
	if len(raw) > 0 {
		d.Attributes = raw
	} else {
		d.Attributes = nil
	}
	return nil
}

// MarshalJSON flattens Attributes back alongside id, type and name.
func (d Device) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Attributes)+3)
	maps.Copy(out, d.Attributes)
	out["id"] = d.ID
	out["type"] = d.Type
	if d.Name != "" {
		out["name"] = d.Name
	}
	return json.Marshal(out)
}

// Clone returns a copy whose Attributes map can be modified independently.
// Nested values inside Attributes are shared.
func (d Device) Clone() Device {
	d.Attributes = maps.Clone(d.Attributes)
	return d
}

// StatusValue interprets a status payload returned by the gateway as an
// on/off boolean. It accepts a bare boolean, the strings "on"/"off" and
// "true"/"false", or an object whose "status" or "on" member is one of
// those. ok is false when the payload cannot be interpreted.
func StatusValue(status any) (on bool, ok bool) {
	switch v := status.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(v) {
		case "on", "true":
			return true, true
		case "off", "false":
			return false, true
		}
	case map[string]any:
		for _, key := range []string{"status", "on"} {
			if inner, exists := v[key]; exists {
				return StatusValue(inner)
			}
		}
	}
	return false, false
}

// MatchesState reports whether a status payload equals the expected state.
// Payloads that cannot be interpreted never match.
func MatchesState(status any, want bool) bool {
	on, ok := StatusValue(status)
	return ok && on == want
}
