package scene

import (
	"context"
	"encoding/json"
	"fmt"
)

// Trigger requests a scene run from an external source such as an MQTT
// command message.
//
// Payload format:
//
//	{"scope":"all","state":true}
//	{"scope":"first_n","state":false,"n":5}
type Trigger struct {
	Scope Scope `json:"scope"`
	State bool  `json:"state"`
	N     int   `json:"n,omitempty"`
}

// ParseTrigger decodes and validates a trigger payload. A missing scope
// means ScopeAll.
func ParseTrigger(payload []byte) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(payload, &t); err != nil {
		return Trigger{}, fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
	}
	if t.Scope == "" {
		t.Scope = ScopeAll
	}
	if err := t.Validate(); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// Validate checks the scope and, for first-N triggers, the limit.
func (t Trigger) Validate() error {
	switch t.Scope {
	case ScopeAll:
		return nil
	case ScopeFirstN:
		if t.N < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidLimit, t.N)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidTrigger, t.Scope)
	}
}

// Name returns the display name of the run the trigger starts.
func (t Trigger) Name() string {
	if t.Scope == ScopeFirstN {
		return Name(t.State, t.N)
	}
	return Name(t.State, 0)
}

// HandleTrigger validates t and runs the matching entry point.
func (o *Orchestrator) HandleTrigger(ctx context.Context, t Trigger) (*Execution, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Scope == ScopeFirstN {
		return o.ApplyFirstN(ctx, t.Name(), t.State, t.N)
	}
	return o.ApplyAll(ctx, t.Name(), t.State)
}
