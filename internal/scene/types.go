package scene

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scope identifies which devices a run targets.
type Scope string

// Run scopes.
const (
	ScopeAll    Scope = "all"     // every device in the directory
	ScopeFirstN Scope = "first_n" // the first N devices in directory order
)

// ExecutionStatus represents the final state of a scene run.
type ExecutionStatus string

// Execution statuses.
const (
	StatusCompleted ExecutionStatus = "completed"
	StatusPartial   ExecutionStatus = "partial"   // some commands or verifications failed
	StatusFailed    ExecutionStatus = "failed"    // nothing was applied
	StatusCancelled ExecutionStatus = "cancelled" // context ended mid-run
)

// Mismatch records a device whose observed state disagrees with the target
// after dispatch.
type Mismatch struct {
	DeviceID string `json:"device_id"`
	Expected bool   `json:"expected"`
	Actual   any    `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Execution tracks a single scene run.
type Execution struct {
	ID          string          `json:"id"`
	Scene       string          `json:"scene"`
	Scope       Scope           `json:"scope"`
	State       bool            `json:"state"`
	Limit       int             `json:"limit,omitempty"`
	TriggeredAt time.Time       `json:"triggered_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Status      ExecutionStatus `json:"status"`

	// Counts
	DevicesTotal      int `json:"devices_total"`
	CommandsTotal     int `json:"commands_total"`
	CommandsSucceeded int `json:"commands_succeeded"`
	CommandsFailed    int `json:"commands_failed"`
	Reconciled        int `json:"reconciled"`
	Batches           int `json:"batches"`

	// Verification results; Verified is nil when no verification ran.
	Verified   *bool      `json:"verified,omitempty"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`

	// Elapsed covers dispatch only, never verification.
	Elapsed   time.Duration `json:"-"`
	ElapsedMS int64         `json:"elapsed_ms"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ApplyOptions selects the behaviour of ApplyState.
type ApplyOptions struct {
	Scene string
	Scope Scope
	Limit int

	// PreCheck reads each device's current status first and skips devices
	// already in the target state.
	PreCheck bool

	// Verify re-reads every controllable device after dispatch and folds the
	// result into Success.
	Verify bool
}

// Stats are process-lifetime counters exposed by the API metrics endpoint.
type Stats struct {
	Runs          int64      `json:"runs"`
	Succeeded     int64      `json:"succeeded"`
	Failed        int64      `json:"failed"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	LastExecution string     `json:"last_execution_id,omitempty"`
}

// GenerateID returns a new execution ID.
func GenerateID() string {
	return uuid.New().String()
}

// Name builds the display name of a run, e.g. "Turn All On" or
// "Turn First 5 Off". n < 1 names a whole-fleet run.
func Name(state bool, n int) string {
	word := "Off"
	if state {
		word = "On"
	}
	if n < 1 {
		return "Turn All " + word
	}
	return fmt.Sprintf("Turn First %d %s", n, word)
}
