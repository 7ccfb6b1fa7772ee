package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/gatewayctl/internal/scene"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A scene ran but did not fully succeed
	ExitCommandError = 2 // Bad config, unreachable gateway, invalid arguments
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// printExecution writes the one-line run summary. A nil execution prints as
// an unsuccessful run that took no time.
func printExecution(w io.Writer, name string, exec *scene.Execution) {
	var seconds float64
	success := false
	if exec != nil {
		seconds = exec.Elapsed.Seconds()
		success = exec.Success
	}
	fmt.Fprintf(w, "%s completed in %.2f seconds. Success: %t\n", name, seconds, success)
}
