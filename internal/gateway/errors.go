package gateway

import "errors"

// Domain errors for the gateway client.
var (
	// ErrUnexpectedStatus is returned when the gateway answers with a status
	// other than 200. The wrapping error carries the code.
	ErrUnexpectedStatus = errors.New("gateway: unexpected status")

	// ErrInvalidResponse is returned when a response body cannot be decoded
	// or lacks the "result" member.
	ErrInvalidResponse = errors.New("gateway: invalid response")
)
