package broadcast

import "errors"

var (
	// ErrBroadcastFailed indicates the transaction could not be submitted:
	// either a permanent rejection or retry exhaustion. The wrapped cause
	// is the last node error.
	ErrBroadcastFailed = errors.New("broadcast: transaction broadcast failed")

	// ErrConfirmationTimeout indicates the confirmation deadline passed
	// before the transaction reached its target depth.
	ErrConfirmationTimeout = errors.New("broadcast: confirmation timed out")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("broadcast: required parameter is nil")
)
