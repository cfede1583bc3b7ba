package rmi

import "errors"

// Common errors returned by the bridge.
var (
	// ErrInvalidCall is returned when a call spec is missing a required
	// field (agent id, method, or task id).
	ErrInvalidCall = errors.New("invalid remote call")

	// ErrBridgeClosed is returned when a call is issued on a bridge that
	// has been stopped.
	ErrBridgeClosed = errors.New("invocation bridge is closed")
)
