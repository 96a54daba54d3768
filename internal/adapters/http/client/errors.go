package client

import "errors"

// Sentinel error kinds for the gateway client.
var (
	// ErrSubmit marks a write that did not reach the store: transport
	// failure, timeout, or a non-2xx answer.
	ErrSubmit = errors.New("submit failed")
	// ErrUnhealthy marks a failed health check.
	ErrUnhealthy = errors.New("gateway unhealthy")
	// ErrRequest marks other failed calls, such as listing events.
	ErrRequest = errors.New("gateway request failed")
)
