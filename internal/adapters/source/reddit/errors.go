package reddit

import "errors"

// Sentinel error kinds for the Reddit collector.
var (
	// ErrFetch marks a failed channel fetch: network, auth, rate limit, or
	// an unreadable response. Callers skip the channel for the current pass.
	ErrFetch = errors.New("reddit fetch failed")
	// ErrMissingCredentials is returned by New when the app credentials are
	// absent. It also matches config.ErrInvalidConfig.
	ErrMissingCredentials = errors.New("missing reddit client id or secret")
)
