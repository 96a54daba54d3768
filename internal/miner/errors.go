package miner

import "errors"

// Sentinel error kinds for a mining pass. Both are recoverable: the pass
// logs them and moves on to the next channel or item.
var (
	ErrFetch  = errors.New("channel fetch failed")
	ErrSubmit = errors.New("event submit failed")
)
