package miner

import (
	"time"

	"github.com/okian/see1right/pkg/logger"
)

// Option applies a configuration option to the Miner.
type Option func(*Miner)

// WithLogger sets a custom logger for the miner.
func WithLogger(l logger.Logger) Option {
	return func(m *Miner) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source used for missing created_at values
// and pass timing.
func WithClock(now func() time.Time) Option {
	return func(m *Miner) {
		if now != nil {
			m.now = now
		}
	}
}
