package service

import (
	"time"

	"github.com/okian/see1right/internal/domain/dedupe"
	"github.com/okian/see1right/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultSource sets the provenance tag for payloads without one.
func WithDefaultSource(source string) Option {
	return func(s *Service) {
		if source != "" {
			s.defaultSource = source
		}
	}
}

// WithMaxRecentLimit caps how many events Recent returns.
func WithMaxRecentLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxLimit = limit
		}
	}
}

// WithKnownIDs lets Submit skip the store for ids it has already stored.
func WithKnownIDs(known dedupe.Known) Option {
	return func(s *Service) {
		s.known = known
	}
}

// WithClock overrides the time source used for missing created_at values.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how ids are generated for payloads without one.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}
