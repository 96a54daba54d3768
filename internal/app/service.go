// Package service provides the write and read paths over the event store
// that back the HTTP API and the in-process miner.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/see1right/internal/adapters/repository"
	"github.com/okian/see1right/internal/domain/dedupe"
	"github.com/okian/see1right/internal/domain/model"
	"github.com/okian/see1right/internal/domain/normalize"
	"github.com/okian/see1right/pkg/errkind"
	"github.com/okian/see1right/pkg/logger"
	"github.com/okian/see1right/pkg/metrics"
)

// Defaults for the read path.
const (
	DefaultRecentLimit = 50
	// DefaultSource tags submitted payloads that carry no source.
	DefaultSource = "api"
)

// Service implements the ingestion gateway and the query service.
type Service struct {
	mu sync.RWMutex

	store repository.Store
	known dedupe.Known

	// Configuration
	defaultSource string
	maxLimit      int
	now           func() time.Time
	newID         func() string

	// State
	started   bool
	startedAt time.Time

	submitted  atomic.Int64
	stored     atomic.Int64
	duplicates atomic.Int64

	logger logger.Logger
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:         store,
		defaultSource: DefaultSource,
		maxLimit:      DefaultRecentLimit,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start ensures the schema exists. It is safe to call more than once.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	if err := s.store.Init(ctx); err != nil {
		return errkind.Op("service.start", err)
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "event service started", logger.Int("maxRecentLimit", s.maxLimit))
	return nil
}

// Stop closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(context.Background(), "closing store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "event service stopped")
}

// Submit normalizes payload and stores it unless its id already exists.
// The receipt is identical for new and duplicate events. Storage failures
// are returned and wrap repository.ErrStorage.
func (s *Service) Submit(ctx context.Context, payload model.RawItem) (model.Receipt, error) {
	s.submitted.Add(1)

	e := normalize.Normalize(payload, normalize.Defaults{
		Source: s.defaultSource,
		Now:    s.now,
		NewID:  s.newID,
	})

	if s.known != nil && s.known.Known(ctx, e.ID) {
		s.recordDuplicate(ctx, e)
		return model.Receipt{Status: model.StatusStored}, nil
	}

	inserted, err := s.store.InsertIfAbsent(ctx, e)
	if err != nil {
		return model.Receipt{}, errkind.Op("service.submit", err)
	}
	if s.known != nil {
		s.known.Record(ctx, e.ID)
	}

	if inserted {
		s.stored.Add(1)
		metrics.RecordEventStored()
		s.log().Debug(ctx, "event stored",
			logger.String("id", e.ID),
			logger.String("category", e.Category),
			logger.String("source", e.Source),
		)
	} else {
		s.recordDuplicate(ctx, e)
	}
	return model.Receipt{Status: model.StatusStored}, nil
}

func (s *Service) recordDuplicate(ctx context.Context, e model.Event) {
	s.duplicates.Add(1)
	metrics.RecordEventDuplicate()
	s.log().Debug(ctx, "duplicate event ignored", logger.String("id", e.ID))
}

// Recent returns up to limit events, newest first. A limit of zero or less
// means DefaultRecentLimit; larger limits are capped at the configured maximum.
func (s *Service) Recent(ctx context.Context, limit int) ([]model.Event, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	events, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, errkind.Op("service.recent", err)
	}
	return events, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":        s.started,
		"submitted":      s.submitted.Load(),
		"stored":         s.stored.Load(),
		"duplicates":     s.duplicates.Load(),
		"maxRecentLimit": s.maxLimit,
	}
	if s.known != nil {
		stats["knownIDs"] = s.known.Size()
	}

	if s.started {
		stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())
		if n, err := s.store.Count(ctx); err == nil {
			stats["events"] = n
			metrics.UpdateEventsTotal(n)
		} else {
			s.logger.Warn(ctx, "counting events", logger.Error(err))
		}
	}

	return stats
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	l := s.logger
	s.mu.RUnlock()
	if l == nil {
		return logger.Get().Named("service")
	}
	return l
}
