// Package scheduler repeats mining passes on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/see1right/internal/miner"
	"github.com/okian/see1right/pkg/logger"
)

// Runner performs one pass.
type Runner interface {
	RunPass(ctx context.Context) miner.Report
}

// Scheduler runs a pass immediately and then once per interval until the
// context is canceled or Shutdown is called. Passes never overlap.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	name     string

	passes   atomic.Int64
	failures atomic.Int64

	// Shutdown control
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// New creates a scheduler for runner. Without WithInterval it runs a
// single pass.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		name:     "scheduler",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named(s.name)
	}
	return s
}

// Run blocks until the last pass returns. With a zero interval that is
// after the first pass.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	s.pass(ctx)
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "scheduler running", logger.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	r := s.runner.RunPass(ctx)
	s.passes.Add(1)
	if !r.OK() {
		s.failures.Add(1)
	}
}

// Passes returns how many passes completed and how many of them had failures.
func (s *Scheduler) Passes() (total, withFailures int64) {
	return s.passes.Load(), s.failures.Load()
}

// Shutdown stops scheduling and waits for the in-flight pass to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() { close(s.shutdown) })

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
