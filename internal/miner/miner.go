// Package miner runs mining passes: fetch each channel, normalize its
// items, and submit them for storage.
//
// A pass is sequential and carries no state into the next one. Failures are
// isolated: a failed channel fetch skips that channel, a failed submit skips
// that item.
package miner

import (
	"context"
	"time"

	"github.com/okian/see1right/internal/domain/model"
	"github.com/okian/see1right/internal/domain/normalize"
	"github.com/okian/see1right/pkg/errkind"
	"github.com/okian/see1right/pkg/logger"
	"github.com/okian/see1right/pkg/metrics"
)

// Collector fetches raw items from an external source.
type Collector interface {
	FetchNew(ctx context.Context, channel string, limit int) ([]model.RawItem, error)
	// Source is the provenance tag for everything this collector returns.
	Source() string
}

// Submitter hands a normalized event to the write path: the in-process
// service or the HTTP gateway client.
type Submitter interface {
	Submit(ctx context.Context, payload model.RawItem) (model.Receipt, error)
}

// Report summarizes one pass.
type Report struct {
	Channels int
	Fetched  int
	Stored   int
	// FetchFailures holds one error per failed channel, wrapping ErrFetch.
	FetchFailures []error
	// SubmitFailures holds one error per failed item, wrapping ErrSubmit.
	SubmitFailures []error
	Duration       time.Duration
}

// OK reports whether the pass finished without failures.
func (r Report) OK() bool {
	return len(r.FetchFailures) == 0 && len(r.SubmitFailures) == 0
}

// Miner ties a collector to a submitter.
type Miner struct {
	collector Collector
	submitter Submitter
	now       func() time.Time
	logger    logger.Logger
}

// New creates a Miner.
func New(collector Collector, submitter Submitter, opts ...Option) *Miner {
	m := &Miner{
		collector: collector,
		submitter: submitter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.Get().Named("miner")
	}
	return m
}

// RunOnce performs one pass over channels in order, fetching at most
// perChannelLimit items from each.
func (m *Miner) RunOnce(ctx context.Context, channels []string, perChannelLimit int) Report {
	start := m.now()
	var r Report

	for _, channel := range channels {
		r.Channels++
		m.runChannel(ctx, channel, perChannelLimit, &r)
	}

	r.Duration = m.now().Sub(start)
	metrics.RecordPass(r.Duration.Seconds(), m.now().Unix())
	m.logger.Info(ctx, "mining pass finished",
		logger.Int("channels", r.Channels),
		logger.Int("fetched", r.Fetched),
		logger.Int("stored", r.Stored),
		logger.Int("fetchFailures", len(r.FetchFailures)),
		logger.Int("submitFailures", len(r.SubmitFailures)),
		logger.Duration("took", r.Duration),
	)
	return r
}

func (m *Miner) runChannel(ctx context.Context, channel string, limit int, r *Report) {
	items, err := m.collector.FetchNew(ctx, channel, limit)
	if err != nil {
		err = errkind.Wrap("miner.fetch "+channel, ErrFetch, err)
		r.FetchFailures = append(r.FetchFailures, err)
		m.logger.Warn(ctx, "channel fetch failed",
			logger.String("channel", channel),
			logger.Error(err),
		)
		return
	}
	r.Fetched += len(items)

	defaults := normalize.Defaults{
		Source:   m.collector.Source(),
		Category: channel,
		Now:      m.now,
	}
	for _, raw := range items {
		e := normalize.Normalize(raw, defaults)
		if _, err := m.submitter.Submit(ctx, e.Raw()); err != nil {
			err = errkind.Wrap("miner.submit "+channel, ErrSubmit, err)
			r.SubmitFailures = append(r.SubmitFailures, err)
			metrics.RecordSubmitError()
			m.logger.Warn(ctx, "store failed",
				logger.String("channel", channel),
				logger.String("id", e.ID),
				logger.Error(err),
			)
			continue
		}
		r.Stored++
		m.logger.Info(ctx, "stored",
			logger.String("category", e.Category),
			logger.String("headline", e.Headline),
		)
	}
}

// Pass binds a channel list and limit so the miner can be driven by a
// scheduler.
type Pass struct {
	miner    *Miner
	channels []string
	limit    int
}

// Bind returns a Pass that runs RunOnce(ctx, channels, limit).
func (m *Miner) Bind(channels []string, limit int) *Pass {
	return &Pass{miner: m, channels: append([]string(nil), channels...), limit: limit}
}

// RunPass runs one pass and returns its report.
func (p *Pass) RunPass(ctx context.Context) Report {
	return p.miner.RunOnce(ctx, p.channels, p.limit)
}
