// Package repository provides durable, idempotent storage for events.
package repository

import (
	"context"

	"github.com/okian/see1right/internal/domain/model"
)

// Store provides read/write access to persisted events.
type Store interface {
	// Init creates the schema if it does not exist. It never drops data and
	// is safe to call on every start.
	Init(ctx context.Context) error

	// InsertIfAbsent persists e unless an event with the same id exists.
	// A duplicate is not an error; inserted reports which case applied.
	// Uniqueness is enforced by the engine's primary key, so concurrent
	// inserts of one id leave exactly one row.
	InsertIfAbsent(ctx context.Context, e model.Event) (inserted bool, err error)

	// ListRecent returns up to limit events, newest created_at first; ties
	// go to the most recently inserted event.
	ListRecent(ctx context.Context, limit int) ([]model.Event, error)

	// Count returns the number of stored events.
	Count(ctx context.Context) (int, error)

	Close() error
}
