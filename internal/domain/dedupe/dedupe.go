// Package dedupe remembers event ids known to be persisted.
//
// The cache is an optimization only: it lets the write path skip a store
// round trip for ids it has already stored. It never decides that an id is
// new; the store's primary key does that.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// Known tracks ids that are already stored.
type Known interface {
	// Known reports whether id was recorded.
	Known(ctx context.Context, id string) bool

	// Record marks id as stored. Call it only after the store confirmed the
	// id exists (inserted or already present).
	Record(ctx context.Context, id string)

	Size() int
}

// inMemoryKnown is a bounded set with oldest-first eviction.
type inMemoryKnown struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // front is the most recently recorded id
	maxSize int
}

// NewInMemory creates a known-id cache. A max size of zero or less keeps
// every id.
func NewInMemory(opts ...Option) Known {
	d := &inMemoryKnown{
		maxSize: 10_000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.index = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryKnown) Known(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.index[id]
	return ok
}

func (d *inMemoryKnown) Record(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[id]; ok {
		d.order.MoveToFront(el)
		return
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.index[id] = d.order.PushFront(id)
}

// evictOldest must be called with d.mu held.
func (d *inMemoryKnown) evictOldest() {
	el := d.order.Back()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.index, el.Value.(string))
}

func (d *inMemoryKnown) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
