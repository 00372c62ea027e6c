// Package memory implements the gateway's memory lifecycle: a
// short-lived working buffer, a hybrid ranker over the long-term
// store, periodic consolidation and decay sweeps, and async access
// tracking (spec §4.5).
package memory

import (
	"sync"
	"time"

	"mimogate/internal/gwtypes"
	"mimogate/internal/logging"

	"github.com/google/uuid"
)

// WorkingBuffer holds recently-stored items in memory for TTL duration
// before they are eligible for consolidation into the long-term store
// (spec §4.5.1). It is intentionally not durable: a process restart
// drops anything still in the buffer.
type WorkingBuffer struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]gwtypes.WorkingItem
}

// NewWorkingBuffer creates a buffer with the given TTL.
func NewWorkingBuffer(ttl time.Duration) *WorkingBuffer {
	return &WorkingBuffer{ttl: ttl, items: make(map[string]gwtypes.WorkingItem)}
}

// Insert adds content to the working buffer and returns its id.
func (b *WorkingBuffer) Insert(content string, category gwtypes.Category, importance float64) gwtypes.WorkingItem {
	item := gwtypes.WorkingItem{
		ID:         uuid.NewString(),
		Content:    content,
		Category:   category,
		Importance: importance,
		InsertedAt: time.Now(),
	}
	b.mu.Lock()
	b.items[item.ID] = item
	b.mu.Unlock()
	logging.Get(logging.CategoryMemory).Debug("working buffer: inserted %s (category=%s)", item.ID, category)
	return item
}

// Expired returns every item whose TTL has elapsed, removing them from
// the buffer atomically so a concurrent consolidation pass never
// double-promotes an item (spec §4.5.2's "exactly once" requirement).
func (b *WorkingBuffer) Expired(now time.Time) []gwtypes.WorkingItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []gwtypes.WorkingItem
	for id, item := range b.items {
		if now.Sub(item.InsertedAt) >= b.ttl {
			out = append(out, item)
			delete(b.items, id)
		}
	}
	return out
}

// Len returns the number of items currently buffered.
func (b *WorkingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// All returns a snapshot of every item currently buffered, expired or
// not, so the /ask router can search "in-flight" memory too.
func (b *WorkingBuffer) All() []gwtypes.WorkingItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]gwtypes.WorkingItem, 0, len(b.items))
	for _, item := range b.items {
		out = append(out, item)
	}
	return out
}
