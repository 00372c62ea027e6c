package memory

import (
	"context"
	"sync"
	"time"

	"mimogate/internal/logging"
	"mimogate/internal/store"
)

const (
	accessQueueCapacity = 4096
	accessBatchSize     = 128
	accessFlushInterval = 2 * time.Second
)

// AccessTracker asynchronously records search/read hits so hot-path
// dispatch never blocks on a write (spec §4.5.8). OnHit enqueues; a
// single background drainer batches writes to the store.
type AccessTracker struct {
	store *store.EngramStore
	queue chan string

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewAccessTracker wires a tracker against its store.
func NewAccessTracker(es *store.EngramStore) *AccessTracker {
	return &AccessTracker{store: es, queue: make(chan string, accessQueueCapacity)}
}

// Start launches the background drain goroutine.
func (t *AccessTracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(ctx, t.stop, t.done)
}

// Stop halts the drain goroutine and waits for it to exit.
func (t *AccessTracker) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// OnHit enqueues an access update for id. If the queue is full the
// update is dropped rather than blocking the caller - access tracking
// is a best-effort ranking signal, not a durability guarantee.
func (t *AccessTracker) OnHit(id string) {
	select {
	case t.queue <- id:
	default:
		logging.Get(logging.CategoryMemory).Warn("access tracker queue full, dropping update for %s", id)
	}
}

func (t *AccessTracker) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(accessFlushInterval)
	defer ticker.Stop()

	batch := make([]string, 0, accessBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		now := time.Now()
		for _, id := range batch {
			if err := t.store.TouchAccess(ctx, id, now); err != nil {
				logging.Get(logging.CategoryMemory).Warn("access tracker: touch %s failed: %v", id, err)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-stop:
			flush()
			return
		case <-ctx.Done():
			flush()
			return
		case id := <-t.queue:
			batch = append(batch, id)
			if len(batch) >= accessBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
