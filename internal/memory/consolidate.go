package memory

import (
	"context"
	"sync"
	"time"

	"mimogate/internal/gwtypes"
	"mimogate/internal/llm"
	"mimogate/internal/logging"
	"mimogate/internal/store"

	"github.com/google/uuid"
)

const consolidationBatchSize = 50

// Consolidator periodically promotes sufficiently-important working
// memory items into the long-term store (spec §4.5.5).
type Consolidator struct {
	buffer    *WorkingBuffer
	store     *store.EngramStore
	embedder  llm.Embedder
	threshold float64
	interval  time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewConsolidator wires a consolidator against its buffer and store.
func NewConsolidator(buf *WorkingBuffer, es *store.EngramStore, embedder llm.Embedder, threshold float64, interval time.Duration) *Consolidator {
	if threshold <= 0 {
		threshold = 0.7
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Consolidator{buffer: buf, store: es, embedder: embedder, threshold: threshold, interval: interval}
}

// Start launches the background sweep goroutine. Calling Start twice
// is a no-op.
func (c *Consolidator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(ctx, c.stop, c.done)
}

// Stop halts the sweep goroutine and waits for it to exit.
func (c *Consolidator) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Consolidator) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep scans the working buffer once, promoting qualifying items in
// batches of up to 50 (spec §4.5.5). Each item is written by its own
// store Put, with no transaction around the batch: a failed Put stops
// the rest of that batch, items already written stay stored, nothing
// is rolled back, and later batches still run.
func (c *Consolidator) Sweep(ctx context.Context) (promoted int) {
	candidates := c.buffer.Expired(time.Now())
	var qualifying []gwtypes.WorkingItem
	for _, item := range candidates {
		if item.Importance >= c.threshold {
			qualifying = append(qualifying, item)
		}
	}
	if len(qualifying) == 0 {
		return 0
	}

	for start := 0; start < len(qualifying); start += consolidationBatchSize {
		end := start + consolidationBatchSize
		if end > len(qualifying) {
			end = len(qualifying)
		}
		n, err := c.promoteBatch(ctx, qualifying[start:end])
		if err != nil {
			logging.Get(logging.CategoryMemory).Warn("consolidation batch [%d:%d) failed: %v", start, end, err)
		}
		promoted += n
	}
	logging.Get(logging.CategoryMemory).Info("consolidation swept %d/%d working items", promoted, len(candidates))
	return promoted
}

func (c *Consolidator) promoteBatch(ctx context.Context, items []gwtypes.WorkingItem) (int, error) {
	stored := 0
	for _, item := range items {
		var embedding []float32
		if c.embedder != nil {
			vec, err := c.embedder.Embed(ctx, item.Content)
			if err != nil {
				logging.Get(logging.CategoryMemory).Warn("consolidation embed failed for %s: %v", item.ID, err)
			} else {
				embedding = vec
			}
		}
		e := gwtypes.Engram{
			ID:             uuid.NewString(),
			Content:        item.Content,
			Category:       item.Category,
			Importance:     item.Importance,
			CreatedAt:      item.InsertedAt,
			LastAccessedAt: time.Now(),
			Embedding:      embedding,
			Metadata:       map[string]any{"source": "consolidated", "working_id": item.ID},
		}
		e.Clamp()
		if err := c.store.Put(ctx, e); err != nil {
			return stored, err
		}
		stored++
	}
	return stored, nil
}
