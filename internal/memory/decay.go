package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"mimogate/internal/gwtypes"
	"mimogate/internal/logging"
	"mimogate/internal/store"
)

// decayHalfLifeA/B parameterise half_life(importance) = A * exp(B * importance),
// fitted to the spec's two fixed points: half-life ≈693 active days at
// importance 1.0, ≈3.5 active days at importance 0.3 (spec §4.5.6).
const (
	decayHalfLifeA = 0.3629
	decayHalfLifeB = 7.554
)

// DefaultPruneThreshold is the decay score below which an unprotected
// memory is eligible for deletion.
const DefaultPruneThreshold = 0.05

// DefaultHardCap is the total-memory count that triggers additional
// lowest-score pruning regardless of decay score.
const DefaultHardCap = 100_000

// Decayer runs the periodic forgetting pass (spec §4.5.6).
type Decayer struct {
	store          *store.EngramStore
	interval       time.Duration
	pruneThreshold float64
	hardCap        int

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewDecayer wires a decayer against its store.
func NewDecayer(es *store.EngramStore, interval time.Duration) *Decayer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Decayer{store: es, interval: interval, pruneThreshold: DefaultPruneThreshold, hardCap: DefaultHardCap}
}

// Start launches the background sweep goroutine.
func (d *Decayer) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(ctx, d.stop, d.done)
}

// Stop halts the sweep goroutine and waits for it to exit.
func (d *Decayer) Stop() {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (d *Decayer) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Sweep(ctx); err != nil {
				logging.Get(logging.CategoryMemory).Warn("decay sweep failed: %v", err)
			}
		}
	}
}

// decayLambda returns λ for an importance value per the fitted
// half-life curve.
func decayLambda(importance float64) float64 {
	halfLife := decayHalfLifeA * math.Exp(decayHalfLifeB*importance)
	if halfLife <= 0 {
		halfLife = 1
	}
	return math.Ln2 / halfLife
}

// Score computes the decay score for a single engram at time now.
func Score(e gwtypes.Engram, now time.Time) float64 {
	activeAge := activeDaysSince(e.LastAccessedAt, now)
	lambda := decayLambda(e.Importance)
	return e.Importance * math.Exp(-lambda*activeAge) * (1 + math.Log(1+float64(e.AccessCount))*0.1)
}

// Sweep deletes every unprotected memory whose decay score falls below
// the prune threshold, then enforces the hard cap by deleting the
// lowest-importance oldest rows if still over it. Returns the number
// of engrams deleted.
func (d *Decayer) Sweep(ctx context.Context) (int, error) {
	all, err := d.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	deleted := 0
	var survivors []gwtypes.Engram
	for _, e := range all {
		if e.Protected {
			survivors = append(survivors, e)
			continue
		}
		if Score(e, now) < d.pruneThreshold {
			if err := d.store.Delete(ctx, e.ID); err != nil {
				logging.Get(logging.CategoryMemory).Warn("decay: failed to delete %s: %v", e.ID, err)
				survivors = append(survivors, e)
				continue
			}
			deleted++
			continue
		}
		survivors = append(survivors, e)
	}

	if len(survivors) > d.hardCap {
		sort.Slice(survivors, func(i, j int) bool {
			if survivors[i].Importance != survivors[j].Importance {
				return survivors[i].Importance < survivors[j].Importance
			}
			return survivors[i].CreatedAt.Before(survivors[j].CreatedAt)
		})
		excess := len(survivors) - d.hardCap
		for i := 0; i < excess; i++ {
			if survivors[i].Protected {
				continue
			}
			if err := d.store.Delete(ctx, survivors[i].ID); err == nil {
				deleted++
			}
		}
	}

	logging.Get(logging.CategoryMemory).Info("decay sweep deleted %d memories (scanned %d)", deleted, len(all))
	return deleted, nil
}
