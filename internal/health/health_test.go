package health

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimogate/internal/gwtypes"
	"mimogate/internal/store"
)

func newTestStore(t *testing.T) *store.EngramStore {
	t.Helper()
	es, err := store.NewEngramStore(filepath.Join(t.TempDir(), "engrams.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestPercentile(t *testing.T) {
	samples := []time.Duration{10 * time.Millisecond, 50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, percentile(samples, 0.5))
	assert.Equal(t, 200*time.Millisecond, percentile(samples, 1.0))
	assert.Equal(t, 10*time.Millisecond, percentile(samples, 0))
}

func TestMemoryDrop(t *testing.T) {
	t.Run("no drop when count grows", func(t *testing.T) {
		drop, _ := memoryDrop(Snapshot{MemoryCount: 100}, Snapshot{MemoryCount: 120})
		assert.False(t, drop)
	})

	t.Run("below threshold is not flagged", func(t *testing.T) {
		drop, _ := memoryDrop(Snapshot{MemoryCount: 100}, Snapshot{MemoryCount: 90})
		assert.False(t, drop)
	})

	t.Run("at or above warn threshold is flagged", func(t *testing.T) {
		drop, pct := memoryDrop(Snapshot{MemoryCount: 100}, Snapshot{MemoryCount: 79})
		assert.True(t, drop)
		assert.InDelta(t, 0.21, pct, 1e-9)
	})

	t.Run("zero previous count never divides by zero", func(t *testing.T) {
		drop, pct := memoryDrop(Snapshot{MemoryCount: 0}, Snapshot{MemoryCount: 5})
		assert.False(t, drop)
		assert.Equal(t, 0.0, pct)
	})
}

type fakeLatencySource struct {
	samples map[string][]time.Duration
}

func (f *fakeLatencySource) Tools() []string {
	out := make([]string, 0, len(f.samples))
	for k := range f.samples {
		out = append(out, k)
	}
	return out
}

func (f *fakeLatencySource) LatencySamples(tool string) []time.Duration { return f.samples[tool] }

type fakeSkillSource struct{ active, failed int }

func (f *fakeSkillSource) ActiveSkillCount() int { return f.active }
func (f *fakeSkillSource) FailedSkillCount() int { return f.failed }

func TestTakeSnapshot(t *testing.T) {
	es := newTestStore(t)
	require.NoError(t, es.Put(context.Background(), gwtypes.Engram{ID: "e1", Content: "x", CreatedAt: time.Now(), LastAccessedAt: time.Now()}))

	lat := &fakeLatencySource{samples: map[string][]time.Duration{"memory": {10 * time.Millisecond, 20 * time.Millisecond}}}
	sk := &fakeSkillSource{active: 2, failed: 1}

	m := New(es, lat, sk, nil, time.Hour)
	snap := m.takeSnapshot(context.Background())

	assert.Equal(t, 1, snap.MemoryCount)
	assert.Equal(t, 10*time.Millisecond, snap.ToolLatencyP50["memory"])
	assert.Equal(t, 2, snap.ActiveSkills)
	assert.Equal(t, 1, snap.FailedSkills)
}

func TestTick_RunsActionOnDrop(t *testing.T) {
	m := New(nil, nil, nil, nil, time.Hour)

	ran := make(chan struct{}, 1)
	m.RegisterAction(Action{
		Name:     "reindex",
		Cooldown: time.Hour,
		Run: func(ctx context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})

	m.mu.Lock()
	m.history = []Snapshot{{MemoryCount: 100}}
	m.mu.Unlock()
	m.es = newTestStore(t) // an empty store: Count() == 0 triggers a drop from 100

	m.tick(context.Background())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("expected healing action to run on detected drop")
	}
}

func TestHandleDrop_ActionRespectsCooldown(t *testing.T) {
	m := New(nil, nil, nil, nil, time.Hour)

	runs := 0
	m.RegisterAction(Action{
		Name:     "reindex",
		Cooldown: time.Hour,
		Run: func(ctx context.Context) error {
			runs++
			return nil
		},
	})

	m.handleDrop(context.Background(), "memory_count", 0.5)
	m.handleDrop(context.Background(), "memory_count", 0.9)

	assert.Equal(t, 1, runs, "a second drop within the cooldown window must not re-run the action")
}

func TestLatest(t *testing.T) {
	m := New(nil, nil, nil, nil, time.Hour)
	_, ok := m.Latest()
	assert.False(t, ok)

	m.mu.Lock()
	m.history = append(m.history, Snapshot{MemoryCount: 5})
	m.mu.Unlock()

	snap, ok := m.Latest()
	require.True(t, ok)
	assert.Equal(t, 5, snap.MemoryCount)
}

func TestStartStop(t *testing.T) {
	m := New(newTestStore(t), nil, nil, nil, 10*time.Millisecond)
	m.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	_, ok := m.Latest()
	assert.True(t, ok, "at least one tick should have run in 30ms at a 10ms interval")
}
