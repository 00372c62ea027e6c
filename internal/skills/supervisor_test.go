package skills

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimogate/internal/gwtypes"
)

func TestValidateCommand(t *testing.T) {
	t.Run("empty command rejected", func(t *testing.T) {
		assert.Error(t, validateCommand(gwtypes.SkillConfig{SkillID: "s"}))
	})

	t.Run("shell metacharacters in command rejected", func(t *testing.T) {
		assert.Error(t, validateCommand(gwtypes.SkillConfig{Command: "cat; rm -rf /"}))
	})

	t.Run("shell metacharacters in args rejected", func(t *testing.T) {
		assert.Error(t, validateCommand(gwtypes.SkillConfig{Command: "cat", Args: []string{"$(whoami)"}}))
	})

	t.Run("path traversal in args rejected", func(t *testing.T) {
		assert.Error(t, validateCommand(gwtypes.SkillConfig{Command: "cat", Args: []string{"../../etc/passwd"}}))
	})

	t.Run("plain command and args accepted", func(t *testing.T) {
		assert.NoError(t, validateCommand(gwtypes.SkillConfig{Command: "cat", Args: []string{"-n"}}))
	})
}

func TestRecordTimeout_WindowTrimsOldHits(t *testing.T) {
	p := &process{}
	p.timeoutHits = []time.Time{time.Now().Add(-time.Hour)}
	p.recordTimeout()
	assert.Len(t, p.timeoutHits, 1, "a hit outside the burst window is trimmed before the new one is added")
}

func TestTimeoutBurstExceeded(t *testing.T) {
	p := &process{}
	for i := 0; i < defaultTimeoutBurst-1; i++ {
		p.recordTimeout()
	}
	assert.False(t, p.timeoutBurstExceeded())
	p.recordTimeout()
	assert.True(t, p.timeoutBurstExceeded())
}

func TestIsAlive(t *testing.T) {
	s := New(nil)
	assert.False(t, s.IsAlive("not a process"))
	assert.False(t, s.IsAlive(nil))

	p := &process{alive: true}
	assert.True(t, s.IsAlive(p))
	p.alive = false
	assert.False(t, s.IsAlive(p))
}

type fakeNotifier struct{ died []string }

func (f *fakeNotifier) OnOwnerDied(skillID string) { f.died = append(f.died, skillID) }

func TestEnsureStarted_CallShutdown(t *testing.T) {
	notifier := &fakeNotifier{}
	s := New(notifier)

	cfg := gwtypes.SkillConfig{SkillID: "echo_skill", Command: "cat"}
	ref, err := s.EnsureStarted(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, ref)

	assert.Equal(t, 1, s.ActiveSkillCount())
	assert.Equal(t, 0, s.FailedSkillCount())

	ref2, err := s.EnsureStarted(context.Background(), cfg)
	require.NoError(t, err)
	assert.Same(t, ref, ref2, "a live skill must not be respawned")

	_, err = s.Call(context.Background(), ref, "tools/call", map[string]any{"name": "noop"}, time.Now().Add(2*time.Second))
	require.NoError(t, err, "cat echoes the request back, satisfying the pending call by id")

	require.NoError(t, s.Shutdown("echo_skill", 0))

	deadline := time.Now().Add(2 * time.Second)
	for s.ActiveSkillCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, s.ActiveSkillCount())
	assert.Contains(t, notifier.died, "echo_skill")
}

func TestCall_InvalidProcRef(t *testing.T) {
	s := New(nil)
	_, err := s.Call(context.Background(), "not a process", "m", nil, time.Now().Add(time.Second))
	assert.Error(t, err)
}

func TestEnsureStarted_RejectsUnsafeCommand(t *testing.T) {
	s := New(nil)
	_, err := s.EnsureStarted(context.Background(), gwtypes.SkillConfig{SkillID: "bad", Command: "cat; echo pwned"})
	assert.Error(t, err)
}
