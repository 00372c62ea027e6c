package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimogate/internal/gwtypes"
)

type fakeLiveness struct {
	alive map[any]bool
}

func (f *fakeLiveness) IsAlive(procRef any) bool {
	return f.alive[procRef]
}

func TestRegisterInternal(t *testing.T) {
	r := New(nil)
	handler := func(ctx Context, args map[string]any) (any, error) { return "ok", nil }

	require.NoError(t, r.RegisterInternal("memory", gwtypes.ToolSchema{}, handler))

	err := r.RegisterInternal("memory", gwtypes.ToolSchema{}, handler)
	assert.Error(t, err, "duplicate registration must be rejected")

	l := r.Lookup("memory")
	assert.True(t, l.Found)
	assert.Equal(t, gwtypes.OwnerInternal, l.Owner)
	assert.NotNil(t, l.Handler)

	assert.False(t, r.Lookup("nope").Found)
}

func TestRegisterSkillTools_LazyThenRunning(t *testing.T) {
	r := New(nil)
	descs := []gwtypes.ToolDescriptor{{Name: "skill_a_op"}}
	cfg := gwtypes.SkillConfig{SkillID: "skill_a", Command: "./skill_a"}

	require.NoError(t, r.RegisterSkillTools("skill_a", descs, cfg, nil))
	l := r.Lookup("skill_a_op")
	require.True(t, l.Found)
	assert.Equal(t, gwtypes.OwnerSkillLazy, l.Owner)

	proc := new(int)
	r.MarkSkillRunning("skill_a", proc)
	l = r.Lookup("skill_a_op")
	require.True(t, l.Found)
	assert.Equal(t, gwtypes.OwnerSkillRunning, l.Owner)
	assert.Equal(t, proc, l.ProcRef)
}

func TestRegisterSkillTools_ConflictAcrossSkills(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterSkillTools("skill_a", []gwtypes.ToolDescriptor{{Name: "shared_op"}}, gwtypes.SkillConfig{}, nil))

	err := r.RegisterSkillTools("skill_b", []gwtypes.ToolDescriptor{{Name: "shared_op"}}, gwtypes.SkillConfig{}, nil)
	assert.Error(t, err)
}

func TestLookup_DeadRunningSkillDowngradesToLazy(t *testing.T) {
	proc := new(int)
	liveness := &fakeLiveness{alive: map[any]bool{proc: false}}
	r := New(liveness)

	cfg := gwtypes.SkillConfig{SkillID: "skill_a", Command: "./skill_a"}
	require.NoError(t, r.RegisterSkillTools("skill_a", []gwtypes.ToolDescriptor{{Name: "skill_a_op"}}, cfg, proc))
	r.MarkSkillRunning("skill_a", proc)

	l := r.Lookup("skill_a_op")
	require.True(t, l.Found)
	assert.Equal(t, gwtypes.OwnerSkillLazy, l.Owner, "a dead process reference should downgrade rather than be trusted")
}

func TestLookup_DeadRunningSkillWithNoCommandIsRemoved(t *testing.T) {
	proc := new(int)
	liveness := &fakeLiveness{alive: map[any]bool{proc: false}}
	r := New(liveness)

	cfg := gwtypes.SkillConfig{SkillID: "skill_a"} // no Command: ephemeral registration
	require.NoError(t, r.RegisterSkillTools("skill_a", []gwtypes.ToolDescriptor{{Name: "skill_a_op"}}, cfg, proc))
	r.MarkSkillRunning("skill_a", proc)

	l := r.Lookup("skill_a_op")
	assert.False(t, l.Found)
}

func TestUnregisterSkill(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterSkillTools("skill_a", []gwtypes.ToolDescriptor{{Name: "op1"}, {Name: "op2"}}, gwtypes.SkillConfig{}, nil))
	r.UnregisterSkill("skill_a")
	assert.False(t, r.Lookup("op1").Found)
	assert.False(t, r.Lookup("op2").Found)
}

func TestOnOwnerDied(t *testing.T) {
	t.Run("with command, downgrades to lazy", func(t *testing.T) {
		r := New(nil)
		cfg := gwtypes.SkillConfig{SkillID: "skill_a", Command: "./skill_a"}
		require.NoError(t, r.RegisterSkillTools("skill_a", []gwtypes.ToolDescriptor{{Name: "op1"}}, cfg, new(int)))
		r.OnOwnerDied("skill_a")
		l := r.Lookup("op1")
		require.True(t, l.Found)
		assert.Equal(t, gwtypes.OwnerSkillLazy, l.Owner)
	})

	t.Run("without command, removed", func(t *testing.T) {
		r := New(nil)
		require.NoError(t, r.RegisterSkillTools("skill_a", []gwtypes.ToolDescriptor{{Name: "op1"}}, gwtypes.SkillConfig{SkillID: "skill_a"}, new(int)))
		r.OnOwnerDied("skill_a")
		assert.False(t, r.Lookup("op1").Found)
	})
}

func TestListAll_SortedByName(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterInternal("zeta", gwtypes.ToolSchema{}, nil))
	require.NoError(t, r.RegisterInternal("alpha", gwtypes.ToolSchema{}, nil))

	all := r.ListAll()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "zeta", all[1].Name)
}

func TestReloadSkills_KeepsInternalAndListedSkills(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.RegisterInternal("memory", gwtypes.ToolSchema{}, nil))
	require.NoError(t, r.RegisterSkillTools("skill_a", []gwtypes.ToolDescriptor{{Name: "op_a"}}, gwtypes.SkillConfig{SkillID: "skill_a"}, nil))
	require.NoError(t, r.RegisterSkillTools("skill_b", []gwtypes.ToolDescriptor{{Name: "op_b"}}, gwtypes.SkillConfig{SkillID: "skill_b"}, nil))

	r.ReloadSkills(map[string]bool{"skill_a": true})

	assert.True(t, r.Lookup("memory").Found, "internal tools are never touched by a skill reload")
	assert.True(t, r.Lookup("op_a").Found)
	assert.False(t, r.Lookup("op_b").Found)
}
