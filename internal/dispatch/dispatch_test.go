package dispatch

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimogate/internal/gwerrors"
	"mimogate/internal/gwtypes"
	"mimogate/internal/registry"
	"mimogate/internal/store"
)

func TestResolveAlias(t *testing.T) {
	t.Run("known alias rewrites tool and injects operation", func(t *testing.T) {
		tool, args := resolveAlias("remember", map[string]any{"content": "x"})
		assert.Equal(t, "memory", tool)
		assert.Equal(t, "store", args["operation"])
		assert.Equal(t, "x", args["content"])
	})

	t.Run("unknown tool passes through unchanged", func(t *testing.T) {
		orig := map[string]any{"a": 1}
		tool, args := resolveAlias("memory", orig)
		assert.Equal(t, "memory", tool)
		assert.Equal(t, orig, args)
	})

	t.Run("never mutates the caller's map", func(t *testing.T) {
		orig := map[string]any{"content": "x"}
		_, args := resolveAlias("remember", orig)
		assert.NotContains(t, orig, "operation")
		assert.Contains(t, args, "operation")
	})
}

func TestValidateArgs(t *testing.T) {
	t.Run("rejects shell metacharacters", func(t *testing.T) {
		err := validateArgs(map[string]any{"cmd": "ls; rm -rf /"}, false)
		assert.Error(t, err)
	})

	t.Run("rejects path traversal", func(t *testing.T) {
		err := validateArgs(map[string]any{"path": "../../etc/passwd"}, false)
		assert.Error(t, err)
	})

	t.Run("rejects absolute paths when sandboxed", func(t *testing.T) {
		err := validateArgs(map[string]any{"path": "/etc/passwd"}, true)
		assert.Error(t, err)
	})

	t.Run("allows absolute paths when not sandboxed", func(t *testing.T) {
		err := validateArgs(map[string]any{"path": "/etc/passwd"}, false)
		assert.NoError(t, err)
	})

	t.Run("allows ordinary args", func(t *testing.T) {
		err := validateArgs(map[string]any{"query": "hello world", "n": 5}, true)
		assert.NoError(t, err)
	})
}

func TestSandboxForbids(t *testing.T) {
	cases := []struct {
		name      string
		tool      string
		args      map[string]any
		forbidden bool
	}{
		{"terminal always forbidden", "terminal", nil, true},
		{"memory store forbidden", "memory", map[string]any{"operation": "store"}, true},
		{"memory delete forbidden", "memory", map[string]any{"operation": "delete"}, true},
		{"memory search allowed", "memory", map[string]any{"operation": "search"}, false},
		{"knowledge teach forbidden", "knowledge", map[string]any{"operation": "teach"}, true},
		{"knowledge query allowed", "knowledge", map[string]any{"operation": "query"}, false},
		{"file write forbidden", "file", map[string]any{"operation": "write_file"}, true},
		{"file read allowed", "file", map[string]any{"operation": "read_file"}, false},
		{"unrelated tool allowed", "web", map[string]any{"operation": "fetch"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, forbidden := sandboxForbids(tc.tool, tc.args)
			assert.Equal(t, tc.forbidden, forbidden)
		})
	}
}

func TestOwnerLabel(t *testing.T) {
	assert.Equal(t, "skill_x", ownerLabel(registry.Lookup{SkillID: "skill_x", Owner: gwtypes.OwnerSkillRunning}))
	assert.Equal(t, string(gwtypes.OwnerInternal), ownerLabel(registry.Lookup{Owner: gwtypes.OwnerInternal}))
}

func newTestDispatcher(t *testing.T, reg *registry.Registry) *Dispatcher {
	t.Helper()
	d := New(reg, nil, nil, nil, nil, false)

	tu, err := store.NewToolUsageStore(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tu.Close() })
	d.SetToolUsageStore(tu)

	tel, err := store.NewTelemetryStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Close() })
	d.SetTelemetryStore(tel)

	return d
}

func TestCall_UnknownTool(t *testing.T) {
	reg := registry.New(nil)
	d := newTestDispatcher(t, reg)

	_, err := d.Call(registry.Context{}, "no_such_tool", nil, time.Now().Add(time.Second))
	require.Error(t, err)
	var de *gwerrors.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, gwerrors.KindUnknownTool, de.Kind)
}

func TestCall_InternalHandlerSuccess(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterInternal("echo", gwtypes.ToolSchema{}, func(ctx registry.Context, args map[string]any) (any, error) {
		return args["msg"], nil
	}))
	d := newTestDispatcher(t, reg)

	res, err := d.Call(registry.Context{SessionTag: "s1"}, "echo", map[string]any{"msg": "hi"}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Value)
}

func TestCall_InternalHandlerError(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterInternal("boom", gwtypes.ToolSchema{}, func(ctx registry.Context, args map[string]any) (any, error) {
		return nil, gwerrors.New(gwerrors.KindInternal, "boom")
	}))
	d := newTestDispatcher(t, reg)

	_, err := d.Call(registry.Context{}, "boom", nil, time.Now().Add(time.Second))
	assert.Error(t, err)
}

func TestCall_SandboxedRejectsForbiddenOperation(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterInternal("memory", gwtypes.ToolSchema{}, func(ctx registry.Context, args map[string]any) (any, error) {
		return "stored", nil
	}))
	d := newTestDispatcher(t, reg)

	_, err := d.Call(registry.Context{Sandboxed: true}, "memory", map[string]any{"operation": "store"}, time.Now().Add(time.Second))
	require.Error(t, err)
	var de *gwerrors.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, gwerrors.KindToolDisabledInSandbox, de.Kind)
}

func TestCall_AliasResolution(t *testing.T) {
	reg := registry.New(nil)
	var gotOp string
	require.NoError(t, reg.RegisterInternal("memory", gwtypes.ToolSchema{}, func(ctx registry.Context, args map[string]any) (any, error) {
		gotOp, _ = args["operation"].(string)
		return nil, nil
	}))
	d := newTestDispatcher(t, reg)

	_, err := d.Call(registry.Context{}, "recall", map[string]any{"query": "x"}, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "search", gotOp)
}

func TestCall_InvalidArgsRejectedBeforeLookup(t *testing.T) {
	reg := registry.New(nil)
	d := newTestDispatcher(t, reg)

	_, err := d.Call(registry.Context{}, "no_such_tool", map[string]any{"cmd": "a; b"}, time.Now().Add(time.Second))
	require.Error(t, err)
	var de *gwerrors.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, gwerrors.KindInvalidArguments, de.Kind)
}

func TestCall_NoSkillSupervisorConfigured(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterSkillTools("skill_a", []gwtypes.ToolDescriptor{{Name: "skill_op"}}, gwtypes.SkillConfig{SkillID: "skill_a"}, nil))
	d := newTestDispatcher(t, reg)

	_, err := d.Call(registry.Context{}, "skill_op", nil, time.Now().Add(time.Second))
	require.Error(t, err)
	var de *gwerrors.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, gwerrors.KindSkillUnavailable, de.Kind)
}

func TestTryKnowledgeInjection_NoQueryReturnsNil(t *testing.T) {
	d := New(registry.New(nil), nil, nil, nil, nil, false)
	got := d.tryKnowledgeInjection("s1", map[string]any{})
	assert.Nil(t, got)
}

func TestTryKnowledgeInjection_NoEmbedderSkipped(t *testing.T) {
	d := New(registry.New(nil), nil, nil, nil, nil, false)
	assert.Nil(t, d.embedder)
}
