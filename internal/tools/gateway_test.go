package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimogate/internal/gwtypes"
	"mimogate/internal/health"
	"mimogate/internal/knowledge"
	"mimogate/internal/patterns"
	"mimogate/internal/reason"
	"mimogate/internal/registry"
	"mimogate/internal/router"
	"mimogate/internal/store"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32(len(text)%7) + float32(i)
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }
func (f *fakeEmbedder) Name() string    { return "fake" }

func callTool(t *testing.T, reg *registry.Registry, name string, args map[string]any) (any, error) {
	t.Helper()
	lookup := reg.Lookup(name)
	require.True(t, lookup.Found, "tool %s must be registered", name)
	return lookup.Handler(registry.Context{SessionTag: "s1"}, args)
}

func newTestEngramStore(t *testing.T) *store.EngramStore {
	t.Helper()
	es, err := store.NewEngramStore(filepath.Join(t.TempDir(), "engrams.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestRegisterMemoryTools_StoreSearchDelete(t *testing.T) {
	reg := registry.New(nil)
	es := newTestEngramStore(t)
	embedder := &fakeEmbedder{dim: 4}
	require.NoError(t, RegisterMemoryTools(reg, es, embedder, nil))

	stored, err := callTool(t, reg, "memory", map[string]any{"operation": "store", "content": "remember this"})
	require.NoError(t, err)
	id := stored.(map[string]any)["id"].(string)
	assert.NotEmpty(t, id)

	got, err := es.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "remember this", got.Content)

	searched, err := callTool(t, reg, "memory", map[string]any{"operation": "search", "query": "remember this"})
	require.NoError(t, err)
	results := searched.(map[string]any)["results"].([]gwtypes.Scored)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Engram.ID)

	deleted, err := callTool(t, reg, "memory", map[string]any{"operation": "delete", "id": id})
	require.NoError(t, err)
	assert.Equal(t, id, deleted.(map[string]any)["deleted"])

	_, err = es.Get(context.Background(), id)
	assert.Error(t, err)
}

func TestRegisterMemoryTools_StoreRequiresContent(t *testing.T) {
	reg := registry.New(nil)
	es := newTestEngramStore(t)
	require.NoError(t, RegisterMemoryTools(reg, es, nil, nil))

	_, err := callTool(t, reg, "memory", map[string]any{"operation": "store"})
	assert.Error(t, err)
}

func TestRegisterMemoryTools_SearchWithNoEmbedderReturnsEmpty(t *testing.T) {
	reg := registry.New(nil)
	es := newTestEngramStore(t)
	require.NoError(t, RegisterMemoryTools(reg, es, nil, nil))

	out, err := callTool(t, reg, "memory", map[string]any{"operation": "search", "query": "anything"})
	require.NoError(t, err)
	assert.Empty(t, out.(map[string]any)["results"])
}

func TestRegisterMemoryTools_DeleteProtectedRejected(t *testing.T) {
	reg := registry.New(nil)
	es := newTestEngramStore(t)
	require.NoError(t, RegisterMemoryTools(reg, es, nil, nil))
	require.NoError(t, es.Put(context.Background(), gwtypes.Engram{ID: "p1", Content: "x", Protected: true}))

	_, err := callTool(t, reg, "memory", map[string]any{"operation": "delete", "id": "p1"})
	assert.Error(t, err)
}

func TestRegisterMemoryTools_StoreWithExplicitSupersedes(t *testing.T) {
	reg := registry.New(nil)
	es := newTestEngramStore(t)
	require.NoError(t, RegisterMemoryTools(reg, es, nil, nil))
	require.NoError(t, es.Put(context.Background(), gwtypes.Engram{ID: "old", Content: "stale"}))

	out, err := callTool(t, reg, "memory", map[string]any{"operation": "store", "content": "fresh", "supersedes": "old"})
	require.NoError(t, err)
	newID := out.(map[string]any)["id"].(string)

	oldE, err := es.Get(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, newID, oldE.SupersededBy)
}

func TestRegisterMemoryTools_UnknownOperation(t *testing.T) {
	reg := registry.New(nil)
	es := newTestEngramStore(t)
	require.NoError(t, RegisterMemoryTools(reg, es, nil, nil))
	_, err := callTool(t, reg, "memory", map[string]any{"operation": "bogus"})
	assert.Error(t, err)
}

func TestRegisterKnowledgeTools_TeachQueryTraverse(t *testing.T) {
	reg := registry.New(nil)
	g, err := knowledge.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	require.NoError(t, RegisterKnowledgeTools(reg, g))

	_, err = callTool(t, reg, "knowledge", map[string]any{
		"operation": "teach", "subject": "go", "predicate": "is_a", "object": "language",
	})
	require.NoError(t, err)

	queried, err := callTool(t, reg, "knowledge", map[string]any{
		"operation": "query", "subject": "go",
	})
	require.NoError(t, err)
	triples := queried.(map[string]any)["triples"].([]gwtypes.Triple)
	require.Len(t, triples, 1)
	assert.Equal(t, "language", triples[0].Object)

	traversed, err := callTool(t, reg, "knowledge", map[string]any{
		"operation": "traverse", "subject": "go",
	})
	require.NoError(t, err)
	assert.Len(t, traversed.(map[string]any)["triples"].([]gwtypes.Triple), 1)
}

func TestRegisterKnowledgeTools_TeachRequiresAllFields(t *testing.T) {
	reg := registry.New(nil)
	g, err := knowledge.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	require.NoError(t, RegisterKnowledgeTools(reg, g))

	_, err = callTool(t, reg, "knowledge", map[string]any{"operation": "teach", "subject": "go"})
	assert.Error(t, err)
}

func TestRegisterCognitiveTools_ReflectImpactPromote(t *testing.T) {
	reg := registry.New(nil)
	p := patterns.New()
	require.NoError(t, RegisterCognitiveTools(reg, p))

	out, err := callTool(t, reg, "cognitive", map[string]any{"operation": "reflect", "signature": "sig-a", "success": true})
	require.NoError(t, err)
	pattern := out.(map[string]any)["pattern"].(gwtypes.Pattern)

	_, err = callTool(t, reg, "cognitive", map[string]any{"operation": "impact", "pattern_id": pattern.PatternID})
	require.NoError(t, err)

	_, err = callTool(t, reg, "cognitive", map[string]any{"operation": "promote", "pattern_id": pattern.PatternID, "callable_as": "x"})
	assert.Error(t, err, "must not be promotable below the usage threshold")
}

func TestRegisterReasonTools_EvalSimpleSnippet(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterReasonTools(reg, reason.NewEvaluator()))

	out, err := callTool(t, reg, "reason", map[string]any{
		"code": `package main
func RunTool(input string) (string, error) { return "got:" + input, nil }`,
		"input": "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "got:hi", out.(map[string]any)["output"])
}

func TestRegisterReasonTools_RequiresCode(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterReasonTools(reg, reason.NewEvaluator()))
	_, err := callTool(t, reg, "reason", map[string]any{})
	assert.Error(t, err)
}

func TestRegisterToolUsageTools_StatsAndRecent(t *testing.T) {
	reg := registry.New(nil)
	tu, err := store.NewToolUsageStore(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tu.Close() })
	require.NoError(t, tu.Record(store.ToolInvocation{CallID: "c1", ToolName: "memory", Result: "ok", Success: true}))
	require.NoError(t, RegisterToolUsageTools(reg, tu))

	stats, err := callTool(t, reg, "tool_usage", map[string]any{"operation": "stats"})
	require.NoError(t, err)
	assert.NotNil(t, stats.(map[string]any)["stats"])

	recent, err := callTool(t, reg, "tool_usage", map[string]any{"operation": "recent", "tool": "memory"})
	require.NoError(t, err)
	invocations := recent.(map[string]any)["invocations"].([]store.ToolInvocation)
	require.Len(t, invocations, 1)
}

func TestRegisterOrchestrationTools_Plan(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterOrchestrationTools(reg, router.New(nil, nil)))

	out, err := callTool(t, reg, "orchestrate", map[string]any{"operation": "plan", "query": "who is Ada Lovelace"})
	require.NoError(t, err)
	decision := out.(map[string]any)["decision"].(gwtypes.RouterDecision)
	assert.Equal(t, "semantic", decision.PrimaryStore)
}

func TestRegisterOrchestrationTools_RequiresQuery(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterOrchestrationTools(reg, router.New(nil, nil)))
	_, err := callTool(t, reg, "orchestrate", map[string]any{"operation": "plan"})
	assert.Error(t, err)
}

func TestRegisterAutonomousTools_StatusBeforeAndAfterSnapshot(t *testing.T) {
	reg := registry.New(nil)
	mon := health.New(nil, nil, nil, nil, 0)
	require.NoError(t, RegisterAutonomousTools(reg, mon))

	out, err := callTool(t, reg, "autonomous", map[string]any{"operation": "status"})
	require.NoError(t, err)
	assert.False(t, out.(map[string]any)["available"].(bool))
}

func TestRegisterUtilityTools(t *testing.T) {
	reg := registry.New(nil)
	require.NoError(t, RegisterUtilityTools(reg))

	out, err := callTool(t, reg, "awakening_status", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "awake", out.(map[string]any)["status"])

	out, err = callTool(t, reg, "onboard", map[string]any{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.(map[string]any)["canonical_tools"])

	out, err = callTool(t, reg, "meta", map[string]any{"operation": "list_tools"})
	require.NoError(t, err)
	assert.NotNil(t, out.(map[string]any)["tools"])

	_, err = callTool(t, reg, "meta", map[string]any{"operation": "bogus"})
	assert.Error(t, err)
}
