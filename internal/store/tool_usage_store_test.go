package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestToolUsageStore(t *testing.T) *ToolUsageStore {
	t.Helper()
	s, err := NewToolUsageStore(filepath.Join(t.TempDir(), "tool_usage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestToolUsageStore_RecordAndRecentByTool(t *testing.T) {
	s := newTestToolUsageStore(t)

	require.NoError(t, s.Record(ToolInvocation{
		CallID: "c1", SessionTag: "sess", ToolName: "memory", Owner: "agent",
		Args: `{"op":"store"}`, Result: "ok", Success: true, DurationMs: 5, ResultSize: 2,
	}))
	require.NoError(t, s.Record(ToolInvocation{
		CallID: "c2", SessionTag: "sess", ToolName: "knowledge", Owner: "agent",
		Result: "fail", Error: "boom", Success: false, DurationMs: 1,
	}))

	recent, err := s.RecentByTool("memory", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "c1", recent[0].CallID)
	assert.True(t, recent[0].Success)

	all, err := s.RecentByTool("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestToolUsageStore_RecordUpsertsOnDuplicateCallID(t *testing.T) {
	s := newTestToolUsageStore(t)
	require.NoError(t, s.Record(ToolInvocation{CallID: "c1", ToolName: "memory", Result: "first", Success: true}))
	require.NoError(t, s.Record(ToolInvocation{CallID: "c1", ToolName: "memory", Result: "second", Success: true}))

	recent, err := s.RecentByTool("memory", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "second", recent[0].Result)
}

func TestToolUsageStore_IncrementReference(t *testing.T) {
	s := newTestToolUsageStore(t)
	require.NoError(t, s.Record(ToolInvocation{CallID: "c1", ToolName: "memory", Result: "ok", Success: true}))
	require.NoError(t, s.IncrementReference("c1"))
	require.NoError(t, s.IncrementReference("c1"))

	recent, err := s.RecentByTool("memory", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 2, recent[0].ReferenceCount)
}

func TestToolUsageStore_Stats(t *testing.T) {
	s := newTestToolUsageStore(t)
	require.NoError(t, s.Record(ToolInvocation{CallID: "c1", ToolName: "memory", Result: "ok", Success: true, ResultSize: 10}))
	require.NoError(t, s.Record(ToolInvocation{CallID: "c2", ToolName: "memory", Result: "ok", Success: true, ResultSize: 5}))
	require.NoError(t, s.Record(ToolInvocation{CallID: "c3", ToolName: "knowledge", Result: "fail", Success: false, ResultSize: 1}))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCalls)
	assert.Equal(t, 2, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.EqualValues(t, 16, stats.TotalSizeBytes)
	assert.Equal(t, 2, stats.ByTool["memory"])
	assert.Equal(t, 1, stats.ByTool["knowledge"])
}
