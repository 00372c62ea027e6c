package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimogate/internal/feedback"
	"mimogate/internal/gwtypes"
)

type fakeAnalyzer struct {
	resp string
	err  error
}

func (f fakeAnalyzer) Complete(ctx context.Context, prompt string) (string, error) {
	return f.resp, f.err
}

func TestHeuristicClassify(t *testing.T) {
	cases := []struct {
		query     string
		wantStore string
		wantType  string
	}{
		{"who is the CEO of Acme", "semantic", "lookup"},
		{"remember that I like coffee", "episodic", "recall"},
		{"how do I deploy the service", "procedural", "howto"},
		{"how many engrams are stored", "aggregation", "aggregation"},
		{"tell me about the weather", "semantic", "explanatory"},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			d := heuristicClassify(tc.query)
			assert.Equal(t, tc.wantStore, d.PrimaryStore)
			assert.Equal(t, tc.wantType, d.QueryType)
		})
	}
}

func TestHeuristicClassify_TimeFilter(t *testing.T) {
	d := heuristicClassify("what did I do yesterday")
	assert.Equal(t, "yesterday", d.TimeFilter)
}

func TestClassify_NoAnalyzerUsesHeuristicOnly(t *testing.T) {
	r := New(nil, nil)
	d := r.Classify(context.Background(), "who is Ada Lovelace")
	assert.Equal(t, "semantic", d.PrimaryStore)
	assert.Equal(t, d.Confidence, d.RawConfidence)
}

func TestClassify_AnalyzerErrorFallsBackToHeuristic(t *testing.T) {
	r := New(fakeAnalyzer{err: assert.AnError}, nil)
	d := r.Classify(context.Background(), "who is Ada Lovelace")
	assert.Equal(t, "semantic", d.PrimaryStore)
}

func TestClassify_AnalyzerRefinesDecision(t *testing.T) {
	r := New(fakeAnalyzer{resp: "store=procedural type=howto intent=deploy confidence=0.95 entities=svc,prod"}, nil)
	d := r.Classify(context.Background(), "who is the deploy owner")
	assert.Equal(t, "procedural", d.PrimaryStore)
	assert.Equal(t, "howto", d.QueryType)
	assert.Equal(t, "deploy", d.Intent)
	assert.InDelta(t, 0.95, d.RawConfidence, 1e-9)
	assert.Equal(t, []string{"svc", "prod"}, d.Entities)
}

func TestClassify_FeedbackBoostAdjustsConfidence(t *testing.T) {
	fb := feedback.NewLoop()
	for i := 0; i < 10; i++ {
		fb.RecordStore("semantic", true)
	}
	r := New(nil, fb)
	d := r.Classify(context.Background(), "tell me about quarks")
	assert.Greater(t, d.Confidence, d.RawConfidence)
}

func TestClassify_LowConfidenceAddsSecondaryStores(t *testing.T) {
	r := New(nil, nil)
	d := r.Classify(context.Background(), "tell me about the weather")
	require.Less(t, d.Confidence, 0.8)
	assert.ElementsMatch(t, []string{"episodic", "procedural", "aggregation"}, d.SecondaryStores)
	assert.True(t, d.RequiresSynthesis)
}

func TestClassify_HighConfidenceHasNoSecondaryStores(t *testing.T) {
	r := New(fakeAnalyzer{resp: "confidence=0.95"}, nil)
	d := r.Classify(context.Background(), "who is Ada Lovelace")
	assert.Empty(t, d.SecondaryStores)
}

func TestParseAnalyzerResponse_IgnoresGarbage(t *testing.T) {
	base := gwtypes.RouterDecision{PrimaryStore: "semantic", Confidence: 0.5}
	out := parseAnalyzerResponse("not a valid response at all", base)
	assert.Equal(t, base, out)
}

func TestOtherStores(t *testing.T) {
	assert.ElementsMatch(t, []string{"episodic", "procedural", "aggregation"}, otherStores("semantic"))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-5))
	assert.Equal(t, 1.0, clamp01(5))
	assert.Equal(t, 0.5, clamp01(0.5))
}
