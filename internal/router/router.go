// Package router implements the Meta-Cognitive Router: a two-stage
// classifier turning a free-form query into a routing decision over
// the gateway's memory stores (spec §4.4). The heuristic stage always
// runs; an optional LLM-assisted Analyzer stage refines it but, on any
// error or timeout, the heuristic decision stands unchanged - the same
// graceful-degradation shape the teacher's ToolAnalyzer uses for
// tool-schema analysis.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"mimogate/internal/feedback"
	"mimogate/internal/gwtypes"
	"mimogate/internal/llm"
	"mimogate/internal/logging"
)

const (
	primaryOnlyThreshold = 0.8
	analyzerTimeout      = 2 * time.Second
)

var (
	reWhoWhat  = regexp.MustCompile(`(?i)\b(who|what)\s+(is|are|was|were)\b`)
	reRemember = regexp.MustCompile(`(?i)\b(remember|recall|remind)\b`)
	reHowTo    = regexp.MustCompile(`(?i)\bhow\s+(do|can|should)\s+i\b`)
	reCount    = regexp.MustCompile(`(?i)\b(count|how many)\b`)
	reTimeAnch = regexp.MustCompile(`(?i)\b(yesterday|last week|last month|today|this morning)\b`)
)

// Router classifies free-form queries (spec §4.4).
type Router struct {
	analyzer llm.Completer
	feedback *feedback.Loop
}

// New creates a Router. analyzer may be nil (or an llm.NopCompleter),
// in which case only the heuristic stage ever runs.
func New(analyzer llm.Completer, fb *feedback.Loop) *Router {
	return &Router{analyzer: analyzer, feedback: fb}
}

// Classify runs the full two-stage + feedback-adjustment pipeline.
func (r *Router) Classify(ctx context.Context, queryText string) gwtypes.RouterDecision {
	decision := heuristicClassify(queryText)
	decision.RawConfidence = decision.Confidence

	if r.analyzer != nil {
		if refined, ok := r.tryAnalyze(ctx, queryText, decision); ok {
			decision = refined
			decision.RawConfidence = decision.Confidence
		}
	}

	if r.feedback != nil {
		boost := r.feedback.RouterBoost(decision.PrimaryStore)
		decision.Confidence = clamp01(decision.Confidence + boost)
	}

	if decision.Confidence < primaryOnlyThreshold && len(decision.SecondaryStores) == 0 {
		decision.SecondaryStores = otherStores(decision.PrimaryStore)
	}
	decision.RequiresSynthesis = decision.RequiresSynthesis || len(decision.SecondaryStores) > 0 || decision.QueryType == "explanatory"

	return decision
}

// heuristicClassify is stage 1: token-level pattern match (spec §4.4.1).
func heuristicClassify(q string) gwtypes.RouterDecision {
	d := gwtypes.RouterDecision{QueryType: "general", Confidence: 0.5}

	switch {
	case reWhoWhat.MatchString(q):
		d.PrimaryStore = "semantic"
		d.QueryType = "lookup"
		d.Confidence = 0.75
	case reRemember.MatchString(q):
		d.PrimaryStore = "episodic"
		d.QueryType = "recall"
		d.Confidence = 0.75
	case reHowTo.MatchString(q):
		d.PrimaryStore = "procedural"
		d.QueryType = "howto"
		d.Confidence = 0.7
	case reCount.MatchString(q):
		d.PrimaryStore = "aggregation"
		d.QueryType = "aggregation"
		d.Aggregation = "count"
		d.Confidence = 0.7
	default:
		d.PrimaryStore = "semantic"
		d.QueryType = "explanatory"
		d.Confidence = 0.5
	}

	if m := reTimeAnch.FindString(q); m != "" {
		d.TimeFilter = strings.ToLower(m)
	}
	return d
}

// tryAnalyze is stage 2: an optional LLM-assisted refinement. Any
// error, empty response, or timeout leaves the heuristic decision
// unchanged (ok=false).
func (r *Router) tryAnalyze(ctx context.Context, queryText string, base gwtypes.RouterDecision) (gwtypes.RouterDecision, bool) {
	actx, cancel := context.WithTimeout(ctx, analyzerTimeout)
	defer cancel()

	prompt := buildAnalyzerPrompt(queryText, base)
	resp, err := r.analyzer.Complete(actx, prompt)
	if err != nil || resp == "" {
		logging.Get(logging.CategoryRouter).Debug("analyzer stage unavailable, using heuristic decision: %v", err)
		return base, false
	}

	refined := parseAnalyzerResponse(resp, base)
	return refined, true
}

func buildAnalyzerPrompt(queryText string, base gwtypes.RouterDecision) string {
	var b strings.Builder
	b.WriteString("Classify this query for a memory-and-tool gateway router.\n")
	b.WriteString("Query: ")
	b.WriteString(queryText)
	b.WriteString("\nHeuristic guess: store=")
	b.WriteString(base.PrimaryStore)
	b.WriteString(" type=")
	b.WriteString(base.QueryType)
	b.WriteString("\nRespond with a line of the form: store=<name> type=<name> intent=<short phrase> confidence=<0..1> entities=<comma,separated>")
	return b.String()
}

// parseAnalyzerResponse is a permissive key=value line parser rather
// than a strict JSON schema, matching the Analyzer contract's
// "structured response" without assuming a specific LLM's formatting.
func parseAnalyzerResponse(resp string, base gwtypes.RouterDecision) gwtypes.RouterDecision {
	out := base
	for _, field := range strings.Fields(resp) {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.ToLower(kv[0]), kv[1]
		switch key {
		case "store":
			out.PrimaryStore = val
		case "type":
			out.QueryType = val
		case "intent":
			out.Intent = val
		case "confidence":
			if f, ok := parseFloat01(val); ok {
				out.Confidence = f
			}
		case "entities":
			out.Entities = strings.Split(val, ",")
		}
	}
	return out
}

func parseFloat01(s string) (float64, bool) {
	var f float64
	n, err := fmt.Sscanf(s, "%f", &f)
	if err != nil || n != 1 {
		return 0, false
	}
	return clamp01(f), true
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func otherStores(primary string) []string {
	all := []string{"semantic", "episodic", "procedural", "aggregation"}
	out := make([]string, 0, len(all)-1)
	for _, s := range all {
		if s != primary {
			out = append(out, s)
		}
	}
	return out
}
