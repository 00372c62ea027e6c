// Package knowledge adapts the Mangle Datalog engine into the narrow
// dispatch/persistence surface the gateway shares with the knowledge
// graph collaborator (spec §1, §3, §4): assert a triple, query by
// pattern, traverse from a subject to a bounded depth. Everything else
// about the triple store - schema evolution, rule derivation, the
// procedural executor - is out of scope per the spec's explicit
// non-goal and lives, if anywhere, in the collaborator itself.
package knowledge

import (
	"context"
	"fmt"
	"sync"

	"mimogate/internal/gwtypes"
	"mimogate/internal/logging"
	"mimogate/internal/mangle"
)

const tripleSchema = `Decl triple(Subject, Predicate, Object, Confidence, Source).`

// Graph is the knowledge-graph collaborator adapter.
type Graph struct {
	mu     sync.RWMutex
	engine *mangle.Engine
}

// New creates a Graph backed by a fresh Mangle engine with the fixed
// triple schema loaded.
func New() (*Graph, error) {
	engine, err := mangle.NewEngine(mangle.DefaultConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("knowledge: new engine: %w", err)
	}
	if err := engine.LoadSchemaString(tripleSchema); err != nil {
		return nil, fmt.Errorf("knowledge: load schema: %w", err)
	}
	return &Graph{engine: engine}, nil
}

// Assert adds a single fact to the graph. Confidence is clamped to
// [0,1] per spec §3.
func (g *Graph) Assert(t gwtypes.Triple) error {
	if t.Confidence < 0 {
		t.Confidence = 0
	}
	if t.Confidence > 1 {
		t.Confidence = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.AddFact("triple", t.Subject, t.Predicate, t.Object, t.Confidence, t.Source)
}

// Query returns every triple matching the given subject/predicate/
// object pattern; an empty string in any position matches anything.
func (g *Graph) Query(ctx context.Context, subject, predicate, object string) ([]gwtypes.Triple, error) {
	g.mu.RLock()
	facts, err := g.engine.GetFacts("triple")
	g.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("knowledge: query: %w", err)
	}

	out := make([]gwtypes.Triple, 0, len(facts))
	for _, f := range facts {
		t, ok := tripleFromFact(f)
		if !ok {
			continue
		}
		if subject != "" && t.Subject != subject {
			continue
		}
		if predicate != "" && t.Predicate != predicate {
			continue
		}
		if object != "" && t.Object != object {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Traverse walks outgoing edges from subject, returning every triple
// reached within maxDepth+1 hops: depth 0 yields subject's own edges
// and each further level adds one hop (bounded breadth-first traversal per
// spec §3's "traversal is bounded by a max_depth argument").
func (g *Graph) Traverse(ctx context.Context, subject string, maxDepth int) ([]gwtypes.Triple, error) {
	if maxDepth < 0 {
		maxDepth = 0
	}
	g.mu.RLock()
	facts, err := g.engine.GetFacts("triple")
	g.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("knowledge: traverse: %w", err)
	}

	all := make([]gwtypes.Triple, 0, len(facts))
	for _, f := range facts {
		if t, ok := tripleFromFact(f); ok {
			all = append(all, t)
		}
	}

	frontier := map[string]bool{subject: true}
	visited := map[string]bool{}
	var out []gwtypes.Triple
	for depth := 0; depth <= maxDepth && len(frontier) > 0; depth++ {
		next := map[string]bool{}
		for _, t := range all {
			if !frontier[t.Subject] || visited[t.Subject+"|"+t.Predicate+"|"+t.Object] {
				continue
			}
			out = append(out, t)
			visited[t.Subject+"|"+t.Predicate+"|"+t.Object] = true
			next[t.Object] = true
		}
		frontier = next
	}
	logging.Get(logging.CategoryKnowledge).Debug("traverse(%s, depth=%d) -> %d triples", subject, maxDepth, len(out))
	return out, nil
}

// Close releases the underlying engine's resources.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.engine.Close()
}

func tripleFromFact(f mangle.Fact) (gwtypes.Triple, bool) {
	if len(f.Args) < 5 {
		return gwtypes.Triple{}, false
	}
	subj, _ := f.Args[0].(string)
	pred, _ := f.Args[1].(string)
	obj, _ := f.Args[2].(string)
	conf, _ := asFloat(f.Args[3])
	src, _ := f.Args[4].(string)
	return gwtypes.Triple{Subject: subj, Predicate: pred, Object: obj, Confidence: conf, Source: src}, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
