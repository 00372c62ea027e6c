package memory

import (
	"context"
	"fmt"
	"strings"

	"mimogate/internal/gwtypes"
	"mimogate/internal/llm"
	"mimogate/internal/logging"
	"mimogate/internal/store"
)

const (
	redundantThreshold = 0.95
	ambiguousThreshold = 0.80
)

// SupersedeDecision is the outcome of classifying a new memory against
// its nearest existing neighbours (spec §4.5.7).
type SupersedeDecision string

const (
	DecisionRedundant SupersedeDecision = "redundant"
	DecisionAmbiguous SupersedeDecision = "ambiguous"
	DecisionNew       SupersedeDecision = "new"
)

// Classify inspects the best similarity score among candidates and
// returns the spec's three-way classification.
func Classify(bestSimilarity float64) SupersedeDecision {
	switch {
	case bestSimilarity >= redundantThreshold:
		return DecisionRedundant
	case bestSimilarity >= ambiguousThreshold:
		return DecisionAmbiguous
	default:
		return DecisionNew
	}
}

// ResolveStore runs the full supersession contract for a new memory:
// retrieve nearest neighbours, classify, and either bump access on a
// redundant twin, ask the Analyzer about an ambiguous one, or store
// the new memory plain. It returns the id under which content ended
// up live (the existing id for a redundant hit, the new one otherwise).
func ResolveStore(ctx context.Context, es *store.EngramStore, tracker *AccessTracker, analyzer llm.Completer, e gwtypes.Engram, topK int) (string, error) {
	if topK <= 0 {
		topK = 5
	}
	var best gwtypes.Scored
	var hasBest bool
	if len(e.Embedding) > 0 {
		neighbours, err := es.ANNSearch(ctx, e.Embedding, topK)
		if err == nil && len(neighbours) > 0 {
			best = neighbours[0]
			hasBest = true
		}
	}

	if !hasBest {
		if err := es.Put(ctx, e); err != nil {
			return "", err
		}
		return e.ID, nil
	}

	switch Classify(best.Similarity) {
	case DecisionRedundant:
		if tracker != nil {
			tracker.OnHit(best.Engram.ID)
		}
		logging.Get(logging.CategoryMemory).Debug("supersede: %s judged redundant with %s (sim=%.3f)", e.ID, best.Engram.ID, best.Similarity)
		return best.Engram.ID, nil

	case DecisionAmbiguous:
		if err := es.Put(ctx, e); err != nil {
			return "", err
		}
		kind, ok := askSupersedeDecision(ctx, analyzer, best.Engram, e)
		if !ok {
			// No analyzer consulted, or it declined to call this a
			// supersession: store as new per the spec's "otherwise
			// store as new" - no link is created between the two.
			logging.Get(logging.CategoryMemory).Debug("supersede: %s ambiguous vs %s (sim=%.3f), stored as new", e.ID, best.Engram.ID, best.Similarity)
			return e.ID, nil
		}
		if err := es.Supersede(ctx, best.Engram.ID, e.ID, kind); err != nil {
			logging.Get(logging.CategoryMemory).Warn("supersede link failed (%s -> %s): %v", best.Engram.ID, e.ID, err)
		}
		return e.ID, nil

	default:
		if err := es.Put(ctx, e); err != nil {
			return "", err
		}
		return e.ID, nil
	}
}

// askSupersedeDecision consults analyzer on an ambiguous pair, mirroring
// the router's permissive key=value Analyzer response parsing. ok is
// false whenever no actual decision was made - analyzer is nil, the
// call errors, or it responds without an explicit supersede=yes - so
// the caller never links two memories on a guess.
func askSupersedeDecision(ctx context.Context, analyzer llm.Completer, old, new gwtypes.Engram) (gwtypes.SupersedeKind, bool) {
	if analyzer == nil {
		return "", false
	}
	prompt := fmt.Sprintf(
		"Existing memory: %q\nNew memory: %q\nDoes the new memory supersede the existing one? "+
			"Respond with a line of the form: supersede=<yes|no> kind=<update|correction|refinement>",
		old.Content, new.Content)
	resp, err := analyzer.Complete(ctx, prompt)
	if err != nil || resp == "" {
		logging.Get(logging.CategoryMemory).Debug("supersede analyzer unavailable: %v", err)
		return "", false
	}
	decided := false
	kind := gwtypes.SupersedeUpdate
	for _, field := range strings.Fields(resp) {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "supersede":
			decided = strings.EqualFold(kv[1], "yes")
		case "kind":
			switch gwtypes.SupersedeKind(strings.ToLower(kv[1])) {
			case gwtypes.SupersedeUpdate, gwtypes.SupersedeCorrection, gwtypes.SupersedeRefinement:
				kind = gwtypes.SupersedeKind(strings.ToLower(kv[1]))
			}
		}
	}
	return kind, decided
}
