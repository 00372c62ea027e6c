package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"mimogate/internal/gwtypes"
	"mimogate/internal/health"
	"mimogate/internal/knowledge"
	"mimogate/internal/llm"
	"mimogate/internal/memory"
	"mimogate/internal/patterns"
	"mimogate/internal/reason"
	"mimogate/internal/registry"
	"mimogate/internal/router"
	"mimogate/internal/store"
)

// RegisterMemoryTools registers the gateway's "memory" multi-operation
// internal tool (spec §3's schema.operation convention; store/search/
// delete per §4.5) against reg. embedder may be nil, in which case
// stored engrams carry no vector and search always returns an empty
// result set - the same degraded-mode behaviour the rest of the system
// falls back to when embedding is unavailable. analyzer may be nil, in
// which case ambiguous supersede decisions are never made (spec
// §4.5.7's "otherwise store as new").
func RegisterMemoryTools(reg *registry.Registry, es *store.EngramStore, embedder llm.Embedder, analyzer llm.Completer) error {
	tracker := memory.NewAccessTracker(es)

	schema := gwtypes.ToolSchema{
		Required:   []string{"operation"},
		Operations: []string{"store", "search", "delete"},
		Properties: map[string]gwtypes.SchemaProperty{
			"operation":          {Type: "string", Description: "store, search, or delete", Enum: []any{"store", "search", "delete"}},
			"content":            {Type: "string", Description: "text to remember (operation=store)"},
			"category":           {Type: "string", Description: "fact, observation, action, or plan", Enum: []any{"fact", "observation", "action", "plan"}},
			"importance":         {Type: "number", Description: "0.0-1.0 importance weight, default 0.5"},
			"supersedes":         {Type: "string", Description: "id of an existing engram this one explicitly replaces (operation=store)"},
			"query":              {Type: "string", Description: "text to search for (operation=search)"},
			"limit":              {Type: "number", Description: "max results, default 10"},
			"preset":             {Type: "string", Description: "ranking preset", Enum: []any{"balanced", "semantic", "recent", "important", "popular"}},
			"include_superseded": {Type: "boolean", Description: "include superseded engrams in search results, newest first (operation=search)"},
			"id":                 {Type: "string", Description: "engram id to remove (operation=delete)"},
		},
	}
	return reg.RegisterInternal("memory", schema, func(ctx registry.Context, args map[string]any) (any, error) {
		op, _ := args["operation"].(string)
		switch op {
		case "store":
			return handleMemoryStore(es, embedder, tracker, analyzer, args)
		case "search":
			return handleMemorySearch(es, embedder, tracker, args)
		case "delete":
			return handleMemoryDelete(es, args)
		default:
			return nil, fmt.Errorf("memory: unknown operation %q", op)
		}
	})
}

func handleMemoryStore(es *store.EngramStore, embedder llm.Embedder, tracker *memory.AccessTracker, analyzer llm.Completer, args map[string]any) (any, error) {
	content, _ := args["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("memory.store: content is required")
	}
	category := gwtypes.CategoryObservation
	if c, ok := args["category"].(string); ok && c != "" {
		category = gwtypes.Category(c)
	}
	importance := 0.5
	if v, ok := args["importance"].(float64); ok {
		importance = v
	}

	now := time.Now()
	e := gwtypes.Engram{
		ID:             uuid.NewString(),
		Content:        content,
		Category:       category,
		Importance:     importance,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	e.Clamp()

	ctx := context.Background()
	if embedder != nil {
		if vec, err := embedder.Embed(ctx, content); err == nil {
			e.Embedding = vec
		}
	}

	// An explicit supersedes argument bypasses the similarity-based
	// classifier entirely - the caller already knows which engram this
	// one replaces (spec §4.5.7's explicit-link path).
	if oldID, ok := args["supersedes"].(string); ok && oldID != "" {
		if err := es.Put(ctx, e); err != nil {
			return nil, fmt.Errorf("memory.store: %w", err)
		}
		if err := es.Supersede(ctx, oldID, e.ID, gwtypes.SupersedeUpdate); err != nil {
			return nil, fmt.Errorf("memory.store: supersede %s: %w", oldID, err)
		}
		return map[string]any{"id": e.ID}, nil
	}

	id, err := memory.ResolveStore(ctx, es, tracker, analyzer, e, 5)
	if err != nil {
		return nil, fmt.Errorf("memory.store: %w", err)
	}
	return map[string]any{"id": id}, nil
}

func handleMemorySearch(es *store.EngramStore, embedder llm.Embedder, tracker *memory.AccessTracker, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("memory.search: query is required")
	}
	limit := 10
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	preset := memory.PresetBalanced
	if p, ok := args["preset"].(string); ok && p != "" {
		preset = memory.Preset(p)
	}
	includeSuperseded, _ := args["include_superseded"].(bool)

	if embedder == nil {
		return map[string]any{"results": []gwtypes.Scored{}}, nil
	}

	ctx := context.Background()
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory.search: embed query: %w", err)
	}
	candidates, err := memory.Retrieve(ctx, es, vec, limit*3)
	if err != nil {
		return nil, fmt.Errorf("memory.search: %w", err)
	}

	if !includeSuperseded {
		live := candidates[:0]
		for _, c := range candidates {
			if c.Engram.SupersededBy == "" {
				live = append(live, c)
			}
		}
		candidates = live
	}

	var ranked []gwtypes.Scored
	if includeSuperseded {
		// Newest-first ordering lets a caller walk a supersession chain
		// in the order it actually happened, rather than by relevance.
		ranked = append([]gwtypes.Scored(nil), candidates...)
		sort.Slice(ranked, func(i, j int) bool {
			return ranked[i].Engram.CreatedAt.After(ranked[j].Engram.CreatedAt)
		})
	} else {
		ranked = memory.Rank(candidates, memory.WeightsFor(preset), time.Now())
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for _, r := range ranked {
		tracker.OnHit(r.Engram.ID)
	}
	return map[string]any{"results": ranked}, nil
}

func handleMemoryDelete(es *store.EngramStore, args map[string]any) (any, error) {
	id, _ := args["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("memory.delete: id is required")
	}
	ctx := context.Background()
	e, err := es.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("memory.delete: no such engram %s: %w", id, err)
	}
	if e.Protected {
		return nil, fmt.Errorf("memory.delete: %s is protected", id)
	}
	if err := es.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("memory.delete: %w", err)
	}
	return map[string]any{"deleted": id}, nil
}

// RegisterKnowledgeTools registers the "knowledge" canonical tool over
// a knowledge.Graph collaborator: teach (assert a triple), query (exact
// pattern match), traverse (bounded breadth-first walk), per spec §3/§4.
func RegisterKnowledgeTools(reg *registry.Registry, g *knowledge.Graph) error {
	schema := gwtypes.ToolSchema{
		Required:   []string{"operation"},
		Operations: []string{"teach", "query", "traverse"},
		Properties: map[string]gwtypes.SchemaProperty{
			"operation":  {Type: "string", Description: "teach, query, or traverse", Enum: []any{"teach", "query", "traverse"}},
			"subject":    {Type: "string", Description: "triple subject"},
			"predicate":  {Type: "string", Description: "triple predicate"},
			"object":     {Type: "string", Description: "triple object"},
			"confidence": {Type: "number", Description: "0.0-1.0 confidence (operation=teach)"},
			"source":     {Type: "string", Description: "provenance label (operation=teach)"},
			"max_depth":  {Type: "number", Description: "traversal depth (operation=traverse), default 2"},
		},
	}
	return reg.RegisterInternal("knowledge", schema, func(ctx registry.Context, args map[string]any) (any, error) {
		op, _ := args["operation"].(string)
		subject, _ := args["subject"].(string)
		predicate, _ := args["predicate"].(string)
		object, _ := args["object"].(string)
		switch op {
		case "teach":
			if subject == "" || predicate == "" || object == "" {
				return nil, fmt.Errorf("knowledge.teach: subject, predicate, and object are required")
			}
			confidence := 1.0
			if v, ok := args["confidence"].(float64); ok {
				confidence = v
			}
			source, _ := args["source"].(string)
			t := gwtypes.Triple{Subject: subject, Predicate: predicate, Object: object, Confidence: confidence, Source: source}
			if err := g.Assert(t); err != nil {
				return nil, fmt.Errorf("knowledge.teach: %w", err)
			}
			return map[string]any{"asserted": t}, nil
		case "query":
			triples, err := g.Query(context.Background(), subject, predicate, object)
			if err != nil {
				return nil, fmt.Errorf("knowledge.query: %w", err)
			}
			return map[string]any{"triples": triples}, nil
		case "traverse":
			if subject == "" {
				return nil, fmt.Errorf("knowledge.traverse: subject is required")
			}
			maxDepth := 2
			if v, ok := args["max_depth"].(float64); ok {
				maxDepth = int(v)
			}
			triples, err := g.Traverse(context.Background(), subject, maxDepth)
			if err != nil {
				return nil, fmt.Errorf("knowledge.traverse: %w", err)
			}
			return map[string]any{"triples": triples}, nil
		default:
			return nil, fmt.Errorf("knowledge: unknown operation %q", op)
		}
	})
}

// RegisterCognitiveTools registers the "cognitive" canonical tool over
// a patterns.Store, exposing the dispatcher-facing reflect/impact/
// promote operations spec §3's Pattern type names.
func RegisterCognitiveTools(reg *registry.Registry, p *patterns.Store) error {
	schema := gwtypes.ToolSchema{
		Required:   []string{"operation"},
		Operations: []string{"reflect", "impact", "promote"},
		Properties: map[string]gwtypes.SchemaProperty{
			"operation":   {Type: "string", Description: "reflect, impact, or promote", Enum: []any{"reflect", "impact", "promote"}},
			"signature":   {Type: "string", Description: "pattern signature (operation=reflect)"},
			"success":     {Type: "boolean", Description: "whether this observation succeeded (operation=reflect)"},
			"pattern_id":  {Type: "string", Description: "pattern id (operation=impact, operation=promote)"},
			"callable_as": {Type: "string", Description: "public name to promote the pattern under (operation=promote)"},
		},
	}
	return reg.RegisterInternal("cognitive", schema, func(ctx registry.Context, args map[string]any) (any, error) {
		op, _ := args["operation"].(string)
		switch op {
		case "reflect":
			signature, _ := args["signature"].(string)
			if signature == "" {
				return nil, fmt.Errorf("cognitive.reflect: signature is required")
			}
			success, _ := args["success"].(bool)
			pattern := p.Reflect(signature, success)
			return map[string]any{"pattern": pattern, "eligible_for_promotion": p.EligibleForPromotion(pattern.PatternID)}, nil
		case "impact":
			patternID, _ := args["pattern_id"].(string)
			pattern, ok := p.Impact(patternID)
			if !ok {
				return nil, fmt.Errorf("cognitive.impact: no such pattern: %s", patternID)
			}
			return map[string]any{"pattern": pattern}, nil
		case "promote":
			patternID, _ := args["pattern_id"].(string)
			callableAs, _ := args["callable_as"].(string)
			if !p.EligibleForPromotion(patternID) {
				return nil, fmt.Errorf("cognitive.promote: %s is not yet eligible for promotion", patternID)
			}
			if !p.Promote(patternID, callableAs) {
				return nil, fmt.Errorf("cognitive.promote: no such pattern: %s", patternID)
			}
			return map[string]any{"promoted": patternID, "callable_as": callableAs}, nil
		default:
			return nil, fmt.Errorf("cognitive: unknown operation %q", op)
		}
	})
}

// RegisterReasonTools registers the "reason" canonical tool: sandboxed
// Go snippet evaluation via the Yaegi interpreter (spec §9's
// collaborator-facing procedural-execution surface).
func RegisterReasonTools(reg *registry.Registry, ev *reason.Evaluator) error {
	schema := gwtypes.ToolSchema{
		Required: []string{"code"},
		Properties: map[string]gwtypes.SchemaProperty{
			"code":  {Type: "string", Description: "Go source defining func RunTool(input string) (string, error), stdlib imports only"},
			"input": {Type: "string", Description: "input passed to RunTool"},
		},
	}
	return reg.RegisterInternal("reason", schema, func(ctx registry.Context, args map[string]any) (any, error) {
		code, _ := args["code"].(string)
		if code == "" {
			return nil, fmt.Errorf("reason: code is required")
		}
		input, _ := args["input"].(string)
		evalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		out, err := ev.Eval(evalCtx, code, input)
		if err != nil {
			return nil, fmt.Errorf("reason: %w", err)
		}
		return map[string]any{"output": out}, nil
	})
}

// RegisterToolUsageTools registers the "tool_usage" canonical tool over
// a store.ToolUsageStore, exposing the invocation history the
// dispatcher records on every call (spec §9).
func RegisterToolUsageTools(reg *registry.Registry, tu *store.ToolUsageStore) error {
	schema := gwtypes.ToolSchema{
		Required:   []string{"operation"},
		Operations: []string{"stats", "recent"},
		Properties: map[string]gwtypes.SchemaProperty{
			"operation": {Type: "string", Description: "stats or recent", Enum: []any{"stats", "recent"}},
			"tool":      {Type: "string", Description: "filter by tool name (operation=recent), empty for all tools"},
			"limit":     {Type: "number", Description: "max rows to return (operation=recent), default 20"},
		},
	}
	return reg.RegisterInternal("tool_usage", schema, func(ctx registry.Context, args map[string]any) (any, error) {
		op, _ := args["operation"].(string)
		switch op {
		case "stats":
			stats, err := tu.Stats()
			if err != nil {
				return nil, fmt.Errorf("tool_usage.stats: %w", err)
			}
			return map[string]any{"stats": stats}, nil
		case "recent":
			toolName, _ := args["tool"].(string)
			limit := 20
			if v, ok := args["limit"].(float64); ok && v > 0 {
				limit = int(v)
			}
			invocations, err := tu.RecentByTool(toolName, limit)
			if err != nil {
				return nil, fmt.Errorf("tool_usage.recent: %w", err)
			}
			return map[string]any{"invocations": invocations}, nil
		default:
			return nil, fmt.Errorf("tool_usage: unknown operation %q", op)
		}
	})
}

// RegisterOrchestrationTools registers the "orchestrate" canonical
// tool: a single "plan" operation that exposes the meta-cognitive
// router's classification directly as a tool, for stdio callers that
// have no equivalent of the HTTP frontend's /v1/ask endpoint.
func RegisterOrchestrationTools(reg *registry.Registry, rt *router.Router) error {
	schema := gwtypes.ToolSchema{
		Required:   []string{"operation", "query"},
		Operations: []string{"plan"},
		Properties: map[string]gwtypes.SchemaProperty{
			"operation": {Type: "string", Description: "plan", Enum: []any{"plan"}},
			"query":     {Type: "string", Description: "free-form query to classify"},
		},
	}
	return reg.RegisterInternal("orchestrate", schema, func(ctx registry.Context, args map[string]any) (any, error) {
		op, _ := args["operation"].(string)
		if op != "plan" {
			return nil, fmt.Errorf("orchestrate: unknown operation %q", op)
		}
		query, _ := args["query"].(string)
		if query == "" {
			return nil, fmt.Errorf("orchestrate.plan: query is required")
		}
		decision := rt.Classify(context.Background(), query)
		return map[string]any{"decision": decision}, nil
	})
}

// RegisterAutonomousTools registers the "autonomous" canonical tool: a
// single "status" operation surfacing the background health monitor's
// most recent periodic snapshot (spec §4.10).
func RegisterAutonomousTools(reg *registry.Registry, mon *health.Monitor) error {
	schema := gwtypes.ToolSchema{
		Operations: []string{"status"},
		Properties: map[string]gwtypes.SchemaProperty{
			"operation": {Type: "string", Description: "status", Enum: []any{"status"}},
		},
	}
	return reg.RegisterInternal("autonomous", schema, func(ctx registry.Context, args map[string]any) (any, error) {
		snap, ok := mon.Latest()
		if !ok {
			return map[string]any{"available": false}, nil
		}
		return map[string]any{"available": true, "snapshot": snap}, nil
	})
}

// RegisterUtilityTools registers the gateway's small internally-owned
// meta tools that need no external dependency: awakening_status,
// onboard, and meta (spec §9's remaining utility surface).
func RegisterUtilityTools(reg *registry.Registry) error {
	statusSchema := gwtypes.ToolSchema{Properties: map[string]gwtypes.SchemaProperty{}}
	if err := reg.RegisterInternal("awakening_status", statusSchema, func(ctx registry.Context, args map[string]any) (any, error) {
		return map[string]any{
			"status":     "awake",
			"session":    ctx.SessionTag,
			"agent_type": ctx.AgentType,
		}, nil
	}); err != nil {
		return err
	}

	onboardSchema := gwtypes.ToolSchema{Properties: map[string]gwtypes.SchemaProperty{
		"agent_type": {Type: "string", Description: "the calling agent's declared type"},
	}}
	if err := reg.RegisterInternal("onboard", onboardSchema, func(ctx registry.Context, args map[string]any) (any, error) {
		return map[string]any{
			"session":        ctx.SessionTag,
			"agent_type":     ctx.AgentType,
			"canonical_tools": []string{"memory", "file", "terminal", "web", "code", "reason", "cognitive", "meta", "knowledge", "onboard", "autonomous", "orchestrate", "awakening_status", "tool_usage"},
		}, nil
	}); err != nil {
		return err
	}

	metaSchema := gwtypes.ToolSchema{
		Required:   []string{"operation"},
		Operations: []string{"list_tools"},
		Properties: map[string]gwtypes.SchemaProperty{
			"operation": {Type: "string", Description: "list_tools", Enum: []any{"list_tools"}},
		},
	}
	return reg.RegisterInternal("meta", metaSchema, func(ctx registry.Context, args map[string]any) (any, error) {
		op, _ := args["operation"].(string)
		if op != "list_tools" && op != "" {
			return nil, fmt.Errorf("meta: unknown operation %q", op)
		}
		return map[string]any{"tools": reg.ListAll()}, nil
	})
}
