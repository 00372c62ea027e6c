// Package dispatch implements the gateway's single call path: every
// tool invocation from either frontend passes through Dispatcher.Call,
// which resolves aliases, validates and sandboxes arguments, looks the
// tool up in the registry (lazily spawning its skill at most once on a
// stale reference), invokes it under a deadline, attaches experience
// and knowledge context, records the outcome, and emits telemetry
// (spec §4.2).
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"mimogate/internal/feedback"
	"mimogate/internal/gwerrors"
	"mimogate/internal/gwtypes"
	"mimogate/internal/llm"
	"mimogate/internal/logging"
	"mimogate/internal/memory"
	"mimogate/internal/registry"
	"mimogate/internal/skills"
	"mimogate/internal/store"
)

// aliasTable is the fixed, table-driven alias resolution of spec §4.8:
// old public names mapped to a canonical tool + fixed operation arg.
var aliasTable = map[string]struct {
	tool      string
	operation string
}{
	"fetch":       {"web", "fetch"},
	"browse":      {"web", "browse"},
	"remember":    {"memory", "store"},
	"recall":      {"memory", "search"},
	"run_command": {"terminal", "run"},
	"read_file":   {"file", "read"},
	"write_file":  {"file", "write"},
}

var shellMetacharacters = regexp.MustCompile(`[;&|` + "`" + `]|\$\(|\n`)

// Dispatcher is the single call path every frontend routes through.
type Dispatcher struct {
	registry           *registry.Registry
	supervisor         *skills.Supervisor
	feedback           *feedback.Loop
	es                 *store.EngramStore
	embedder           llm.Embedder
	sandboxed          bool
	knowledgeThreshold float64
	toolUsage          *store.ToolUsageStore
	telemetry          *store.TelemetryStore
}

// New builds a Dispatcher. embedder may be nil, in which case
// knowledge-injection post-processing is skipped.
func New(reg *registry.Registry, sup *skills.Supervisor, fb *feedback.Loop, es *store.EngramStore, embedder llm.Embedder, sandboxed bool) *Dispatcher {
	return &Dispatcher{
		registry:           reg,
		supervisor:         sup,
		feedback:           fb,
		es:                 es,
		embedder:           embedder,
		sandboxed:          sandboxed,
		knowledgeThreshold: 0.75,
	}
}

// SetToolUsageStore wires the durable tool_usage recorder in after
// construction, mirroring SetLivenessChecker's post-construction wiring
// idiom. Both stores are optional - when nil, the dispatcher simply
// skips the corresponding persistence step.
func (d *Dispatcher) SetToolUsageStore(s *store.ToolUsageStore) { d.toolUsage = s }

// SetTelemetryStore wires the durable query-outcome recorder in after
// construction.
func (d *Dispatcher) SetTelemetryStore(s *store.TelemetryStore) { d.telemetry = s }

// Result is the dispatcher's output for one call, including the
// post-processing annotations spec §4.2 attaches after a successful
// invocation.
type Result struct {
	Value              any
	ExperienceContext  *ExperienceContext
	KnowledgeInjection []gwtypes.Scored
	LatencyMs          int64
}

// ExperienceContext summarises a tool's recent track record, attached
// when the tool has at least 5 recorded executions (spec §4.2, §4.9).
type ExperienceContext struct {
	SuccessRate float64
	Trend       feedback.Trend
}

// Call runs the full six-step dispatch contract for one (tool, args) pair.
func (d *Dispatcher) Call(ctx registry.Context, toolName string, args map[string]any, deadline time.Time) (*Result, error) {
	start := time.Now()

	// Step 1: alias resolution.
	toolName, args = resolveAlias(toolName, args)

	// Step 2: argument validation/sandboxing.
	if err := validateArgs(args, d.sandboxed); err != nil {
		d.emitTelemetry(toolName, "unknown", time.Since(start), false)
		return nil, err
	}
	if ctx.Sandboxed {
		if reason, forbidden := sandboxForbids(toolName, args); forbidden {
			d.emitTelemetry(toolName, "unknown", time.Since(start), false)
			return nil, gwerrors.New(gwerrors.KindToolDisabledInSandbox, "%s is disabled in sandboxed mode: %s", toolName, reason)
		}
	}

	// Step 3: registry lookup, with at most one lazy-spawn retry.
	lookup := d.registry.Lookup(toolName)
	if !lookup.Found {
		d.emitTelemetry(toolName, "unknown", time.Since(start), false)
		return nil, gwerrors.New(gwerrors.KindUnknownTool, "no such tool: %s", toolName)
	}
	if lookup.Owner == gwtypes.OwnerSkillLazy {
		spawned, err := d.lazySpawn(ctx, toolName, lookup)
		if err != nil {
			d.emitTelemetry(toolName, lookup.SkillID, time.Since(start), false)
			return nil, gwerrors.Wrap(gwerrors.KindSkillUnavailable, err, "skill %s unavailable", lookup.SkillID)
		}
		lookup = spawned
	}

	// Step 4: invoke under deadline.
	value, err := d.invoke(ctx, toolName, lookup, args, deadline)
	latency := time.Since(start)
	if err != nil {
		d.emitTelemetry(toolName, ownerLabel(lookup), latency, false)
		d.recordToolUsage(ctx, toolName, ownerLabel(lookup), args, nil, err, latency, false)
		if d.feedback != nil {
			d.feedback.RecordTool(toolName, false)
		}
		return nil, err
	}

	result := &Result{Value: value, LatencyMs: latency.Milliseconds()}

	// Step 5: post-process.
	if d.feedback != nil {
		d.feedback.RecordTool(toolName, true)
		if d.feedback.HasSufficientHistory(toolName) {
			result.ExperienceContext = &ExperienceContext{
				SuccessRate: d.feedback.SuccessRate(toolName),
				Trend:       d.feedback.Trend(toolName),
			}
		}
	}
	if d.embedder != nil && d.es != nil {
		if injected := d.tryKnowledgeInjection(ctx.SessionTag, args); len(injected) > 0 {
			result.KnowledgeInjection = injected
		}
	}

	// Step 6: telemetry.
	d.emitTelemetry(toolName, ownerLabel(lookup), latency, true)
	d.recordToolUsage(ctx, toolName, ownerLabel(lookup), args, value, nil, latency, true)

	return result, nil
}

// recordToolUsage durably persists one invocation for the tool_usage
// canonical tool, when a ToolUsageStore has been wired in. Marshalling
// failures are logged and otherwise ignored - usage history is a
// diagnostic aid, not load-bearing for the call itself.
func (d *Dispatcher) recordToolUsage(ctx registry.Context, toolName, owner string, args map[string]any, value any, callErr error, latency time.Duration, success bool) {
	if d.toolUsage == nil {
		return
	}
	argsJSON, _ := json.Marshal(args)
	resultJSON, _ := json.Marshal(value)
	errMsg := ""
	if callErr != nil {
		errMsg = callErr.Error()
	}
	inv := store.ToolInvocation{
		CallID:     uuid.NewString(),
		SessionTag: ctx.SessionTag,
		ToolName:   toolName,
		Owner:      owner,
		Args:       string(argsJSON),
		Result:     string(resultJSON),
		Error:      errMsg,
		Success:    success,
		DurationMs: latency.Milliseconds(),
		ResultSize: len(resultJSON),
	}
	if err := d.toolUsage.Record(inv); err != nil {
		logging.Get(logging.CategoryDispatch).Debug("tool usage record failed: %v", err)
	}
}

func resolveAlias(toolName string, args map[string]any) (string, map[string]any) {
	alias, ok := aliasTable[toolName]
	if !ok {
		return toolName, args
	}
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out["operation"] = alias.operation
	return alias.tool, out
}

// validateArgs rejects shell metacharacters, path traversal, and
// absolute paths outside any sandbox, per spec §4.2's "arg validation /
// sandboxing" step. It never mutates args.
func validateArgs(args map[string]any, sandboxed bool) error {
	for key, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if shellMetacharacters.MatchString(s) {
			return gwerrors.New(gwerrors.KindInvalidArguments, "argument %q contains unsafe characters", key)
		}
		if strings.Contains(s, "..") {
			return gwerrors.New(gwerrors.KindInvalidArguments, "argument %q attempts path traversal", key)
		}
		if sandboxed && strings.HasPrefix(s, "/") && (key == "path" || key == "file" || key == "cwd") {
			return gwerrors.New(gwerrors.KindToolDisabledInSandbox, "argument %q: absolute paths are disabled in sandboxed mode", key)
		}
	}
	return nil
}

// sandboxForbids reports whether toolName/args names an operation the
// sandbox forbids outright (spec §4.2's "sandbox restrictions": memory
// writes, knowledge teaching, filesystem writes, any terminal
// execution). It checks the real operation names the registered tools
// use, not generic verbs.
func sandboxForbids(toolName string, args map[string]any) (string, bool) {
	op, _ := args["operation"].(string)
	switch toolName {
	case "terminal":
		return "terminal execution is disabled in sandboxed mode", true
	case "memory":
		if op == "store" || op == "delete" {
			return "memory writes are disabled in sandboxed mode", true
		}
	case "knowledge":
		if op == "teach" {
			return "knowledge teaching is disabled in sandboxed mode", true
		}
	case "file":
		switch op {
		case "write_file", "edit_file", "delete_file":
			return "filesystem writes are disabled in sandboxed mode", true
		}
	}
	return "", false
}

// lazySpawn starts a skill_lazy tool's subprocess exactly once and
// re-looks-up the registry afterward (spec §4.2 "at-most-one retry").
func (d *Dispatcher) lazySpawn(ctx registry.Context, toolName string, lookup registry.Lookup) (registry.Lookup, error) {
	if d.supervisor == nil {
		return registry.Lookup{}, fmt.Errorf("no skill supervisor configured")
	}
	spawnCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	proc, err := d.supervisor.EnsureStarted(spawnCtx, lookup.Config)
	if err != nil {
		return registry.Lookup{}, err
	}
	d.registry.MarkSkillRunning(lookup.SkillID, proc)
	return d.registry.Lookup(toolName), nil
}

// invoke runs the tool's handler: internal handlers run in the
// caller's goroutine; external (skill) handlers are serialised over
// the skill's subprocess pipe.
func (d *Dispatcher) invoke(ctx registry.Context, toolName string, lookup registry.Lookup, args map[string]any, deadline time.Time) (any, error) {
	if lookup.Owner == gwtypes.OwnerInternal {
		if lookup.Handler == nil {
			return nil, gwerrors.New(gwerrors.KindInternal, "tool %s has no handler", toolName)
		}
		return lookup.Handler(ctx, args)
	}

	if d.supervisor == nil {
		return nil, gwerrors.New(gwerrors.KindSkillUnavailable, "no skill supervisor configured")
	}
	if lookup.ProcRef == nil {
		return nil, gwerrors.New(gwerrors.KindSkillUnavailable, "skill %s has no live process", lookup.SkillID)
	}
	raw, err := d.supervisor.Call(context.Background(), lookup.ProcRef, "tools/call", map[string]any{"name": toolName, "arguments": args}, deadline)
	if err != nil {
		return nil, gwerrors.Wrap(gwerrors.KindSkillUnavailable, err, "skill call failed")
	}
	return raw, nil
}

func (d *Dispatcher) tryKnowledgeInjection(sessionTag string, args map[string]any) []gwtypes.Scored {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	vec, err := d.embedder.Embed(ctx, query)
	if err != nil {
		logging.Get(logging.CategoryDispatch).Debug("knowledge injection embed failed: %v", err)
		return nil
	}
	candidates, err := memory.Retrieve(ctx, d.es, vec, 5)
	if err != nil {
		return nil
	}
	out := make([]gwtypes.Scored, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= d.knowledgeThreshold {
			out = append(out, c)
		}
	}
	return out
}

func (d *Dispatcher) emitTelemetry(toolName, owner string, latency time.Duration, success bool) {
	logging.Get(logging.CategoryDispatch).Debug("dispatch tool=%s owner=%s latency_ms=%d success=%t", toolName, owner, latency.Milliseconds(), success)
	if d.telemetry == nil {
		return
	}
	outcome := store.QueryOutcome{
		QueryID:   uuid.NewString(),
		QueryType: toolName,
		Success:   success,
		LatencyMs: latency.Milliseconds(),
	}
	if err := d.telemetry.Record(outcome); err != nil {
		logging.Get(logging.CategoryDispatch).Debug("telemetry record failed: %v", err)
	}
}

func ownerLabel(lookup registry.Lookup) string {
	if lookup.SkillID != "" {
		return lookup.SkillID
	}
	return string(lookup.Owner)
}
