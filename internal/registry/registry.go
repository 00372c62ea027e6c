// Package registry implements the authoritative, thread-safe mapping
// from public tool name to owner (internal handler or external skill),
// with liveness-aware lookup and atomic hot reload (spec §4.1).
package registry

import (
	"sort"
	"sync"

	"mimogate/internal/gwtypes"
	"mimogate/internal/logging"
)

// Handler is the body of an internal tool: a pure function of args and
// a call context, returning a result or an error (spec §9).
type Handler func(ctx Context, args map[string]any) (any, error)

// Context carries the per-call metadata every handler may need.
// It intentionally exposes no shared mutable state.
type Context struct {
	SessionTag string
	AgentType  string
	Sandboxed  bool
}

// LivenessChecker reports whether a skill's subprocess reference is
// still alive. The registry calls this at lookup time rather than
// trusting cached state, per spec §4.1's liveness requirement.
type LivenessChecker interface {
	IsAlive(procRef any) bool
}

// entry is the registry's internal record for one tool name.
type entry struct {
	name     string
	owner    gwtypes.OwnerKind
	handler  Handler
	schema   gwtypes.ToolSchema
	skillID  string
	config   gwtypes.SkillConfig
	procRef  any
}

// Lookup is the result of a Registry.Lookup call (spec §4.1).
type Lookup struct {
	Found   bool
	Owner   gwtypes.OwnerKind
	Handler Handler
	SkillID string
	Config  gwtypes.SkillConfig
	ProcRef any
}

// Registry is the single serialised actor of spec §5: a mutex-guarded
// map plus a liveness checker consulted on every read of a running
// skill owner.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	liveness LivenessChecker
}

// New creates an empty registry. liveness may be nil until a skill
// supervisor is wired in; lookups of skill-owned tools before that
// point are treated as not-yet-alive.
func New(liveness LivenessChecker) *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		liveness: liveness,
	}
}

// SetLivenessChecker wires the skill supervisor in after construction,
// breaking the registry/supervisor import cycle that would otherwise
// exist (the supervisor also needs to tell the registry about deaths).
func (r *Registry) SetLivenessChecker(l LivenessChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveness = l
}

// RegisterInternal registers a single internally-handled tool.
// Overwriting an existing name is rejected (spec §4.1).
func (r *Registry) RegisterInternal(name string, schema gwtypes.ToolSchema, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return errAlreadyRegistered(name)
	}
	r.entries[name] = &entry{
		name:    name,
		owner:   gwtypes.OwnerInternal,
		handler: handler,
		schema:  schema,
	}
	logging.Get(logging.CategoryRegistry).Info("registered internal tool: %s", name)
	return nil
}

// RegisterSkillTools atomically registers every tool a skill exposes,
// associating them with a process reference the liveness checker can
// later probe (spec §4.1's "atomic batch").
func (r *Registry) RegisterSkillTools(skillID string, descs []gwtypes.ToolDescriptor, cfg gwtypes.SkillConfig, procRef any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range descs {
		if existing, exists := r.entries[d.Name]; exists && existing.skillID != skillID {
			return errAlreadyRegistered(d.Name)
		}
	}
	owner := gwtypes.OwnerSkillLazy
	if procRef != nil {
		owner = gwtypes.OwnerSkillRunning
	}
	for _, d := range descs {
		r.entries[d.Name] = &entry{
			name:    d.Name,
			owner:   owner,
			schema:  d.Schema,
			skillID: skillID,
			config:  cfg,
			procRef: procRef,
		}
	}
	logging.Get(logging.CategoryRegistry).Info("registered %d tool(s) for skill %s", len(descs), skillID)
	return nil
}

// MarkSkillRunning transitions a previously-lazy skill's tools to
// skill_running once the supervisor has spawned and handshaken it.
func (r *Registry) MarkSkillRunning(skillID string, procRef any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.skillID == skillID {
			e.owner = gwtypes.OwnerSkillRunning
			e.procRef = procRef
		}
	}
}

// UnregisterSkill atomically removes every name owned by skillID
// (spec §4.1).
func (r *Registry) UnregisterSkill(skillID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, e := range r.entries {
		if e.skillID == skillID {
			delete(r.entries, name)
		}
	}
	logging.Get(logging.CategoryRegistry).Info("unregistered skill: %s", skillID)
}

// OnOwnerDied processes a {owner_died, proc_ref} notification exactly
// once: transition to skill_lazy if config is known, else remove
// (spec §4.1).
func (r *Registry) OnOwnerDied(skillID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, e := range r.entries {
		if e.skillID != skillID {
			continue
		}
		if e.config.Command != "" {
			e.owner = gwtypes.OwnerSkillLazy
			e.procRef = nil
		} else {
			delete(r.entries, name)
		}
	}
	logging.Get(logging.CategoryRegistry).Warn("owner died for skill %s", skillID)
}

// Lookup resolves a tool name to its current owner. It never blocks on
// spawning: a stale skill_running record whose process has died is
// atomically downgraded to skill_lazy (or removed) before returning.
func (r *Registry) Lookup(name string) Lookup {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return Lookup{Found: false}
	}

	if e.owner == gwtypes.OwnerSkillRunning && r.liveness != nil && !r.liveness.IsAlive(e.procRef) {
		if e.config.Command != "" {
			e.owner = gwtypes.OwnerSkillLazy
			e.procRef = nil
		} else {
			delete(r.entries, name)
			return Lookup{Found: false}
		}
	}

	return Lookup{
		Found:   true,
		Owner:   e.owner,
		Handler: e.handler,
		SkillID: e.skillID,
		Config:  e.config,
		ProcRef: e.procRef,
	}
}

// ListAll returns every descriptor whose owning process is alive (or
// internal, or lazily-spawnable), sorted by name (spec §4.1).
func (r *Registry) ListAll() []gwtypes.ToolDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]gwtypes.ToolDescriptor, 0, len(r.entries))
	for name, e := range r.entries {
		if e.owner == gwtypes.OwnerSkillRunning && r.liveness != nil && !r.liveness.IsAlive(e.procRef) {
			if e.config.Command != "" {
				e.owner = gwtypes.OwnerSkillLazy
				e.procRef = nil
			} else {
				delete(r.entries, name)
				continue
			}
		}
		out = append(out, gwtypes.ToolDescriptor{
			Name:    name,
			Owner:   e.owner,
			SkillID: e.skillID,
			Schema:  e.schema,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ReloadSkills is the removal half of the hot-reload operation
// (spec §9), done atomically under the registry lock. Internal tools
// are untouched; tools of skill ids not in keep are unregistered, and
// tools of kept skills, running or lazy, are left alone so in-flight
// calls are not interrupted. It registers nothing: tools of newly
// added skills are registered by the caller via RegisterSkillTools.
func (r *Registry) ReloadSkills(keep map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, e := range r.entries {
		if e.skillID == "" {
			continue
		}
		if !keep[e.skillID] {
			delete(r.entries, name)
		}
	}
}

func errAlreadyRegistered(name string) error {
	return &alreadyRegisteredError{name: name}
}

type alreadyRegisteredError struct{ name string }

func (e *alreadyRegisteredError) Error() string {
	return "tool already registered: " + e.name
}
