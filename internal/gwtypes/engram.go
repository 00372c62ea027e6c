// Package gwtypes holds the shared data model of the memory-and-tool
// gateway: engrams, working-memory items, triples, tool descriptors,
// skill records, and query/router records (spec §3).
package gwtypes

import "time"

// Category classifies an Engram (spec §3).
type Category string

const (
	CategoryFact        Category = "fact"
	CategoryObservation Category = "observation"
	CategoryAction      Category = "action"
	CategoryPlan        Category = "plan"
)

// MaxContentBytes is the hard cap on Engram.Content (spec §3, §8).
const MaxContentBytes = 100 * 1024

// DefaultImportance is applied when a store call omits importance.
const DefaultImportance = 0.5

// Engram is a single persisted memory record.
type Engram struct {
	ID              string
	Content         string
	Category        Category
	Importance      float64
	CreatedAt       time.Time
	LastAccessedAt  time.Time
	AccessCount     int64
	DecayRate       float64
	Protected       bool
	Embedding       []float32
	EmbeddingInt8   []int8
	EmbeddingBinary []byte
	Metadata        map[string]any
	Supersedes      string // optional prior engram id
	SupersededBy    string // set once another engram supersedes this one
}

// Clamp enforces the importance invariant in place.
func (e *Engram) Clamp() {
	if e.Importance < 0 {
		e.Importance = 0
	}
	if e.Importance > 1 {
		e.Importance = 1
	}
	if e.DecayRate <= 0 {
		e.DecayRate = 1.0
	}
}

// SessionTag returns metadata["session_tag"] as a string, if present.
func (e *Engram) SessionTag() string {
	return stringMeta(e.Metadata, "session_tag")
}

// AgentType returns metadata["agent_type"] as a string, if present.
func (e *Engram) AgentType() string {
	return stringMeta(e.Metadata, "agent_type")
}

func stringMeta(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SupersedeKind enumerates the reasons one engram replaces another
// (spec §4.5.7).
type SupersedeKind string

const (
	SupersedeUpdate     SupersedeKind = "update"
	SupersedeCorrection SupersedeKind = "correction"
	SupersedeRefinement SupersedeKind = "refinement"
)

// WorkingItem is a short-lived working-memory tuple (spec §4.5.1).
type WorkingItem struct {
	ID         string
	Content    string
	Category   Category
	Importance float64
	InsertedAt time.Time
}

// Scored pairs a candidate Engram with a similarity or ranking score.
type Scored struct {
	Engram     Engram
	Similarity float64
	Score      float64
}
