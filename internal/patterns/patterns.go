// Package patterns implements the emergence pattern surface (spec §3
// Pattern, SPEC_FULL.md supplemented features): a deliberately thin
// collaborator-facing store, exposed only through the dispatcher's
// `reflect` and `impact` operations, mirroring the usage-count /
// success-count fields the teacher already tracks per tool.
package patterns

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"mimogate/internal/gwtypes"
)

// Store tracks every observed pattern signature and its outcomes.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*gwtypes.Pattern
	bySig map[string]string // signature -> pattern id
}

// New creates an empty pattern store.
func New() *Store {
	return &Store{
		byID:  make(map[string]*gwtypes.Pattern),
		bySig: make(map[string]string),
	}
}

// Reflect records one observation of signature, creating a new pattern
// record on first sight or incrementing an existing one's counters.
// This backs the dispatcher's `reflect` operation.
func (s *Store) Reflect(signature string, success bool) gwtypes.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.bySig[signature]
	if !ok {
		id = newPatternID(signature)
		s.bySig[signature] = id
		s.byID[id] = &gwtypes.Pattern{PatternID: id, Signature: signature}
	}
	p := s.byID[id]
	p.UsageCount++
	if success {
		p.SuccessCount++
	}
	return *p
}

// Impact reports a pattern's current usage/success counters; ok is
// false when no pattern has that id. Promotion eligibility is reported
// by EligibleForPromotion (backs the dispatcher's `impact` operation).
func (s *Store) Impact(patternID string) (gwtypes.Pattern, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[patternID]
	if !ok {
		return gwtypes.Pattern{}, false
	}
	return *p, true
}

// Promote marks a pattern as promoted, making it directly callable
// under callableAs, once its usage has earned it (spec §3 Pattern).
func (s *Store) Promote(patternID, callableAs string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[patternID]
	if !ok {
		return false
	}
	p.Promoted = true
	p.CallableAs = callableAs
	return true
}

// PromotionThreshold is the usage count at which a pattern with a
// success rate of at least half becomes eligible for promotion.
const PromotionThreshold = 10

// EligibleForPromotion reports whether a pattern has enough usage and
// a success rate of at least half to be promoted.
func (s *Store) EligibleForPromotion(patternID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[patternID]
	if !ok || p.UsageCount < PromotionThreshold {
		return false
	}
	return float64(p.SuccessCount)/float64(p.UsageCount) >= 0.5
}

func newPatternID(signature string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(signature))
	return fmt.Sprintf("pat_%x_%x", h.Sum32(), time.Now().UnixNano())
}
