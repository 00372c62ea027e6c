package memory

import (
	"math"
	"time"

	"mimogate/internal/gwtypes"
)

// Weights is one (w_s, w_r, w_i, w_p) preset for the hybrid ranker
// (spec §4.5.4): score = w_s*similarity + w_r*recency + w_i*importance + w_p*popularity.
type Weights struct {
	Similarity float64
	Recency    float64
	Importance float64
	Popularity float64
}

// Preset names the five fixed weight presets the spec requires.
type Preset string

const (
	PresetBalanced  Preset = "balanced"
	PresetSemantic  Preset = "semantic"
	PresetRecent    Preset = "recent"
	PresetImportant Preset = "important"
	PresetPopular   Preset = "popular"
)

var presets = map[Preset]Weights{
	PresetBalanced:  {Similarity: 0.45, Recency: 0.25, Importance: 0.20, Popularity: 0.10},
	PresetSemantic:  {Similarity: 0.85, Recency: 0.05, Importance: 0.05, Popularity: 0.05},
	PresetRecent:    {Similarity: 0.20, Recency: 0.55, Importance: 0.15, Popularity: 0.10},
	PresetImportant: {Similarity: 0.20, Recency: 0.10, Importance: 0.60, Popularity: 0.10},
	PresetPopular:   {Similarity: 0.20, Recency: 0.10, Importance: 0.10, Popularity: 0.60},
}

// WeightsFor resolves a preset name, defaulting to balanced for an
// unrecognised or empty name.
func WeightsFor(p Preset) Weights {
	if w, ok := presets[p]; ok {
		return w
	}
	return presets[PresetBalanced]
}

// recencyHalfLifeDays is the 7-day time constant of the recency term
// (spec §4.5.4): recency = exp(-active_days/7), which halves about
// every 4.85 days (7·ln 2).
const recencyHalfLifeDays = 7.0

// Rank scores and sorts candidates in place, descending by score, using
// the given weights. Similarity must already be populated on each
// candidate (e.g. from an ANN search); Rank fills in Score.
func Rank(candidates []gwtypes.Scored, w Weights, now time.Time) []gwtypes.Scored {
	for i := range candidates {
		e := candidates[i].Engram
		activeDays := activeDaysSince(e.LastAccessedAt, now)
		recency := math.Exp(-activeDays / recencyHalfLifeDays)
		popularity := math.Log(1+float64(e.AccessCount)) * 0.1
		candidates[i].Score = w.Similarity*candidates[i].Similarity +
			w.Recency*recency +
			w.Importance*e.Importance +
			w.Popularity*popularity
	}
	sortScoredByScore(candidates)
	return candidates
}

// activeDaysSince measures elapsed days, counting only calendar days
// the gateway was actually exercised is out of scope for a stateless
// ranker call; it approximates "active days" as wall-clock days since
// last access, which is the conservative (faster-decaying) reading
// when no activity calendar is tracked.
func activeDaysSince(last time.Time, now time.Time) float64 {
	if last.IsZero() {
		return 0
	}
	d := now.Sub(last).Hours() / 24.0
	if d < 0 {
		d = 0
	}
	return d
}

func sortScoredByScore(s []gwtypes.Scored) {
	less := func(a, b gwtypes.Scored) bool {
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Engram.ID > b.Engram.ID // ties: descending id, newest first
	}
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
