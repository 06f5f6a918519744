// Package score produces the per-message signal quality numbers: the HDRB
// salience score from engagement counters, a pattern-based sentiment label,
// and the composite confidence optionally adjusted by channel reputation.
package score

import (
	"math"
)

// Engagement carries the raw counters off a message. Missing counters are
// zero.
type Engagement struct {
	Forwards  int
	Reactions int
	Replies   int
	Views     int
}

// HDRBScorer turns engagement into a salience score on [0, 100]. The raw
// information-content combination is a tunable; callers get both the raw IC
// and the normalized score.
type HDRBScorer struct {
	maxIC float64
}

// DefaultMaxIC is the raw-IC value that maps to a score of 100.
const DefaultMaxIC = 25.0

// NewHDRBScorer builds a scorer; maxIC <= 0 selects the default.
func NewHDRBScorer(maxIC float64) *HDRBScorer {
	if maxIC <= 0 {
		maxIC = DefaultMaxIC
	}
	return &HDRBScorer{maxIC: maxIC}
}

// CalculateScore returns (raw information content, normalized score in
// [0,100]). Forwards dominate: a forwarded message spread beyond its origin
// audience, which reactions and views do not prove.
func (h *HDRBScorer) CalculateScore(e Engagement) (rawIC, normalized float64) {
	f := math.Max(0, float64(e.Forwards))
	r := math.Max(0, float64(e.Reactions))
	p := math.Max(0, float64(e.Replies))
	v := math.Max(0, float64(e.Views))

	rawIC = 2.5*math.Log1p(f) + 1.5*math.Log1p(r) + 2.0*math.Log1p(p) + 0.5*math.Log1p(v/100)

	normalized = rawIC / h.maxIC * 100
	if normalized > 100 {
		normalized = 100
	}
	if normalized < 0 {
		normalized = 0
	}
	return rawIC, normalized
}
