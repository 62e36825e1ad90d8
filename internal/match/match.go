// Package match decides whether a face embedding belongs to a known person.
package match

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// DefaultThreshold is the minimum cosine similarity for a match.
const DefaultThreshold = 0.70

// Candidate is a known person's representative embedding.
type Candidate struct {
	PersonID  uuid.UUID
	Seq       int64 // creation order; lower wins ties
	Embedding []float32
}

// Result is the outcome of one Match call. Score is the best similarity seen,
// even when it did not clear the threshold.
type Result struct {
	PersonID uuid.UUID
	Score    float64
	Matched  bool
}

// Matcher is a pure nearest-candidate classifier over cosine similarity.
type Matcher struct {
	threshold float64
}

// NewMatcher returns a Matcher; threshold must lie in [0,1].
func NewMatcher(threshold float64) (*Matcher, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("match threshold must be in [0,1], got %v", threshold)
	}
	return &Matcher{threshold: threshold}, nil
}

// Threshold is the minimum similarity Match accepts.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match returns the candidate with the highest similarity to embedding if that
// similarity is at least the threshold. Equal scores resolve to the lowest Seq.
func (m *Matcher) Match(embedding []float32, candidates []Candidate) Result {
	var (
		best    Result
		bestSeq int64
		found   bool
	)

	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		score := CosineSimilarity(embedding, c.Embedding)
		if math.IsNaN(score) {
			continue
		}
		if !found || score > best.Score || (score == best.Score && c.Seq < bestSeq) {
			best = Result{PersonID: c.PersonID, Score: score}
			bestSeq = c.Seq
			found = true
		}
	}

	if !found {
		return Result{}
	}
	if best.Score < m.threshold {
		return Result{Score: best.Score}
	}
	best.Matched = true
	return best
}

// CosineSimilarity is the normalized dot product of a and b.
// Mismatched lengths, zero vectors and vectors holding NaN or Inf score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 || !finite(normA) || !finite(normB) {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if !finite(sim) {
		return 0
	}
	return sim
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
