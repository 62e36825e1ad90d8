package match

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

func candidate(seq int64, v ...float32) Candidate {
	return Candidate{PersonID: uuid.New(), Seq: seq, Embedding: v}
}

func TestNewMatcherValidatesThreshold(t *testing.T) {
	for _, th := range []float64{-0.1, 1.01, math.NaN()} {
		if _, err := NewMatcher(th); err == nil {
			t.Errorf("NewMatcher(%v) expected error", th)
		}
	}
	for _, th := range []float64{0, 0.7, 1} {
		if _, err := NewMatcher(th); err != nil {
			t.Errorf("NewMatcher(%v) error = %v", th, err)
		}
	}
}

func TestMatchEmptyRoster(t *testing.T) {
	m, _ := NewMatcher(DefaultThreshold)
	res := m.Match([]float32{1, 0, 0}, nil)
	if res.Matched || res.PersonID != uuid.Nil {
		t.Errorf("Match(empty) = %+v, want no match", res)
	}
}

func TestMatchPicksMaximum(t *testing.T) {
	m, _ := NewMatcher(0.5)
	far := candidate(1, 0, 1, 0)
	near := candidate(2, 1, 0.1, 0)
	mid := candidate(3, 1, 1, 0)

	res := m.Match([]float32{1, 0, 0}, []Candidate{far, mid, near})
	if !res.Matched {
		t.Fatalf("Match() = %+v, want match", res)
	}
	if res.PersonID != near.PersonID {
		t.Errorf("Match() picked %v, want nearest %v", res.PersonID, near.PersonID)
	}
}

func TestMatchBelowThreshold(t *testing.T) {
	m, _ := NewMatcher(0.9)
	c := candidate(1, 1, 1, 0) // cos = 0.707

	res := m.Match([]float32{1, 0, 0}, []Candidate{c})
	if res.Matched {
		t.Fatalf("Match() = %+v, want no match", res)
	}
	if res.PersonID != uuid.Nil {
		t.Errorf("PersonID = %v, want nil on no match", res.PersonID)
	}
	if math.Abs(res.Score-1/math.Sqrt2) > 1e-9 {
		t.Errorf("Score = %v, want best observed similarity", res.Score)
	}
}

func TestMatchThresholdIsInclusive(t *testing.T) {
	m, _ := NewMatcher(1)
	c := candidate(1, 2, 0)

	if res := m.Match([]float32{3, 0}, []Candidate{c}); !res.Matched {
		t.Errorf("Match() at exactly threshold = %+v, want match", res)
	}
}

func TestMatchTieBreaksOnCreationOrder(t *testing.T) {
	m, _ := NewMatcher(0.5)
	older := candidate(1, 1, 0)
	newer := candidate(2, 1, 0)

	for _, roster := range [][]Candidate{{older, newer}, {newer, older}} {
		for i := 0; i < 5; i++ {
			res := m.Match([]float32{1, 0}, roster)
			if res.PersonID != older.PersonID {
				t.Fatalf("tie resolved to %v, want earliest %v", res.PersonID, older.PersonID)
			}
		}
	}
}

func TestMatchIsMagnitudeInvariant(t *testing.T) {
	m, _ := NewMatcher(0.99)
	c := candidate(1, 0.6, 0.8)

	for _, scale := range []float32{0.001, 1, 1000} {
		res := m.Match([]float32{0.6 * scale, 0.8 * scale}, []Candidate{c})
		if !res.Matched || math.Abs(res.Score-1) > 1e-6 {
			t.Errorf("scale %v: Match() = %+v, want score 1", scale, res)
		}
	}
}

func TestMatchSkipsFoldersWithoutEmbedding(t *testing.T) {
	m, _ := NewMatcher(0)
	folder := Candidate{PersonID: uuid.New(), Seq: 1}

	if res := m.Match([]float32{1, 0}, []Candidate{folder}); res.Matched {
		t.Errorf("Match() = %+v, folders must never match", res)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchIgnoresNonFiniteEmbeddings(t *testing.T) {
	m, _ := NewMatcher(DefaultThreshold)
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	t.Run("nan query never matches", func(t *testing.T) {
		dad := candidate(1, 1, 0, 0)
		res := m.Match([]float32{nan, 0, 0}, []Candidate{dad})
		if res.Matched || math.IsNaN(res.Score) {
			t.Errorf("Match() = %+v, want no match with finite score", res)
		}
	})

	t.Run("nan candidate does not hide later match", func(t *testing.T) {
		bad := candidate(1, nan, 1, 0)
		mom := candidate(2, 0, 1, 0)
		res := m.Match([]float32{0, 1, 0}, []Candidate{bad, mom})
		if !res.Matched || res.PersonID != mom.PersonID {
			t.Fatalf("Match() = %+v, want mom %v", res, mom.PersonID)
		}
		if math.Abs(res.Score-1) > 1e-9 {
			t.Errorf("Score = %v, want 1", res.Score)
		}
	})

	t.Run("inf candidate scores zero", func(t *testing.T) {
		if got := CosineSimilarity([]float32{1, 0}, []float32{inf, 0}); got != 0 {
			t.Errorf("CosineSimilarity(inf) = %v, want 0", got)
		}
	})
}
