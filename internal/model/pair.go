package model

// Verdict is the ranker's decision for a candidate pair (spec §4.6).
type Verdict string

const (
	VerdictSame      Verdict = "SAME"
	VerdictDifferent Verdict = "DIFFERENT"
	VerdictUnknown   Verdict = "UNKNOWN"
)

// Pair is an ordered candidate pair, a < b, flowing through the
// candidate-generator -> ranker channel (spec §3).
type Pair struct {
	A int64
	B int64
}

// Normalize returns p with IDs ordered a < b, matching the spec's
// definition of a pair candidate.
func (p Pair) Normalize() Pair {
	if p.A > p.B {
		return Pair{A: p.B, B: p.A}
	}
	return p
}

// RankedPair is a Pair plus the ranker's verdict and the diagnostic
// scores used to reach it (spec §4.6, plus the review-export
// supplement of SPEC_FULL.md §11.1).
type RankedPair struct {
	Pair
	Verdict         Verdict
	Jaccard         float64
	JaroWinkler     float64
	DistanceMetres  float64
	NumberMatch     bool
	PostcodeMatch   bool
	CityMatch       bool
}
