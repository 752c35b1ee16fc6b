// Package rank implements the pair ranker of spec §4.6: a stateless,
// CPU-bound scorer that turns a candidate pair into a SAME/DIFFERENT/
// UNKNOWN verdict plus the metrics behind it. It is grounded on
// internal/parser/address_matcher.go's threshold-driven scoring,
// which combines the same two string-similarity libraries
// (agnivade/levenshtein, xrash/smetrics) behind a config-driven
// weight, generalised here from a fuzzy admin-path score into the
// fixed decision table spec.md prescribes.
package rank

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"github.com/qwant/addresses-deduplicator/internal/config"
	"github.com/qwant/addresses-deduplicator/internal/geo"
	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/normalize"
)

// jaroWinklerBoostThreshold and jaroWinklerPrefixSize are the
// smetrics.JaroWinkler parameters the teacher uses in sim() for
// admin-unit name comparison; the ranker reuses them verbatim for the
// secondary confidence score attached to UNKNOWN verdicts.
const (
	jaroWinklerBoostThreshold = 0.7
	jaroWinklerPrefixSize     = 4
)

// Ranker scores candidate pairs against the thresholds of spec §4.6.
type Ranker struct {
	norm normalize.Normalizer
	th   config.Thresholds
}

// New builds a Ranker backed by norm using cfg's thresholds.
func New(norm normalize.Normalizer, cfg config.Config) *Ranker {
	return &Ranker{norm: norm, th: cfg.Thresholds}
}

// Score computes the verdict and supporting metrics for the pair (a,b).
func (r *Ranker) Score(pair model.Pair, a, b model.Address) model.RankedPair {
	d := geo.HaversineMetres(a.Lat, a.Lon, b.Lat, b.Lon)

	sa := tokenSet(r.norm.Expand(a.Street))
	sb := tokenSet(r.norm.Expand(b.Street))
	j := jaccard(sa, sb)

	numberA := strings.ToLower(strings.TrimSpace(a.Number))
	numberB := strings.ToLower(strings.TrimSpace(b.Number))
	bothNumbersPresent := numberA != "" && numberB != ""
	nMatch := !bothNumbersPresent || numberA == numberB

	pMatch := fieldMatchOrAbsent(a.Postcode, b.Postcode)
	cMatch := cityMatch(r.norm, a.City, b.City)

	rp := model.RankedPair{
		Pair:           pair,
		Jaccard:        j,
		DistanceMetres: d,
		NumberMatch:    nMatch,
		PostcodeMatch:  pMatch,
		CityMatch:      cMatch,
	}
	rp.JaroWinkler = jaroWinklerConfidence(a.Street, b.Street)

	switch {
	case !nMatch:
		rp.Verdict = model.VerdictDifferent
	case d > r.th.DMaxMetres:
		rp.Verdict = model.VerdictDifferent
	case j == 1 && d <= r.th.DExactMetres:
		rp.Verdict = model.VerdictSame
	case j >= r.th.JHigh && pMatch && cMatch:
		rp.Verdict = model.VerdictSame
	case j >= r.th.JLow && d <= r.th.DStrictMetres:
		rp.Verdict = model.VerdictSame
	default:
		rp.Verdict = model.VerdictUnknown
	}

	return rp
}

// tokenSet unions the whitespace-split tokens of every expansion
// string the normaliser returns for a field.
func tokenSet(expansions []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, exp := range expansions {
		for _, tok := range strings.Fields(exp) {
			set[tok] = struct{}{}
		}
	}
	return set
}

// jaccard computes |A ∩ B| / |A ∪ B|, treating two empty sets as
// having no overlap (j=0) rather than dividing by zero.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// fieldMatchOrAbsent reports whether two trimmed field values are
// equal, treating either value being empty as a match (spec §4.6
// p_match / c_match: "equal OR one absent").
func fieldMatchOrAbsent(x, y string) bool {
	x, y = strings.TrimSpace(x), strings.TrimSpace(y)
	if x == "" || y == "" {
		return true
	}
	return strings.EqualFold(x, y)
}

// cityMatch compares two city names under the normaliser's Expand,
// so "Paris" and "paris" or an abbreviated form still match.
func cityMatch(norm normalize.Normalizer, x, y string) bool {
	x, y = strings.TrimSpace(x), strings.TrimSpace(y)
	if x == "" || y == "" {
		return true
	}
	ex, ey := norm.Expand(x), norm.Expand(y)
	for _, a := range ex {
		for _, b := range ey {
			if a == b {
				return true
			}
		}
	}
	return false
}

// jaroWinklerConfidence combines Jaro-Winkler similarity and
// normalised Levenshtein distance into a single secondary confidence
// score, the same blend address_matcher.go's sim() uses for admin-
// unit names.
func jaroWinklerConfidence(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" || b == "" {
		return 0
	}

	jw := smetrics.JaroWinkler(a, b, jaroWinklerBoostThreshold, jaroWinklerPrefixSize)

	ld := levenshtein.ComputeDistance(a, b)
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	lev := 1.0 - float64(ld)/float64(denom)

	return 0.7*jw + 0.3*lev
}
