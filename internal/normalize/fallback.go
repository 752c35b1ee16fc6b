package normalize

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// Fallback implements spec §4.2's fallback normaliser: lowercase,
// diacritic strip, punctuation collapse, plus a small abbreviation
// table so common French street-type abbreviations still expand even
// without the external library (needed for scenarios like S2 in spec
// §8, "Bd."/"Dr." style abbreviations).
type Fallback struct {
	punctuation *regexp.Regexp
	whitespace  *regexp.Regexp
	abbrev      map[string]string
}

// NewFallback builds the fallback normaliser with its abbreviation
// table, mirroring the teacher's map-based expansion tables
// (adminLevelMap, streetTypeMap in text_normalizer_v2.go) but for
// French street vocabulary instead of Vietnamese administrative terms.
func NewFallback() *Fallback {
	return &Fallback{
		punctuation: regexp.MustCompile(`[.,;:'’\-/]+`),
		whitespace:  regexp.MustCompile(`\s+`),
		abbrev: map[string]string{
			"bd":    "boulevard",
			"bld":   "boulevard",
			"av":    "avenue",
			"ave":   "avenue",
			"dr":    "docteur",
			"dr.":   "docteur",
			"st":    "saint",
			"ste":   "sainte",
			"fg":    "faubourg",
			"pl":    "place",
			"sq":    "square",
			"all":   "allee",
			"rte":   "route",
			"chem":  "chemin",
			"imp":   "impasse",
			"gal":   "general",
			"cdt":   "commandant",
			"mal":   "marechal",
			"pte":   "porte",
			"q":     "quai",
		},
	}
}

// clean lowercases, strips diacritics (via the same go-unidecode
// library the teacher uses), collapses punctuation to spaces and
// normalises whitespace — the dual-normalisation step of spec §4.2.
func (f *Fallback) clean(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	noPunct := f.punctuation.ReplaceAllString(lower, " ")
	ascii := unidecode.Unidecode(noPunct)
	collapsed := f.whitespace.ReplaceAllString(ascii, " ")
	return strings.TrimSpace(collapsed)
}

// Expand returns the single canonical expansion reachable without a
// real abbreviation dictionary: the cleaned string with known street-
// type abbreviations expanded token-by-token.
func (f *Fallback) Expand(s string) []string {
	cleaned := f.clean(s)
	if cleaned == "" {
		return nil
	}
	tokens := strings.Fields(cleaned)
	for i, tok := range tokens {
		if full, ok := f.abbrev[tok]; ok {
			tokens[i] = full
		}
	}
	return []string{strings.Join(tokens, " ")}
}

// NearDupeHashes implements the fallback hash-key algorithm of spec
// §4.2: {first_token_of_street + "|" + normalised_number} together
// with {3-char shingles of first two street tokens + "|" + number}.
func (f *Fallback) NearDupeHashes(fields []Field) []string {
	var street, number string
	for _, fld := range fields {
		switch fld.Label {
		case LabelRoad:
			street = fld.Value
		case LabelHouseNumber:
			number = fld.Value
		}
	}

	normalizedStreet := f.clean(street)
	normalizedNumber := normalizeNumber(number)
	if normalizedStreet == "" {
		return nil
	}
	tokens := strings.Fields(normalizedStreet)

	keys := make([]string, 0, 4)
	keys = append(keys, tokens[0]+"|"+normalizedNumber)

	shingleSource := tokens[0]
	if len(tokens) > 1 {
		shingleSource = tokens[0] + tokens[1]
	}
	for _, shingle := range shingles(shingleSource, 3) {
		keys = append(keys, shingle+"|"+normalizedNumber)
	}

	return dedupe(keys)
}

// normalizeNumber lowercases a house number so "12B" and "12b" share
// a collision key while leaving the digits untouched.
func normalizeNumber(number string) string {
	return strings.ToLower(strings.TrimSpace(number))
}

// shingles returns every contiguous run of n runes in s. Used to
// generate near-dupe hash keys from street-name prefixes that are too
// short or too noisy to match token-for-token.
func shingles(s string, n int) []string {
	runes := []rune(s)
	if len(runes) < n {
		return []string{s}
	}
	out := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		out = append(out, string(runes[i:i+n]))
	}
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
