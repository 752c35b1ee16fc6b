// Package survivor implements the survivor selector of spec §4.7: for
// each equivalence class produced by the union-find forest, it picks
// the one row to keep by the spec's four-level lexicographic
// priority and returns the rest for deletion.
package survivor

import (
	"context"
	"sort"

	"github.com/qwant/addresses-deduplicator/internal/config"
	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/normalize"
	"github.com/qwant/addresses-deduplicator/internal/store"
)

// Selector picks the survivor of an equivalence class.
type Selector struct {
	st   *store.Store
	norm normalize.Normalizer
	cfg  config.Config
}

// New builds a Selector reading source rank from cfg.
func New(st *store.Store, norm normalize.Normalizer, cfg config.Config) *Selector {
	return &Selector{st: st, norm: norm, cfg: cfg}
}

// candidate bundles a fetched address with the fields the priority
// rules need, computed once per id rather than per comparison.
type candidate struct {
	addr         model.Address
	sourceRank   int
	nonNull      int
	streetLength int
}

// Select fetches every member of ids, ranks them by the spec §4.7
// priority, and returns the survivor plus every other id in the
// class, ordered best-first by that same priority.
func (s *Selector) Select(ctx context.Context, ids []int64) (survivorID int64, nonSurvivors []int64, err error) {
	if len(ids) == 0 {
		return 0, nil, nil
	}

	candidates := make([]candidate, 0, len(ids))
	for _, id := range ids {
		a, ferr := s.st.Fetch(ctx, id)
		if ferr != nil {
			return 0, nil, ferr
		}
		candidates = append(candidates, candidate{
			addr:         a,
			sourceRank:   s.cfg.SourceRankIndex(string(a.Source)),
			nonNull:      a.NonNullFieldCount(),
			streetLength: normalisedStreetLength(s.norm, a.Street),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return betterCandidate(candidates[i], candidates[j])
	})

	survivorID = candidates[0].addr.ID
	nonSurvivors = make([]int64, 0, len(ids)-1)
	for _, c := range candidates[1:] {
		nonSurvivors = append(nonSurvivors, c.addr.ID)
	}
	return survivorID, nonSurvivors, nil
}

// betterCandidate reports whether x should be preferred over y under
// the spec §4.7 priority: source rank, then non-null field count,
// then shortest normalised street, then smallest id.
func betterCandidate(x, y candidate) bool {
	if x.sourceRank != y.sourceRank {
		return x.sourceRank < y.sourceRank
	}
	if x.nonNull != y.nonNull {
		return x.nonNull > y.nonNull
	}
	if x.streetLength != y.streetLength {
		return x.streetLength < y.streetLength
	}
	return x.addr.ID < y.addr.ID
}

// normalisedStreetLength returns the length of the normaliser's
// canonical expansion of street, or the raw street's length if the
// normaliser returns nothing.
func normalisedStreetLength(norm normalize.Normalizer, street string) int {
	expansions := norm.Expand(street)
	if len(expansions) == 0 {
		return len(street)
	}
	shortest := len(expansions[0])
	for _, e := range expansions[1:] {
		if len(e) < shortest {
			shortest = len(e)
		}
	}
	return shortest
}
