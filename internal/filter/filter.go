// Package filter implements the source-filter predicate pipeline of
// spec §4.3: rows are pre-rejected before they ever reach the hash
// indexer.
package filter

import (
	"strings"

	"github.com/qwant/addresses-deduplicator/internal/config"
	"github.com/qwant/addresses-deduplicator/internal/model"
)

// Decision is the outcome of running a row through the filter chain.
type Decision int

const (
	// DecisionKeep means the row proceeds to indexing.
	DecisionKeep Decision = iota
	// DecisionExclude means the row is dropped silently (not emitted,
	// not indexed, not logged as an error).
	DecisionExclude
	// DecisionError means the row is dropped and recorded in
	// addresses_errors with a kind tag.
	DecisionError
)

// Result pairs a Decision with the error kind to record, if any.
type Result struct {
	Decision Decision
	Kind     model.RejectKind
}

// Chain evaluates spec §4.3's recognised options for one option set.
// The pipeline builds a single Chain from Config.Filters and applies
// it to rows of every source; options cannot differ between sources.
type Chain struct {
	opts config.FilterOptions
}

// New builds the filter chain for one option set.
func New(opts config.FilterOptions) *Chain {
	return &Chain{opts: opts}
}

// Apply runs a.  If opts.SkipSourceFilters is set, every row is kept
// — "disable all filters; raw pass-through" (spec §4.3).
func (c *Chain) Apply(a model.Address) Result {
	if c.opts.SkipSourceFilters {
		return Result{Decision: DecisionKeep}
	}

	if c.opts.MinStreetLength > 0 {
		if len(strings.TrimSpace(a.Street)) < c.opts.MinStreetLength {
			return Result{Decision: DecisionExclude}
		}
	}

	if c.opts.RequireNumber && strings.TrimSpace(a.Number) == "" {
		return Result{Decision: DecisionExclude}
	}

	if c.opts.BBox != nil && !c.opts.BBox.Contains(a.Lat, a.Lon) {
		return Result{Decision: DecisionExclude}
	}

	return Result{Decision: DecisionKeep}
}
