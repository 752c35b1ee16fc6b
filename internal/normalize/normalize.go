// Package normalize implements the Normaliser interface of spec §4.2/
// §6: a pure function from raw address fields to canonical
// expansions and near-dupe collision-key hashes. Two implementations
// exist: a libpostal-backed one (internal/normalize/libpostal_cgo.go,
// built only with the cgo tag) and the spec's own fallback
// (internal/normalize/fallback.go), selected by Config.UseLibpostal
// and by whether libpostal actually initialised.
package normalize

import (
	"errors"

	"go.uber.org/zap"

	"github.com/qwant/addresses-deduplicator/internal/config"
)

// ErrNormaliserUnavailable is returned by NewStrict when libpostal is
// requested, fails to initialise, and the caller has disallowed the
// fallback (spec §6's "normaliser library missing and fallback
// disabled" — exit code 3 in cmd/deduplicator).
var ErrNormaliserUnavailable = errors.New("normaliser: libpostal unavailable and fallback disabled")

// Field is one labelled address component, mirroring libpostal's own
// (label, value) calling convention (spec §6 Normaliser).
type Field struct {
	Label string
	Value string
}

// Labels recognised by NearDupeHashes, per spec §6.
const (
	LabelHouseNumber = "house_number"
	LabelRoad        = "road"
	LabelCity        = "city"
	LabelPostcode    = "postcode"
)

// Normalizer is the engine's view of the external address-
// normalisation library: deterministic for a fixed library version,
// thread-safe after a one-time init (spec §6).
type Normalizer interface {
	// Expand returns all canonical expansions of a single string,
	// e.g. {"boulevard victor bordier"} for "Bd. Victor Bordier".
	Expand(s string) []string

	// NearDupeHashes returns the collision keys for an address: two
	// addresses that are plausibly duplicates share at least one.
	NearDupeHashes(fields []Field) []string
}

// New selects the libpostal-backed normaliser when cfg.UseLibpostal is
// set and the library initialises successfully; otherwise it falls
// back to the deterministic Fallback normaliser of spec §4.2. New
// never fails; NewStrict is the variant that reports
// ErrNormaliserUnavailable when the fallback is disabled, which
// cmd/deduplicator maps to exit code 3 (spec §6).
func New(cfg config.Config, logger *zap.Logger) Normalizer {
	if cfg.UseLibpostal {
		if n, err := newLibpostal(); err == nil {
			logger.Info("normaliser: using libpostal")
			return n
		} else {
			logger.Warn("normaliser: libpostal unavailable, falling back", zap.Error(err))
		}
	}
	logger.Info("normaliser: using fallback normaliser")
	return NewFallback()
}

// NewStrict behaves like New, except that when cfg.UseLibpostal is set,
// libpostal fails to initialise, and allowFallback is false, it returns
// ErrNormaliserUnavailable instead of silently falling back.
func NewStrict(cfg config.Config, logger *zap.Logger, allowFallback bool) (Normalizer, error) {
	if cfg.UseLibpostal {
		if n, err := newLibpostal(); err == nil {
			logger.Info("normaliser: using libpostal")
			return n, nil
		} else if !allowFallback {
			return nil, ErrNormaliserUnavailable
		} else {
			logger.Warn("normaliser: libpostal unavailable, falling back", zap.Error(err))
		}
	}
	logger.Info("normaliser: using fallback normaliser")
	return NewFallback(), nil
}
