// Package candidate implements the candidate generator of spec §4.5:
// it scans the secondary index grouped by collision key and emits
// every unordered pair within the configured distance bound, fusing
// out oversized key groups and deduplicating pairs seen from more
// than one key with a bloom filter.
package candidate

import (
	"context"
	"encoding/binary"
	"hash"
	"hash/fnv"

	"go.uber.org/zap"

	bloomfilter "github.com/holiman/bloomfilter/v2"

	"github.com/qwant/addresses-deduplicator/internal/config"
	"github.com/qwant/addresses-deduplicator/internal/geo"
	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/store"
)

// bloomFalsePositiveRate bounds how often the pair-seen filter reports
// a pair it has never seen as already seen; such a pair is skipped
// under every key it shares and is never scored. A pair that was seen
// is always recognised, so no pair is scored twice.
const bloomFalsePositiveRate = 0.01

// minBloomCapacity keeps small test runs from sizing a filter so
// small that every insert collides.
const minBloomCapacity = 1 << 16

type coord struct {
	lat, lon float64
}

// Generator streams pair candidates out of the collision-key index.
type Generator struct {
	st               *store.Store
	distMax          float64
	groupCap         int
	logger           *zap.Logger
	onOversizedGroup func()
}

// New builds a Generator reading D_max and GROUP_CAP from cfg.
func New(st *store.Store, cfg config.Config, logger *zap.Logger) *Generator {
	return &Generator{
		st:       st,
		distMax:  cfg.Thresholds.DMaxMetres,
		groupCap: cfg.GroupCap,
		logger:   logger,
	}
}

// OnOversizedGroup registers a callback invoked once per skipped
// oversized group, in addition to the mandatory log line — used by
// the pipeline to feed the /stats oversized-group counter
// (SPEC_FULL.md §11.1).
func (g *Generator) OnOversizedGroup(fn func()) {
	g.onOversizedGroup = fn
}

// Run scans the index ordered by key, grouping consecutive rows, and
// writes every admissible pair to out. It closes no channel — the
// caller owns out's lifetime.
func (g *Generator) Run(ctx context.Context, out chan<- model.Pair) error {
	total, err := g.st.Count(ctx)
	if err != nil {
		return err
	}
	capacity := uint64(total) * 8
	if capacity < minBloomCapacity {
		capacity = minBloomCapacity
	}
	seen, err := bloomfilter.NewOptimal(capacity, bloomFalsePositiveRate)
	if err != nil {
		return err
	}

	coords := make(map[int64]coord)
	coordOf := func(id int64) (coord, error) {
		if c, ok := coords[id]; ok {
			return c, nil
		}
		a, err := g.st.Fetch(ctx, id)
		if err != nil {
			return coord{}, err
		}
		c := coord{lat: a.Lat, lon: a.Lon}
		coords[id] = c
		return c, nil
	}

	rows, err := g.st.ScanCollisionKeysOrdered(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	var curKey string
	group := make([]int64, 0, 16)
	haveKey := false

	emitGroup := func() error {
		defer func() { group = group[:0] }()

		if len(group) < 2 {
			return nil
		}
		if len(group) > g.groupCap {
			g.logger.Info("oversized_group", zap.String("key", curKey), zap.Int("size", len(group)))
			if g.onOversizedGroup != nil {
				g.onOversizedGroup()
			}
			return nil
		}

		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a > b {
					a, b = b, a
				}

				h := pairHash(a, b)
				if seen.Contains(h) {
					continue
				}
				seen.Add(h)

				ca, err := coordOf(a)
				if err != nil {
					return err
				}
				cb, err := coordOf(b)
				if err != nil {
					return err
				}

				samePoint := geo.CoordEqual(ca.lat, cb.lat) && geo.CoordEqual(ca.lon, cb.lon)
				if !samePoint && geo.HaversineMetres(ca.lat, ca.lon, cb.lat, cb.lon) > g.distMax {
					continue
				}

				select {
				case out <- model.Pair{A: a, B: b}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	}

	for rows.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		kr, err := rows.Row()
		if err != nil {
			return err
		}

		if haveKey && kr.Key != curKey {
			if err := emitGroup(); err != nil {
				return err
			}
		}
		curKey = kr.Key
		haveKey = true
		group = append(group, kr.RowID)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return emitGroup()
}

// pairHash hashes an ordered (a,b) pair into the hash.Hash64 the
// bloom filter expects.
func pairHash(a, b int64) hash.Hash64 {
	h := fnv.New64a()
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(a))
	binary.BigEndian.PutUint64(buf[8:16], uint64(b))
	h.Write(buf[:])
	return h
}
