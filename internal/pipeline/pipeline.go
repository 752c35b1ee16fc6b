// Package pipeline wires the deduplication engine's stages together
// the way main.go wires the teacher's HTTP service: config, logger and
// storage first, then every collaborator, then the run itself.
// Grounded on main.go's top-level ordering (loadConfig → initLogger →
// initMongoDB → components → routes → listen), generalised from an
// HTTP server bring-up sequence to a batch pipeline bring-up sequence
// (spec §5).
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/qwant/addresses-deduplicator/internal/audit"
	"github.com/qwant/addresses-deduplicator/internal/candidate"
	"github.com/qwant/addresses-deduplicator/internal/config"
	"github.com/qwant/addresses-deduplicator/internal/emit"
	"github.com/qwant/addresses-deduplicator/internal/filter"
	"github.com/qwant/addresses-deduplicator/internal/index"
	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/normalize"
	"github.com/qwant/addresses-deduplicator/internal/rank"
	"github.com/qwant/addresses-deduplicator/internal/statusserver"
	"github.com/qwant/addresses-deduplicator/internal/store"
	"github.com/qwant/addresses-deduplicator/internal/survivor"
	"github.com/qwant/addresses-deduplicator/internal/unionfind"
)

// pairWorkers is how many goroutines score pair candidates
// concurrently; it is the pipeline's CPU hot spot (spec §4.6).
func pairWorkers(cfg config.Config) int {
	if cfg.NumWorkers > 0 {
		return cfg.NumWorkers
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

// Pipeline owns every stage-4-to-8 collaborator for one run.
type Pipeline struct {
	st       *store.Store
	cfg      config.Config
	norm     normalize.Normalizer
	filters  *filter.Chain
	ranker   *rank.Ranker
	counters *statusserver.Counters
	audit    *audit.Sink
	logger   *zap.Logger
}

// New builds a Pipeline. audit may be nil (no sink configured);
// counters may be nil (no status server wired).
func New(st *store.Store, cfg config.Config, norm normalize.Normalizer, auditSink *audit.Sink, counters *statusserver.Counters, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		st:       st,
		cfg:      cfg,
		norm:     norm,
		filters:  filter.New(cfg.Filters),
		ranker:   rank.New(norm, cfg),
		counters: counters,
		audit:    auditSink,
		logger:   logger,
	}
}

// Ingest runs a through the source filter chain (spec §4.3) and, if
// kept, inserts it into the staging store (spec §4.1). It is stages
// 1-3 of the pipeline; importers call this once per source row.
func (p *Pipeline) Ingest(ctx context.Context, a model.Address) (store.InsertResult, error) {
	if res := p.filters.Apply(a); res.Decision == filter.DecisionExclude {
		return store.InsertResult{Status: store.InsertRejectedInvalid}, nil
	}

	result, err := p.st.Insert(ctx, a)
	if err != nil {
		return result, err
	}

	switch result.Status {
	case store.InsertRejectedDuplicate:
		p.audit.Record(audit.EventDuplicatePrimaryKey, fmt.Sprintf("lat=%f lon=%f street=%q", a.Lat, a.Lon, a.Street))
	case store.InsertRejectedInvalid:
		p.audit.Record(audit.EventInputMalformed, fmt.Sprintf("street=%q source=%q", a.Street, a.Source))
	}
	return result, nil
}

// Result is what RunDedup returns: the ids to drop and the pairs the
// ranker could not classify.
type Result struct {
	NonSurvivors map[int64]struct{}
	Unknowns     []model.RankedPair
}

// RunDedup executes stages 4-8's dedup core: hash index → candidate
// generation → ranking → union-find → survivor selection. The caller
// applies the returned Result via emit.Emitter. ctx cancellation is
// observed at every channel boundary (spec §5 "Cancellation").
func (p *Pipeline) RunDedup(ctx context.Context) (Result, error) {
	workers := pairWorkers(p.cfg)

	total, err := p.st.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("count staging rows: %w", err)
	}
	if p.counters != nil {
		p.counters.AddRowsScanned(total)
	}

	ix := index.New(p.st, p.norm, p.logger)
	if err := ix.Run(ctx, workers); err != nil {
		return Result{}, fmt.Errorf("hash index: %w", err)
	}

	gen := candidate.New(p.st, p.cfg, p.logger)
	gen.OnOversizedGroup(func() {
		if p.counters != nil {
			p.counters.IncOversizedGroupsSkipped()
		}
		p.audit.Record(audit.EventOversizedGroup, fmt.Sprintf("collision key group larger than group_cap=%d skipped", p.cfg.GroupCap))
	})

	pairCh := make(chan model.Pair, workers*4)
	genErrCh := make(chan error, 1)
	go func() {
		defer close(pairCh)
		genErrCh <- gen.Run(ctx, pairCh)
	}()

	sameCh := make(chan model.Pair, workers*4)
	var unknownsMu sync.Mutex
	var unknowns []model.RankedPair

	var rankWG sync.WaitGroup
	rankWG.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer rankWG.Done()
			p.rankWorker(ctx, pairCh, sameCh, &unknownsMu, &unknowns)
		}()
	}

	forest := unionfind.New()
	unionDone := make(chan struct{})
	go func() {
		defer close(unionDone)
		for pair := range sameCh {
			forest.Union(pair.A, pair.B)
		}
	}()

	rankWG.Wait()
	close(sameCh)
	<-unionDone

	if err := <-genErrCh; err != nil {
		return Result{}, fmt.Errorf("candidate generation: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	groups := forest.Groups()
	if p.counters != nil {
		p.counters.SetEquivalenceClasses(int64(len(groups)))
	}

	sel := survivor.New(p.st, p.norm, p.cfg)
	nonSurvivors := make(map[int64]struct{})
	for _, members := range groups {
		_, dropped, err := sel.Select(ctx, members)
		if err != nil {
			return Result{}, fmt.Errorf("survivor selection: %w", err)
		}
		for _, id := range dropped {
			nonSurvivors[id] = struct{}{}
		}
	}

	return Result{NonSurvivors: nonSurvivors, Unknowns: unknowns}, nil
}

// rankWorker scores pairs from in, forwarding SAME verdicts to same
// and collecting UNKNOWN verdicts under mu (spec §4.6: "stateless,
// runs on the worker pool").
func (p *Pipeline) rankWorker(ctx context.Context, in <-chan model.Pair, same chan<- model.Pair, mu *sync.Mutex, unknowns *[]model.RankedPair) {
	for pair := range in {
		select {
		case <-ctx.Done():
			return
		default:
		}

		a, err := p.st.Fetch(ctx, pair.A)
		if err != nil {
			p.logger.Warn("fetch pair member failed", zap.Int64("id", pair.A), zap.Error(err))
			continue
		}
		b, err := p.st.Fetch(ctx, pair.B)
		if err != nil {
			p.logger.Warn("fetch pair member failed", zap.Int64("id", pair.B), zap.Error(err))
			continue
		}

		rp := p.ranker.Score(pair, a, b)
		if p.counters != nil {
			p.counters.AddPairsScored(1)
		}

		switch rp.Verdict {
		case model.VerdictSame:
			select {
			case same <- pair:
			case <-ctx.Done():
				return
			}
		case model.VerdictUnknown:
			mu.Lock()
			*unknowns = append(*unknowns, rp)
			mu.Unlock()
		}
	}
}

// Emit applies res via e, either exporting to outputPath (if non-
// empty) or deleting non-survivors in place (spec §4.8). When
// exporting, the review-export supplement also runs (SPEC_FULL.md
// §11.1).
func (p *Pipeline) Emit(ctx context.Context, e *emit.Emitter, outputPath string, res Result) error {
	if outputPath == "" {
		ids := make([]int64, 0, len(res.NonSurvivors))
		for id := range res.NonSurvivors {
			ids = append(ids, id)
		}
		return e.InPlace(ctx, ids)
	}

	if err := e.Export(ctx, outputPath, res.NonSurvivors); err != nil {
		return err
	}
	if len(res.Unknowns) == 0 {
		return nil
	}
	return emit.ExportReview(outputPath+".review.csv", res.Unknowns)
}
