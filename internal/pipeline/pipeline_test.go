package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/qwant/addresses-deduplicator/internal/config"
	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/normalize"
	"github.com/qwant/addresses-deduplicator/internal/statusserver"
	"github.com/qwant/addresses-deduplicator/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staging.db")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open staging store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// TestPipeline_DedupsCloseDuplicatePair is scenario S1's shape: two
// rows from different sources naming the same address within D_exact
// metres merge into one equivalence class, and the lower-ranked
// source's row is dropped.
func TestPipeline_DedupsCloseDuplicatePair(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cfg := config.Default()
	norm := normalize.NewFallback()

	rowOSM := model.Address{Lat: 48.8566, Lon: 2.3522, Number: "10", Street: "Rue de Rivoli", City: "Paris", Postcode: "75001", Source: model.SourceOSM}
	rowBANO := model.Address{Lat: 48.85661, Lon: 2.35221, Number: "10", Street: "Rue de Rivoli", City: "Paris", Postcode: "75001", Source: model.SourceBANO}

	p := New(st, cfg, norm, nil, nil, zap.NewNop())
	for _, a := range []model.Address{rowOSM, rowBANO} {
		if _, err := p.Ingest(ctx, a); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	res, err := p.RunDedup(ctx)
	if err != nil {
		t.Fatalf("run dedup: %v", err)
	}
	if len(res.NonSurvivors) != 1 {
		t.Fatalf("expected exactly 1 non-survivor, got %d (%v)", len(res.NonSurvivors), res.NonSurvivors)
	}

	rows, err := st.Scan(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer rows.Close()

	var survivorSource model.Source
	for rows.Next() {
		a, err := rows.Address()
		if err != nil {
			t.Fatalf("address: %v", err)
		}
		if _, dropped := res.NonSurvivors[a.ID]; !dropped {
			survivorSource = a.Source
		}
	}
	if survivorSource != model.SourceOSM {
		t.Fatalf("expected OSM row to survive (higher source rank), got %q", survivorSource)
	}
}

// TestPipeline_DistinctAddressesAreNotMerged is scenario S3's shape:
// two rows at the same point on the same street but with different
// house numbers never join the same equivalence class.
func TestPipeline_DistinctAddressesAreNotMerged(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cfg := config.Default()
	norm := normalize.NewFallback()

	a := model.Address{Lat: 48.8566, Lon: 2.3522, Number: "10", Street: "Rue de Rivoli", City: "Paris", Postcode: "75001", Source: model.SourceOSM}
	b := model.Address{Lat: 48.8566, Lon: 2.3522, Number: "12", Street: "Rue de Rivoli", City: "Paris", Postcode: "75001", Source: model.SourceBANO}

	p := New(st, cfg, norm, nil, nil, zap.NewNop())
	for _, addr := range []model.Address{a, b} {
		if _, err := p.Ingest(ctx, addr); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	res, err := p.RunDedup(ctx)
	if err != nil {
		t.Fatalf("run dedup: %v", err)
	}
	if len(res.NonSurvivors) != 0 {
		t.Fatalf("expected no non-survivors for distinct numbers, got %d", len(res.NonSurvivors))
	}
}

// TestPipeline_UpdatesCounters checks the /stats wiring: rows scanned
// and equivalence classes formed should reflect a run that merges
// one pair.
func TestPipeline_UpdatesCounters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cfg := config.Default()
	norm := normalize.NewFallback()
	counters := &statusserver.Counters{}

	a := model.Address{Lat: 48.8566, Lon: 2.3522, Number: "10", Street: "Rue de Rivoli", City: "Paris", Postcode: "75001", Source: model.SourceOSM}
	b := model.Address{Lat: 48.85661, Lon: 2.35221, Number: "10", Street: "Rue de Rivoli", City: "Paris", Postcode: "75001", Source: model.SourceBANO}

	p := New(st, cfg, norm, nil, counters, zap.NewNop())
	for _, addr := range []model.Address{a, b} {
		if _, err := p.Ingest(ctx, addr); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	if _, err := p.RunDedup(ctx); err != nil {
		t.Fatalf("run dedup: %v", err)
	}

	snap := counters.Snapshot()
	if snap.RowsScanned != 2 {
		t.Fatalf("expected rows_scanned=2, got %d", snap.RowsScanned)
	}
	if snap.EquivalenceClasses != 1 {
		t.Fatalf("expected 1 equivalence class, got %d", snap.EquivalenceClasses)
	}
}

// TestPipeline_CancellationStopsDedup checks spec §5's cancellation
// semantics: a pre-cancelled context aborts RunDedup with an error
// rather than completing.
func TestPipeline_CancellationStopsDedup(t *testing.T) {
	st := openTestStore(t)
	cfg := config.Default()
	norm := normalize.NewFallback()

	p := New(st, cfg, norm, nil, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.RunDedup(ctx); err == nil {
		t.Fatal("expected error from pre-cancelled context")
	}
}
