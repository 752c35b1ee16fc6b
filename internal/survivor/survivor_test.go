package survivor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/qwant/addresses-deduplicator/internal/config"
	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/normalize"
	"github.com/qwant/addresses-deduplicator/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "staging.db"))
	if err != nil {
		t.Fatalf("open staging store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSelector_PrefersHigherSourceRank(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cfg := config.Default() // OSM > BANO > OA

	osm, err := st.Insert(ctx, model.Address{Lat: 1, Lon: 1, Number: "10", Street: "Rue de Rivoli", City: "Paris", Source: model.SourceOSM})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	oa, err := st.Insert(ctx, model.Address{Lat: 1.00001, Lon: 1.00001, Number: "10", Street: "Rue de Rivoli", City: "Paris", District: "1er", Source: model.SourceOA})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	sel := New(st, normalize.NewFallback(), cfg)
	survivorID, nonSurvivors, err := sel.Select(ctx, []int64{oa.ID, osm.ID})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if survivorID != osm.ID {
		t.Fatalf("expected OSM row %d to survive over OA row %d, got survivor %d", osm.ID, oa.ID, survivorID)
	}
	if len(nonSurvivors) != 1 || nonSurvivors[0] != oa.ID {
		t.Fatalf("expected non-survivors [%d], got %v", oa.ID, nonSurvivors)
	}
}

func TestSelector_TieBreaksOnNonNullFieldCount(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cfg := config.Default()

	sparse, err := st.Insert(ctx, model.Address{Lat: 1, Lon: 1, Number: "10", Street: "Rue de Rivoli", Source: model.SourceOSM})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	rich, err := st.Insert(ctx, model.Address{Lat: 1.00001, Lon: 1.00001, Number: "10", Street: "Rue de Rivoli", City: "Paris", Postcode: "75001", District: "1er", Source: model.SourceOSM})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	sel := New(st, normalize.NewFallback(), cfg)
	survivorID, _, err := sel.Select(ctx, []int64{sparse.ID, rich.ID})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if survivorID != rich.ID {
		t.Fatalf("expected richer row %d to survive, got %d", rich.ID, survivorID)
	}
}

func TestSelector_TieBreaksOnSmallestID(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cfg := config.Default()

	first, err := st.Insert(ctx, model.Address{Lat: 1, Lon: 1, Number: "10", Street: "Rue de Rivoli", Source: model.SourceOSM})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	second, err := st.Insert(ctx, model.Address{Lat: 1.00001, Lon: 1.00001, Number: "10", Street: "Rue de Rivoli", Source: model.SourceOSM})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	sel := New(st, normalize.NewFallback(), cfg)
	survivorID, _, err := sel.Select(ctx, []int64{second.ID, first.ID})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if survivorID != first.ID {
		t.Fatalf("expected smaller id %d to survive, got %d", first.ID, survivorID)
	}
}
