package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/qwant/addresses-deduplicator/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "staging.db"))
	if err != nil {
		t.Fatalf("open staging store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleAddress() model.Address {
	return model.Address{
		Lat:    48.8566,
		Lon:    2.3522,
		Number: "10",
		Street: "Rue de Rivoli",
		City:   "Paris",
		Source: model.SourceOSM,
	}
}

func TestInsertOK(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	res, err := st.Insert(ctx, sampleAddress())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.Status != InsertOK {
		t.Fatalf("status = %v, want InsertOK", res.Status)
	}
	if res.ID == 0 {
		t.Fatalf("expected non-zero id")
	}

	got, err := st.Fetch(ctx, res.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Street != "Rue de Rivoli" || got.Source != model.SourceOSM {
		t.Fatalf("fetched address mismatch: %+v", got)
	}
}

func TestInsertRejectedDuplicate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	a := sampleAddress()
	first, err := st.Insert(ctx, a)
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if first.Status != InsertOK {
		t.Fatalf("first insert status = %v, want InsertOK", first.Status)
	}

	second, err := st.Insert(ctx, a)
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if second.Status != InsertRejectedDuplicate {
		t.Fatalf("second insert status = %v, want InsertRejectedDuplicate", second.Status)
	}

	n, err := st.CountErrors(ctx, model.RejectDuplicate)
	if err != nil {
		t.Fatalf("count errors: %v", err)
	}
	if n != 1 {
		t.Fatalf("duplicate error rows = %d, want 1", n)
	}

	total, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("surviving rows = %d, want 1 (duplicate must not land in addresses)", total)
	}
}

func TestInsertRejectedDuplicateDistinguishesOnStreet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	a := sampleAddress()
	if _, err := st.Insert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Differs only in street, still a distinct row under the UNIQUE
	// constraint (lat, lon, number, street, city).
	b := a
	b.Street = "Rue de Rivoli Bis"
	res, err := st.Insert(ctx, b)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.Status != InsertOK {
		t.Fatalf("status = %v, want InsertOK for a non-colliding row", res.Status)
	}
}

func TestInsertRejectedInvalid(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	cases := map[string]model.Address{
		"empty street": func() model.Address {
			a := sampleAddress()
			a.Street = "   "
			return a
		}(),
		"lat out of range": func() model.Address {
			a := sampleAddress()
			a.Lat = 91
			return a
		}(),
		"lon out of range": func() model.Address {
			a := sampleAddress()
			a.Lon = -181
			return a
		}(),
		"unknown source": func() model.Address {
			a := sampleAddress()
			a.Source = "WIKIDATA"
			return a
		}(),
	}

	for name, a := range cases {
		res, err := st.Insert(ctx, a)
		if err != nil {
			t.Fatalf("%s: insert returned error: %v", name, err)
		}
		if res.Status != InsertRejectedInvalid {
			t.Fatalf("%s: status = %v, want InsertRejectedInvalid", name, res.Status)
		}
	}

	n, err := st.CountErrors(ctx, "")
	if err != nil {
		t.Fatalf("count errors: %v", err)
	}
	if int(n) != len(cases) {
		t.Fatalf("error rows = %d, want %d", n, len(cases))
	}

	total, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 0 {
		t.Fatalf("surviving rows = %d, want 0", total)
	}
}

func TestBulkInsertBatching(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	valid := sampleAddress()
	invalid := sampleAddress()
	invalid.Street = ""
	duplicate := valid

	rows := []model.Address{valid, invalid, duplicate}

	results, err := st.BulkInsert(ctx, rows)
	if err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	if len(results) != len(rows) {
		t.Fatalf("results len = %d, want %d", len(results), len(rows))
	}

	if results[0].Status != InsertOK {
		t.Errorf("row 0 status = %v, want InsertOK", results[0].Status)
	}
	if results[1].Status != InsertRejectedInvalid {
		t.Errorf("row 1 status = %v, want InsertRejectedInvalid", results[1].Status)
	}
	if results[2].Status != InsertRejectedDuplicate {
		t.Errorf("row 2 status = %v, want InsertRejectedDuplicate", results[2].Status)
	}

	total, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("surviving rows = %d, want 1", total)
	}
}

func TestBulkInsertDuplicatesAcrossCalls(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// batchSize is 10_000, so each call below commits a single batch.
	// Inserting a handful of rows and then re-inserting the same rows
	// in a second BulkInsert call proves uniqueness state carries over
	// between calls (each insert inside insertBatch sees the same
	// committed state a direct Insert would).
	rows := make([]model.Address, 0, 5)
	for i := 0; i < 5; i++ {
		a := sampleAddress()
		a.Number = string(rune('0' + i))
		rows = append(rows, a)
	}

	results, err := st.BulkInsert(ctx, rows)
	if err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	for i, r := range results {
		if r.Status != InsertOK {
			t.Fatalf("row %d status = %v, want InsertOK", i, r.Status)
		}
	}

	// Re-inserting the identical batch must reject every row as a
	// duplicate, not silently re-insert it.
	again, err := st.BulkInsert(ctx, rows)
	if err != nil {
		t.Fatalf("bulk insert again: %v", err)
	}
	for i, r := range again {
		if r.Status != InsertRejectedDuplicate {
			t.Fatalf("row %d status = %v, want InsertRejectedDuplicate", i, r.Status)
		}
	}

	total, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != int64(len(rows)) {
		t.Fatalf("surviving rows = %d, want %d", total, len(rows))
	}
}

func TestDeleteMany(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		a := sampleAddress()
		a.Number = string(rune('0' + i))
		res, err := st.Insert(ctx, a)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids = append(ids, res.ID)
	}

	if err := st.DeleteMany(ctx, ids[:2]); err != nil {
		t.Fatalf("delete many: %v", err)
	}

	total, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("surviving rows = %d, want 1", total)
	}

	if _, err := st.Fetch(ctx, ids[2]); err != nil {
		t.Fatalf("expected surviving row to remain fetchable: %v", err)
	}
}
