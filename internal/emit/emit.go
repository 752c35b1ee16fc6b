// Package emit implements the two emitter modes of spec §4.8, plus
// the review-export supplement of SPEC_FULL.md §11.1: in-place
// deletion of non-survivors against the staging store, or a streamed
// gzip CSV export of every surviving row, with scan and write
// overlapping through a bounded channel the way the rest of the
// pipeline overlaps its stages.
package emit

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/store"
)

// csvHeader is the export format's fixed column order (spec §4.8).
var csvHeader = []string{
	"lat", "lon", "number", "street", "unit", "city", "district", "region", "postcode", "source",
}

// reviewHeader is the review export's column order (SPEC_FULL.md
// §11.1): every metric the ranker computed for an UNKNOWN pair.
var reviewHeader = []string{
	"row_id_a", "row_id_b", "jaccard", "jaro_winkler", "distance_metres",
}

// exportChannelSize bounds how far the scan goroutine can run ahead
// of the CSV writer.
const exportChannelSize = 256

// Emitter applies the survivor selector's decision to the staging
// store, either in place or as a CSV export.
type Emitter struct {
	st     *store.Store
	logger *zap.Logger
}

// New builds an Emitter over st.
func New(st *store.Store, logger *zap.Logger) *Emitter {
	return &Emitter{st: st, logger: logger}
}

// InPlace deletes every non-survivor id and rebuilds the primary
// index (spec §4.8 "In-place").
func (e *Emitter) InPlace(ctx context.Context, nonSurvivors []int64) error {
	if err := e.st.DeleteMany(ctx, nonSurvivors); err != nil {
		return fmt.Errorf("delete non-survivors: %w", err)
	}
	return e.st.RebuildPrimaryIndex(ctx)
}

// Export streams every row whose id is not in nonSurvivors through
// the staging store's scan into a gzipped CSV at path (spec §4.8
// "Export"). Scanning and writing overlap via a bounded channel.
func (e *Emitter) Export(ctx context.Context, path string, nonSurvivors map[int64]struct{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()

	w := csv.NewWriter(gz)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write export header: %w", err)
	}

	rowCh := make(chan model.Address, exportChannelSize)
	scanErrCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		scanErrCh <- e.scanInto(ctx, rowCh)
	}()

	written := 0
	for a := range rowCh {
		if _, skip := nonSurvivors[a.ID]; skip {
			continue
		}
		if err := w.Write(addressRow(a)); err != nil {
			return fmt.Errorf("write export row: %w", err)
		}
		written++
	}

	if err := <-scanErrCh; err != nil {
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush export csv: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close export gzip writer: %w", err)
	}

	e.logger.Info("export complete", zap.Int("rows_written", written))
	return nil
}

func (e *Emitter) scanInto(ctx context.Context, out chan<- model.Address) error {
	rows, err := e.st.Scan(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		a, err := rows.Address()
		if err != nil {
			return err
		}

		select {
		case out <- a:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return rows.Err()
}

func addressRow(a model.Address) []string {
	return []string{
		strconv.FormatFloat(a.Lat, 'f', -1, 64),
		strconv.FormatFloat(a.Lon, 'f', -1, 64),
		a.Number,
		a.Street,
		a.Unit,
		a.City,
		a.District,
		a.Region,
		a.Postcode,
		string(a.Source),
	}
}

// ExportReview writes every UNKNOWN-verdict pair to a plain (non-
// gzipped) CSV at path, so an operator can inspect borderline cases
// without affecting the SAME/DIFFERENT output (SPEC_FULL.md §11.1).
func ExportReview(path string, unknowns []model.RankedPair) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create review export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(reviewHeader); err != nil {
		return fmt.Errorf("write review export header: %w", err)
	}

	for _, rp := range unknowns {
		row := []string{
			strconv.FormatInt(rp.A, 10),
			strconv.FormatInt(rp.B, 10),
			strconv.FormatFloat(rp.Jaccard, 'f', 4, 64),
			strconv.FormatFloat(rp.JaroWinkler, 'f', 4, 64),
			strconv.FormatFloat(rp.DistanceMetres, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write review export row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
