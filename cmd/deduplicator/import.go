package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/pipeline"
	"github.com/qwant/addresses-deduplicator/internal/store"
)

// csvColumnCount is the number of columns this thin loader expects, in
// fixed order, from a BANO or OpenAddresses extract: lat,lon,number,street,unit,city,
// district,region,postcode. Producing a uniform staging row from each
// source's real export format is the importer's job and is explicitly
// out of scope here (spec.md's Non-goals) — this loader exists only so
// the CLI has something to ingest end to end, not as a format spec.
const csvColumnCount = 9

// importCSV streams path (a single CSV file) through p.Ingest, tagging
// every row with source. It returns the count of rows ingested and the
// count rejected, matching spec §7's "local, recoverable" treatment of
// malformed rows: one bad row does not abort the file.
func importCSV(ctx context.Context, p *pipeline.Pipeline, path string, source model.Source) (ingested, rejected int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	first := true
	for {
		record, rerr := r.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return ingested, rejected, fmt.Errorf("read %s: %w", path, rerr)
		}
		if first {
			first = false
			if looksLikeHeader(record) {
				continue
			}
		}

		a, perr := parseCSVRow(record, source)
		if perr != nil {
			rejected++
			continue
		}

		res, ierr := p.Ingest(ctx, a)
		if ierr != nil {
			return ingested, rejected, fmt.Errorf("ingest row from %s: %w", path, ierr)
		}
		if res.Status == store.InsertOK {
			ingested++
		} else {
			rejected++
		}
	}
	return ingested, rejected, nil
}

// importOpenAddresses walks dir for *.csv files — the OpenAddresses
// corpus ships one file per region rather than a single extract.
func importOpenAddresses(ctx context.Context, p *pipeline.Pipeline, dir string) (ingested, rejected int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read openaddresses dir %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		n, r, ferr := importCSV(ctx, p, filepath.Join(dir, e.Name()), model.SourceOA)
		ingested += n
		rejected += r
		if ferr != nil {
			return ingested, rejected, ferr
		}
	}
	return ingested, rejected, nil
}

// importOSM always fails: PBF is a binary, schema-rich format and
// parsing it is explicitly out of this engine's scope (spec.md's
// Non-goals name "PBF parsing" directly). --osm is accepted as a flag
// so the CLI's surface matches spec §6, but it errors out rather than
// silently no-op-ing or faking a parse.
func importOSM(path string) error {
	return fmt.Errorf("OSM PBF import is not implemented by this engine; pre-convert %s to CSV and pass it via --bano or --openaddresses", path)
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64); err != nil {
		return true
	}
	return false
}

func parseCSVRow(record []string, source model.Source) (model.Address, error) {
	if len(record) < csvColumnCount {
		return model.Address{}, fmt.Errorf("expected %d columns, got %d", csvColumnCount, len(record))
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(record[0]), 64)
	if err != nil {
		return model.Address{}, fmt.Errorf("bad lat %q: %w", record[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
	if err != nil {
		return model.Address{}, fmt.Errorf("bad lon %q: %w", record[1], err)
	}

	return model.Address{
		Lat:      lat,
		Lon:      lon,
		Number:   strings.TrimSpace(record[2]),
		Street:   strings.TrimSpace(record[3]),
		Unit:     strings.TrimSpace(record[4]),
		City:     strings.TrimSpace(record[5]),
		District: strings.TrimSpace(record[6]),
		Region:   strings.TrimSpace(record[7]),
		Postcode: strings.TrimSpace(record[8]),
		Source:   source,
	}, nil
}
