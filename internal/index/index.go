// Package index implements the hash indexer of spec §4.4: it streams
// every retained address, computes its collision keys via the
// normaliser, and writes (key, row_id) pairs into the secondary
// index table. Workload is spread across a worker pool of num_cpus
// threads feeding a single writer goroutine, mirroring the fan-out/
// fan-in goroutine shape of app/services/hybrid_cache_service.go
// generalised from two fixed goroutines to N workers.
package index

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/qwant/addresses-deduplicator/internal/model"
	"github.com/qwant/addresses-deduplicator/internal/normalize"
	"github.com/qwant/addresses-deduplicator/internal/store"
)

// writeBatchSize is how many (key, id) pairs the writer goroutine
// accumulates before flushing to the store, trading memory for fewer,
// larger transactions.
const writeBatchSize = 5_000

// Indexer computes collision keys for every retained row and writes
// them to the secondary index table.
type Indexer struct {
	st     *store.Store
	norm   normalize.Normalizer
	logger *zap.Logger
}

// New builds an Indexer over st using norm to compute collision keys.
func New(st *store.Store, norm normalize.Normalizer, logger *zap.Logger) *Indexer {
	return &Indexer{st: st, norm: norm, logger: logger}
}

// Run streams every address in st, hashes it on numWorkers goroutines,
// and writes the resulting keys through a single writer goroutine.
// It returns once every row has been hashed and written, or ctx is
// cancelled (spec §5 "Cancellation").
func (ix *Indexer) Run(ctx context.Context, numWorkers int) error {
	if numWorkers < 1 {
		numWorkers = 1
	}

	addrCh := make(chan model.Address, numWorkers*4)
	keyCh := make(chan store.KeyRow, numWorkers*16)

	var scanErr error
	go func() {
		defer close(addrCh)
		scanErr = ix.scanInto(ctx, addrCh)
	}()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			ix.hashWorker(ctx, addrCh, keyCh)
		}()
	}

	writeErrCh := make(chan error, 1)
	go func() {
		writeErrCh <- ix.writeLoop(ctx, keyCh)
	}()

	wg.Wait()
	close(keyCh)

	if err := <-writeErrCh; err != nil {
		return err
	}
	if scanErr != nil {
		return scanErr
	}

	return ix.st.BuildCollisionIndex(ctx)
}

func (ix *Indexer) scanInto(ctx context.Context, out chan<- model.Address) error {
	rows, err := ix.st.Scan(ctx)
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

// hashWorker pulls addresses from in and pushes every collision key
// it computes to out. Ordering inside the index is not guaranteed
// (spec §4.4).
func (ix *Indexer) hashWorker(ctx context.Context, in <-chan model.Address, out chan<- store.KeyRow) {
	for a := range in {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fields := []normalize.Field{
			{Label: normalize.LabelHouseNumber, Value: a.Number},
			{Label: normalize.LabelRoad, Value: a.Street},
			{Label: normalize.LabelCity, Value: a.City},
			{Label: normalize.LabelPostcode, Value: a.Postcode},
		}

		keys := ix.norm.NearDupeHashes(fields)
		for _, k := range keys {
			select {
			case out <- store.KeyRow{Key: k, RowID: a.ID}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// writeLoop is the single writer thread that batches (key, id) pairs
// into the index table (spec §4.4).
func (ix *Indexer) writeLoop(ctx context.Context, in <-chan store.KeyRow) error {
	batch := make([]store.KeyRow, 0, writeBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := ix.st.InsertCollisionKeys(ctx, batch)
		batch = batch[:0]
		return err
	}

	for kr := range in {
		batch = append(batch, kr)
		if len(batch) >= writeBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}
