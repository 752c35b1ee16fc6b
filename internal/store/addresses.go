package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/qwant/addresses-deduplicator/internal/model"
)

// InsertStatus is the outcome of Insert (spec §4.1).
type InsertStatus int

const (
	InsertOK InsertStatus = iota
	InsertRejectedDuplicate
	InsertRejectedInvalid
)

// InsertResult reports what happened to one row.
type InsertResult struct {
	Status InsertStatus
	ID     int64
}

// Insert validates a and inserts it, respecting the uniqueness
// invariant of spec §3. Invalid or duplicate rows are written to
// addresses_errors instead and never cause an error return — only
// StorageFailure does that (spec §7).
func (s *Store) Insert(ctx context.Context, a model.Address) (InsertResult, error) {
	if err := a.Validate(); err != nil {
		kind := model.RejectInvalidCoord
		if strings.Contains(err.Error(), "street") {
			kind = model.RejectMissingStreet
		} else if strings.Contains(err.Error(), "source") {
			kind = model.RejectUnknownSource
		}
		if ierr := s.insertErrorRow(ctx, a, kind); ierr != nil {
			return InsertResult{}, fmt.Errorf("record invalid row: %w", ierr)
		}
		return InsertResult{Status: InsertRejectedInvalid}, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO addresses (lat, lon, number, street, unit, city, district, region, postcode, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Lat, a.Lon, a.Number, a.Street, a.Unit, a.City, a.District, a.Region, a.Postcode, string(a.Source))
	if err != nil {
		if isUniqueViolation(err) {
			if ierr := s.insertErrorRow(ctx, a, model.RejectDuplicate); ierr != nil {
				return InsertResult{}, fmt.Errorf("record duplicate row: %w", ierr)
			}
			return InsertResult{Status: InsertRejectedDuplicate}, nil
		}
		return InsertResult{}, fmt.Errorf("insert address: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return InsertResult{}, fmt.Errorf("insert address: %w", err)
	}
	return InsertResult{Status: InsertOK, ID: id}, nil
}

// isUniqueViolation recognises sqlite's UNIQUE constraint error so
// Insert can route it to addresses_errors instead of propagating a
// StorageFailure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT
	}
	// Driver error type not matched (e.g. wrapped by database/sql) —
	// fall back to a substring check on sqlite's own message format.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// BulkInsert inserts rows in grouped transactions of ~10^4 rows (spec
// §4.1: "bulk mode ... must be available"), returning per-row
// results in input order.
func (s *Store) BulkInsert(ctx context.Context, rows []model.Address) ([]InsertResult, error) {
	const batchSize = 10_000
	results := make([]InsertResult, 0, len(rows))

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return results, fmt.Errorf("begin bulk insert transaction: %w", err)
		}

		batchResults, err := s.insertBatch(ctx, tx, rows[start:end])
		if err != nil {
			tx.Rollback()
			return results, fmt.Errorf("bulk insert batch [%d:%d]: %w", start, end, err)
		}
		if err := tx.Commit(); err != nil {
			return results, fmt.Errorf("commit bulk insert batch [%d:%d]: %w", start, end, err)
		}

		results = append(results, batchResults...)
	}

	return results, nil
}

func (s *Store) insertBatch(ctx context.Context, tx *sql.Tx, rows []model.Address) ([]InsertResult, error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO addresses (lat, lon, number, street, unit, city, district, region, postcode, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	results := make([]InsertResult, len(rows))
	for i, a := range rows {
		if err := a.Validate(); err != nil {
			results[i] = InsertResult{Status: InsertRejectedInvalid}
			continue
		}

		res, err := stmt.ExecContext(ctx, a.Lat, a.Lon, a.Number, a.Street, a.Unit, a.City, a.District, a.Region, a.Postcode, string(a.Source))
		if err != nil {
			if isUniqueViolation(err) {
				results[i] = InsertResult{Status: InsertRejectedDuplicate}
				continue
			}
			return nil, err
		}

		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		results[i] = InsertResult{Status: InsertOK, ID: id}
	}
	return results, nil
}

// Fetch performs random access by id.
func (s *Store) Fetch(ctx context.Context, id int64) (model.Address, error) {
	return s.scanOne(ctx, `
		SELECT id, lat, lon, number, street, unit, city, district, region, postcode, source
		FROM addresses WHERE id = ?`, id)
}

func (s *Store) scanOne(ctx context.Context, query string, args ...interface{}) (model.Address, error) {
	var a model.Address
	var source string
	row := s.db.QueryRowContext(ctx, query, args...)
	err := row.Scan(&a.ID, &a.Lat, &a.Lon, &a.Number, &a.Street, &a.Unit, &a.City, &a.District, &a.Region, &a.Postcode, &source)
	a.Source = model.Source(source)
	return a, err
}

// Scan returns a restartable, stable-order (by primary key) iterator
// over every surviving row (spec §4.1).
func (s *Store) Scan(ctx context.Context) (*Rows, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lat, lon, number, street, unit, city, district, region, postcode, source
		FROM addresses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

// Rows wraps *sql.Rows with the Address-shaped Next/Scan/Close calls
// the rest of the pipeline expects.
type Rows struct {
	rows *sql.Rows
}

// Next advances the iterator. It returns false at end of scan or on
// error — call Err to distinguish the two.
func (r *Rows) Next() bool { return r.rows.Next() }

// Address decodes the current row.
func (r *Rows) Address() (model.Address, error) {
	var a model.Address
	var source string
	err := r.rows.Scan(&a.ID, &a.Lat, &a.Lon, &a.Number, &a.Street, &a.Unit, &a.City, &a.District, &a.Region, &a.Postcode, &source)
	a.Source = model.Source(source)
	return a, err
}

// Err returns the first error encountered during iteration, if any.
func (r *Rows) Err() error { return r.rows.Err() }

// Close releases the underlying cursor.
func (r *Rows) Close() error { return r.rows.Close() }

// DeleteMany removes a batch of non-survivor ids inside a single
// transaction that either commits entirely or rolls back (spec §5
// "Cancellation", §7 "StorageFailure").
func (s *Store) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM addresses WHERE id IN (%s)`, placeholders), args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete_many: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete_many: %w", err)
	}
	return nil
}
