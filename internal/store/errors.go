package store

import (
	"context"

	"github.com/qwant/addresses-deduplicator/internal/model"
)

// insertErrorRow records a row that failed validation or the
// uniqueness invariant (spec §7: "local and recoverable").
func (s *Store) insertErrorRow(ctx context.Context, a model.Address, kind model.RejectKind) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addresses_errors (lat, lon, number, street, unit, city, district, region, postcode, source, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Lat, a.Lon, a.Number, a.Street, a.Unit, a.City, a.District, a.Region, a.Postcode, string(a.Source), string(kind))
	return err
}

// CountErrors returns the number of rows recorded in addresses_errors
// matching kind, or every row if kind is empty.
func (s *Store) CountErrors(ctx context.Context, kind model.RejectKind) (int64, error) {
	var n int64
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses_errors`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses_errors WHERE kind = ?`, string(kind)).Scan(&n)
	}
	return n, err
}
