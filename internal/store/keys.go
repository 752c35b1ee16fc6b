package store

import (
	"context"
	"database/sql"
)

// KeyRow is one (key, row_id) pair from the collision_keys table.
type KeyRow struct {
	Key   string
	RowID int64
}

// InsertCollisionKeys batches (key, row_id) writes, the single writer
// thread of spec §4.4 consuming the hash indexer's worker pool.
// Ordering inside the index is not guaranteed (spec §4.4).
func (s *Store) InsertCollisionKeys(ctx context.Context, rows []KeyRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO collision_keys (key, row_id) VALUES (?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.Key, r.RowID); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()

	return tx.Commit()
}

// KeyRows is a restartable iterator over collision_keys ordered by
// key, so the candidate generator can group consecutive rows sharing
// a key without materialising the whole index (spec §4.5 "streamed").
type KeyRows struct {
	rows *sql.Rows
}

// ScanCollisionKeysOrdered returns every (key, row_id) pair ordered by
// key, ready for grouping by the candidate generator.
func (s *Store) ScanCollisionKeysOrdered(ctx context.Context) (*KeyRows, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, row_id FROM collision_keys ORDER BY key, row_id`)
	if err != nil {
		return nil, err
	}
	return &KeyRows{rows: rows}, nil
}

func (k *KeyRows) Next() bool { return k.rows.Next() }

func (k *KeyRows) Row() (KeyRow, error) {
	var r KeyRow
	err := k.rows.Scan(&r.Key, &r.RowID)
	return r, err
}

func (k *KeyRows) Err() error   { return k.rows.Err() }
func (k *KeyRows) Close() error { return k.rows.Close() }
