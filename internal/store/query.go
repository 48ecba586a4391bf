package store

import (
	"context"
	"database/sql"
	"fmt"
)

// QueryPrimary returns all records sharing a primary key, ordered by
// secondary key ascending (COLLATE BINARY for deterministic results).
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryPrimary(ctx context.Context, pk string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pk, sk, kind, attrs FROM records
		WHERE pk = ?
		ORDER BY sk COLLATE BINARY ASC
	`, pk)
	if err != nil {
		return nil, fmt.Errorf("query primary %s: %w", pk, err)
	}
	return collectRecords(rows, "query primary")
}

// QueryPrimaryKind returns the records sharing a primary key that carry the
// given kind, ordered by secondary key ascending.
func (s *Store) QueryPrimaryKind(ctx context.Context, pk, kind string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pk, sk, kind, attrs FROM records
		WHERE pk = ? AND kind = ?
		ORDER BY sk COLLATE BINARY ASC
	`, pk, kind)
	if err != nil {
		return nil, fmt.Errorf("query primary %s kind %s: %w", pk, kind, err)
	}
	return collectRecords(rows, "query primary kind")
}

// QuerySecondary returns all records sharing a secondary key via the
// (sk, kind) index. A non-empty kind narrows the result to that
// discriminator; kind == "" matches any.
//
// This is the inverted access pattern: "all records of kind K attached
// to X" without a second physical table.
func (s *Store) QuerySecondary(ctx context.Context, sk, kind string) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if kind == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT pk, sk, kind, attrs FROM records
			WHERE sk = ?
			ORDER BY kind COLLATE BINARY ASC, pk COLLATE BINARY ASC
		`, sk)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT pk, sk, kind, attrs FROM records
			WHERE sk = ? AND kind = ?
			ORDER BY pk COLLATE BINARY ASC
		`, sk, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("query secondary %s: %w", sk, err)
	}
	return collectRecords(rows, "query secondary")
}

// QueryPrimaryKindRange returns the records under pk carrying kind whose
// secondary key falls in [lo, hi]. Used for time-bounded scans where the
// secondary key is a sortable timestamp.
func (s *Store) QueryPrimaryKindRange(ctx context.Context, pk, kind, lo, hi string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pk, sk, kind, attrs FROM records
		WHERE pk = ? AND kind = ? AND sk >= ? AND sk <= ?
		ORDER BY sk COLLATE BINARY ASC
	`, pk, kind, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query range %s kind %s: %w", pk, kind, err)
	}
	return collectRecords(rows, "query range")
}

// QueryKind returns every record of one kind across all primary keys,
// ordered by (pk, sk). Used by the scheduler sweep to enumerate pending
// deadlines after a restart.
func (s *Store) QueryKind(ctx context.Context, kind string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pk, sk, kind, attrs FROM records
		WHERE kind = ?
		ORDER BY pk COLLATE BINARY ASC, sk COLLATE BINARY ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("query kind %s: %w", kind, err)
	}
	return collectRecords(rows, "query kind")
}

// DeleteSecondary removes every record sharing a secondary key. Mirrors
// the original cleanup path for form records addressed by message id.
func (s *Store) DeleteSecondary(ctx context.Context, sk string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE sk = ?
	`, sk)
	if err != nil {
		return fmt.Errorf("delete secondary %s: %w", sk, err)
	}
	return nil
}

func collectRecords(rows *sql.Rows, op string) ([]Record, error) {
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}

	return records, nil
}
