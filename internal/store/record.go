package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// emptySentinel stands in for genuine empty strings. The original backing
// store cannot represent them, and the remap is kept so that records stay
// portable between backends. Get reverses the remap.
const emptySentinel = " "

// Record is one row of the shared single-table schema.
//
// PK and SK form the composite key, Kind is the free-form discriminator
// distinguishing entity shapes, and Attrs is the open field map. Typed
// views of the known kinds live in internal/entity; the store itself
// never interprets Attrs.
type Record struct {
	PK    string
	SK    string
	Kind  string
	Attrs map[string]string
}

// Attr returns the named attribute, or "" if absent.
func (r *Record) Attr(name string) string {
	if r.Attrs == nil {
		return ""
	}
	return r.Attrs[name]
}

// Put inserts or overwrites the record at (pk, sk).
//
// Empty-string attribute values (and an empty kind) are remapped to a
// single-space sentinel before writing. Each put is a single atomic
// statement - there is no partial write to observe.
func (s *Store) Put(ctx context.Context, pk, sk, kind string, attrs map[string]string) error {
	if pk == "" || sk == "" {
		return errors.New("put record: pk and sk must be non-empty")
	}
	if kind == "" {
		kind = emptySentinel
	}

	normalized := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if v == "" {
			v = emptySentinel
		}
		normalized[k] = v
	}

	attrsJSON, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("put record: marshal attrs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (pk, sk, kind, attrs)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pk, sk) DO UPDATE SET kind = excluded.kind, attrs = excluded.attrs
	`, pk, sk, kind, string(attrsJSON))
	if err != nil {
		return fmt.Errorf("put record (%s, %s): %w", pk, sk, err)
	}

	return nil
}

// Get returns the record at (pk, sk), or nil if absent. Absence is not an
// error; callers that require the record decide what absence means.
func (s *Store) Get(ctx context.Context, pk, sk string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT pk, sk, kind, attrs FROM records
		WHERE pk = ? AND sk = ?
	`, pk, sk)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record (%s, %s): %w", pk, sk, err)
	}
	return rec, nil
}

// Delete removes the record at (pk, sk). Deleting an absent record is a no-op.
func (s *Store) Delete(ctx context.Context, pk, sk string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE pk = ? AND sk = ?
	`, pk, sk)
	if err != nil {
		return fmt.Errorf("delete record (%s, %s): %w", pk, sk, err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord decodes one row and reverses the empty-string remap.
func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var attrsJSON string
	if err := row.Scan(&rec.PK, &rec.SK, &rec.Kind, &attrsJSON); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(attrsJSON), &rec.Attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}

	if rec.Kind == emptySentinel {
		rec.Kind = ""
	}
	for k, v := range rec.Attrs {
		if v == emptySentinel {
			rec.Attrs[k] = ""
		}
	}

	return &rec, nil
}
