// Package sqlite archives consumed stream fragments durably so a consumer
// can be rebuilt or replayed after the shared-memory log has been recycled.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"conduit/internal/egress"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS fragments (
	position INTEGER PRIMARY KEY,
	session_id INTEGER NOT NULL,
	stream_id INTEGER NOT NULL,
	term_id INTEGER NOT NULL,
	term_offset INTEGER NOT NULL,
	flags INTEGER NOT NULL,
	reserved_value INTEGER NOT NULL,
	payload BLOB NOT NULL,
	archived_at_utc_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoint (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	position INTEGER NOT NULL,
	updated_at_utc_ns INTEGER NOT NULL
);

CREATE TRIGGER IF NOT EXISTS trg_fragments_no_update
BEFORE UPDATE ON fragments
BEGIN
	SELECT RAISE(ABORT, 'fragments are append-only: UPDATE forbidden');
END;

CREATE TRIGGER IF NOT EXISTS trg_fragments_no_delete
BEFORE DELETE ON fragments
BEGIN
	SELECT RAISE(ABORT, 'fragments are append-only: DELETE forbidden');
END;
`

// Store is a Sink that appends each fragment and advances a single
// checkpoint row in the same transaction, so the archive's checkpoint is
// always consistent with its contents.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir archive dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "archive" }

// Forward appends the fragment keyed by its end-of-fragment position.
// Redelivery after a bridge abort is absorbed by the position primary key.
func (s *Store) Forward(ctx context.Context, rec *egress.Record) error {
	now := time.Now().UTC().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO fragments(
	position, session_id, stream_id, term_id, term_offset,
	flags, reserved_value, payload, archived_at_utc_ns
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(position) DO NOTHING`,
		rec.Position, rec.SessionId, rec.StreamId, rec.TermId, rec.TermOffset,
		int64(rec.Flags), rec.ReservedValue, rec.Payload, now)
	if err != nil {
		return fmt.Errorf("append fragment at position %d: %w", rec.Position, err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO checkpoint(id, position, updated_at_utc_ns) VALUES (0, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	position=MAX(position, excluded.position),
	updated_at_utc_ns=excluded.updated_at_utc_ns`,
		rec.Position, now)
	if err != nil {
		return fmt.Errorf("advance checkpoint to %d: %w", rec.Position, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fragment at position %d: %w", rec.Position, err)
	}
	return nil
}

// Checkpoint returns the highest archived position, or false if the archive
// is empty.
func (s *Store) Checkpoint(ctx context.Context) (int64, bool, error) {
	var position int64
	err := s.db.QueryRowContext(ctx, `SELECT position FROM checkpoint WHERE id = 0`).Scan(&position)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read checkpoint: %w", err)
	}
	return position, true, nil
}

// ReadRange returns archived fragments with positions in (fromExclusive,
// toInclusive], in position order.
func (s *Store) ReadRange(ctx context.Context, fromExclusive, toInclusive int64) ([]*egress.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT position, session_id, stream_id, term_id, term_offset, flags, reserved_value, payload
FROM fragments WHERE position > ? AND position <= ? ORDER BY position`,
		fromExclusive, toInclusive)
	if err != nil {
		return nil, fmt.Errorf("read fragment range: %w", err)
	}
	defer rows.Close()

	var recs []*egress.Record
	for rows.Next() {
		rec := &egress.Record{}
		var flags int64
		if err := rows.Scan(&rec.Position, &rec.SessionId, &rec.StreamId, &rec.TermId,
			&rec.TermOffset, &flags, &rec.ReservedValue, &rec.Payload); err != nil {
			return nil, err
		}
		rec.Flags = uint32(flags)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
