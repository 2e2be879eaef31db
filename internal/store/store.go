// Package store persists reconciled transcripts in SQLite.
//
// The store is the canonical sink for merge output. Ingest is idempotent:
// item IDs are primary keys and re-ingesting the same batches inserts
// nothing new, so merges can be rerun after every extraction run without
// bookkeeping.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"gleaner/internal/merge"
)

// Store manages transcript persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	item_id       TEXT PRIMARY KEY,
	position      INTEGER NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	failure_kind  TEXT NOT NULL DEFAULT '',
	word_count    INTEGER NOT NULL DEFAULT 0,
	segment_count INTEGER NOT NULL DEFAULT 0,
	text          TEXT NOT NULL DEFAULT '',
	recorded_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_position ON transcripts(position);

CREATE TABLE IF NOT EXISTS merge_runs (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	merged_at          TEXT NOT NULL,
	batch_count        INTEGER NOT NULL,
	entries_seen       INTEGER NOT NULL,
	entries_inserted   INTEGER NOT NULL,
	duplicates_removed INTEGER NOT NULL,
	gap_count          INTEGER NOT NULL
);
`

// Open initializes or connects to the transcript database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ingest inserts reconciled entries, skipping item IDs already present, and
// returns how many rows were actually inserted. The whole ingest runs in one
// transaction so a failure leaves the store unchanged.
func (s *Store) Ingest(ctx context.Context, entries []merge.Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin ingest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO transcripts
	(item_id, position, title, status, failure_kind, word_count, segment_count, text, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare ingest: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range entries {
		var text string
		wordCount, segmentCount := 0, 0
		if p := e.Outcome.Payload; p != nil {
			text = p.Text
			wordCount = p.WordCount
			segmentCount = p.SegmentCount
		}
		res, err := stmt.ExecContext(ctx,
			e.Item.ID,
			e.Outcome.Position,
			e.Item.Title,
			string(e.Outcome.Status),
			string(e.Outcome.Kind),
			wordCount,
			segmentCount,
			text,
			e.Outcome.CompletedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return 0, fmt.Errorf("insert transcript %s: %w", e.Item.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert transcript %s: %w", e.Item.ID, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit ingest: %w", err)
	}
	return inserted, nil
}

// RecordMerge logs a merge run for auditing.
func (s *Store) RecordMerge(ctx context.Context, mergedAt time.Time, batchCount, inserted int, summary merge.Summary) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO merge_runs (merged_at, batch_count, entries_seen, entries_inserted, duplicates_removed, gap_count)
VALUES (?, ?, ?, ?, ?, ?)`,
		mergedAt.UTC().Format(time.RFC3339),
		batchCount,
		summary.TotalItems,
		inserted,
		summary.DuplicatesRemoved,
		len(summary.Gaps),
	)
	if err != nil {
		return fmt.Errorf("record merge run: %w", err)
	}
	return nil
}

// Count returns the number of stored transcripts per status.
func (s *Store) Count(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM transcripts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count transcripts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan transcript count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count transcripts: %w", err)
	}
	return counts, nil
}
