// Package buffer is the local durable store of captured tweets. Records are
// keyed on the external tweet id through a unique index, which is the sole
// arbiter for deduplication across the relay and miner paths.
package buffer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"apex/internal/logging"
	"apex/internal/model"
)

// Store wraps the SQLite capture buffer and the persisted miner state.
type Store struct{ sql *sql.DB }

func Open(path string) (*Store, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: keeps writers serialized and makes :memory: databases
	// behave under the connection pool.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	s := &Store{sql: d}
	if err := s.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.sql.Close() }

func (s *Store) migrate() error {
	_, err := s.sql.Exec(`
	CREATE TABLE IF NOT EXISTS captures (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  tweet_id TEXT NOT NULL,
	  payload TEXT NOT NULL,
	  captured_at INTEGER NOT NULL,
	  synced INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_captures_by_tweet_id ON captures(tweet_id);
	CREATE INDEX IF NOT EXISTS idx_captures_by_synced ON captures(synced);
	CREATE TABLE IF NOT EXISTS miner_state (
	  id INTEGER PRIMARY KEY CHECK (id=1),
	  blob TEXT NOT NULL
	);
	`)
	return err
}

// AddIfAbsent persists a new unsynced record unless the tweet id is already
// buffered. A lost insert race reports inserted=false, never an error.
func (s *Store) AddIfAbsent(ctx context.Context, t model.NormalizedTweet) (bool, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return false, fmt.Errorf("marshal tweet %s: %w", t.TweetID, err)
	}
	res, err := s.sql.ExecContext(ctx,
		`INSERT INTO captures(tweet_id, payload, captured_at, synced) VALUES(?,?,?,0)
		 ON CONFLICT(tweet_id) DO NOTHING`,
		t.TweetID, string(payload), t.CapturedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert capture %s: %w", t.TweetID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUnsynced returns up to limit unsynced records in insertion order.
func (s *Store) ListUnsynced(ctx context.Context, limit int) ([]model.BufferRecord, error) {
	rows, err := s.sql.QueryContext(ctx,
		`SELECT id, tweet_id, payload, captured_at, synced FROM captures WHERE synced=0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsynced: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// MarkSynced flips the synced flag for the given tweet ids. Unknown ids are
// ignored.
func (s *Store) MarkSynced(ctx context.Context, tweetIDs []string) error {
	if len(tweetIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tweetIDs)), ",")
	args := make([]any, len(tweetIDs))
	for i, id := range tweetIDs {
		args[i] = id
	}
	_, err := s.sql.ExecContext(ctx,
		`UPDATE captures SET synced=1 WHERE tweet_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// Recent returns the newest records, optionally filtered by source tag.
func (s *Store) Recent(ctx context.Context, source string, limit int) ([]model.BufferRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if source == "" {
		rows, err = s.sql.QueryContext(ctx,
			`SELECT id, tweet_id, payload, captured_at, synced FROM captures ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = s.sql.QueryContext(ctx,
			`SELECT id, tweet_id, payload, captured_at, synced FROM captures
			 WHERE json_extract(payload, '$.source') = ? ORDER BY id DESC LIMIT ?`, source, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recent captures: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Search matches query text against tweet text and author fields.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]model.BufferRecord, error) {
	q := "%" + strings.ToLower(query) + "%"
	rows, err := s.sql.QueryContext(ctx,
		`SELECT id, tweet_id, payload, captured_at, synced FROM captures
		 WHERE lower(json_extract(payload, '$.full_text')) LIKE ?
		    OR lower(json_extract(payload, '$.user_screen_name')) LIKE ?
		    OR lower(json_extract(payload, '$.user_name')) LIKE ?
		 ORDER BY id DESC LIMIT ?`, q, q, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search captures: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Counts returns total and unsynced record counts.
func (s *Store) Counts(ctx context.Context) (total, unsynced int, err error) {
	err = s.sql.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN synced=0 THEN 1 ELSE 0 END), 0) FROM captures`).
		Scan(&total, &unsynced)
	if err != nil {
		return 0, 0, fmt.Errorf("capture counts: %w", err)
	}
	return total, unsynced, nil
}

func scanRecords(rows *sql.Rows) ([]model.BufferRecord, error) {
	var out []model.BufferRecord
	for rows.Next() {
		var (
			rec        model.BufferRecord
			payload    string
			capturedAt int64
			synced     int
		)
		if err := rows.Scan(&rec.LocalID, &rec.TweetID, &payload, &capturedAt, &synced); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Tweet); err != nil {
			logging.Warn("buffer_corrupt_payload", map[string]any{"tweet_id": rec.TweetID, "error": err.Error()})
			continue
		}
		rec.Timestamp = time.UnixMilli(capturedAt).UTC()
		rec.Synced = synced != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}
