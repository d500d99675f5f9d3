// Package archive keeps a queryable history of discovered entries in
// SQLite. The dedup ledger decides what is new; the archive records
// what was surfaced, so entries remain inspectable after the
// notification moment has passed.
package archive

import (
	"database/sql"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/abelbrown/jinkies/internal/model"
)

// Store is the SQLite-backed entry archive.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the archive at path. Use ":memory:" for
// tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		entry_id TEXT PRIMARY KEY,
		feed_url TEXT NOT NULL,
		title TEXT NOT NULL,
		link TEXT,
		published TEXT,
		seen INTEGER DEFAULT 0,
		discovered_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_feed ON entries(feed_url);
	CREATE INDEX IF NOT EXISTS idx_entries_discovered ON entries(discovered_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveEntries records discovered entries, returning the number
// actually inserted. Re-saving an existing entry is a no-op; the seen
// flag is never reset by a save.
func (s *Store) SaveEntries(entries []model.FeedEntry) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO entries (entry_id, feed_url, title, link, published, seen, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO NOTHING
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, e := range entries {
		result, err := stmt.Exec(e.ID, e.FeedURL, e.Title, e.Link, e.Published, boolToInt(e.Seen), now)
		if err != nil {
			log.WithField("entry", e.ID).WithError(err).Warn("archive insert failed")
			continue
		}
		rows, _ := result.RowsAffected()
		if rows > 0 {
			inserted++
		}
	}

	return inserted, tx.Commit()
}

// Recent returns the most recently discovered entries, newest first.
func (s *Store) Recent(limit int) ([]model.FeedEntry, error) {
	rows, err := s.db.Query(`
		SELECT entry_id, feed_url, title, link, published, seen
		FROM entries
		ORDER BY discovered_at DESC, entry_id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.FeedEntry
	for rows.Next() {
		var e model.FeedEntry
		var seen int
		if err := rows.Scan(&e.ID, &e.FeedURL, &e.Title, &e.Link, &e.Published, &seen); err != nil {
			return nil, err
		}
		e.Seen = seen != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkSeen flips an entry's seen flag. This records the external
// consumer action (the user opened the entry); the scheduler itself
// never calls it.
func (s *Store) MarkSeen(entryID string) error {
	_, err := s.db.Exec("UPDATE entries SET seen = 1 WHERE entry_id = ?", entryID)
	return err
}

// UnseenCount returns the number of archived entries not yet seen.
func (s *Store) UnseenCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM entries WHERE seen = 0").Scan(&count)
	return count, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
