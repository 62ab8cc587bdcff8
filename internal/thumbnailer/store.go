package thumbnailer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"image-viewer/internal/logging"
	"image-viewer/internal/metrics"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists generated thumbnails in a sqlite database keyed by source
// path and modification time, so a restarted viewer does not re-decode a
// directory it has already thumbnailed. A row whose mtime no longer matches
// the file is treated as absent and overwritten on the next Put.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the thumbnail store at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	// busy_timeout avoids "database is locked" when several workers store
	// results at once.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening thumbnail store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS thumbnails (
		path  TEXT PRIMARY KEY,
		mtime INTEGER NOT NULL,
		size  INTEGER NOT NULL,
		data  BLOB NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating thumbnail schema: %w", err)
	}

	logging.Debug("thumbnail store open at %s", path)
	return &Store{db: db}, nil
}

// Get returns the stored thumbnail bytes for path, matching on modification
// time and thumbnail size. ok is false on any mismatch or miss.
func (s *Store) Get(path string, mtime int64, size int) (data []byte, ok bool) {
	row := s.db.QueryRow(
		`SELECT data FROM thumbnails WHERE path = ? AND mtime = ? AND size = ?`,
		path, mtime, size)
	if err := row.Scan(&data); err != nil {
		if err != sql.ErrNoRows {
			logging.Warn("thumbnail store read for %s: %v", path, err)
			metrics.ThumbnailStoreErrorsTotal.Inc()
		}
		return nil, false
	}
	return data, true
}

// Put stores thumbnail bytes for path, replacing any previous row.
func (s *Store) Put(path string, mtime int64, size int, data []byte) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO thumbnails (path, mtime, size, data) VALUES (?, ?, ?, ?)`,
		path, mtime, size, data)
	if err != nil {
		metrics.ThumbnailStoreErrorsTotal.Inc()
		return fmt.Errorf("storing thumbnail for %s: %w", path, err)
	}
	return nil
}

// Delete drops the row for path, if any.
func (s *Store) Delete(path string) error {
	_, err := s.db.Exec(`DELETE FROM thumbnails WHERE path = ?`, path)
	if err != nil {
		metrics.ThumbnailStoreErrorsTotal.Inc()
		return fmt.Errorf("deleting thumbnail for %s: %w", path, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
