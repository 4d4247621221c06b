// Package store provides a SQLite-backed cache of parsed token usage logs.
// Only log file parse results are stored; API usage is never persisted.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/cpusage/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Cache provides SQLite-backed log file caching.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// ensureSchema rebuilds the tables when the stored schema version differs.
func ensureSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version != schemaVersion {
		if _, err := db.Exec(dropSQL); err != nil {
			return err
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return err
	}
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// FileInfo holds the tracked mtime and size for a file.
type FileInfo struct {
	MtimeNs   int64
	SizeBytes int64
}

// FileEntry is the cached parse result of one log file.
type FileEntry struct {
	Path        string
	Date        string
	Lines       int
	ParseErrors int
	// Records holds one log-tagged record per model.
	Records []model.UsageRecord
}

// GetTrackedFiles returns a map of file_path -> FileInfo for all cached files.
func (c *Cache) GetTrackedFiles() (map[string]FileInfo, error) {
	rows, err := c.db.Query("SELECT file_path, mtime_ns, size_bytes FROM log_files")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]FileInfo)
	for rows.Next() {
		var path string
		var fi FileInfo
		if err := rows.Scan(&path, &fi.MtimeNs, &fi.SizeBytes); err != nil {
			return nil, err
		}
		result[path] = fi
	}
	return result, rows.Err()
}

// SaveFile stores a parsed log file together with its mtime and size,
// replacing any earlier entry for the same path.
func (c *Cache) SaveFile(e FileEntry, mtimeNs, sizeBytes int64) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)

	// Replacing the parent row cascades to its model rows.
	if _, err := tx.Exec("DELETE FROM log_files WHERE file_path = ?", e.Path); err != nil {
		return err
	}

	_, err = tx.Exec(`INSERT INTO log_files
		(file_path, log_date, lines, parse_errors, mtime_ns, size_bytes, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Path, e.Date, e.Lines, e.ParseErrors, mtimeNs, sizeBytes, now,
	)
	if err != nil {
		return err
	}

	for _, r := range e.Records {
		_, err = tx.Exec(`INSERT INTO log_file_models
			(file_path, model, prompt_tokens, completion_tokens, total_tokens, unsplit_tokens, requests)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.Path, r.Model, r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.UnsplitTokens, r.Requests,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadAllFiles reads every cached log file keyed by path.
func (c *Cache) LoadAllFiles() (map[string]*FileEntry, error) {
	rows, err := c.db.Query(`SELECT file_path, log_date, lines, parse_errors FROM log_files`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make(map[string]*FileEntry)
	for rows.Next() {
		var e FileEntry
		if err := rows.Scan(&e.Path, &e.Date, &e.Lines, &e.ParseErrors); err != nil {
			return nil, err
		}
		files[e.Path] = &e
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	modelRows, err := c.db.Query(`SELECT
		file_path, model, prompt_tokens, completion_tokens, total_tokens, unsplit_tokens, requests
		FROM log_file_models ORDER BY file_path, model`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = modelRows.Close() }()

	for modelRows.Next() {
		var path string
		r := model.UsageRecord{Source: model.SourceLog}
		err := modelRows.Scan(&path, &r.Model, &r.PromptTokens, &r.CompletionTokens, &r.TotalTokens, &r.UnsplitTokens, &r.Requests)
		if err != nil {
			return nil, err
		}
		if e, ok := files[path]; ok {
			r.Date = e.Date
			r.Successes = r.Requests
			e.Records = append(e.Records, r)
		}
	}

	return files, modelRows.Err()
}

// DeleteFile removes a cached file and its model rows.
func (c *Cache) DeleteFile(filePath string) error {
	_, err := c.db.Exec("DELETE FROM log_files WHERE file_path = ?", filePath)
	return err
}

// FileCount returns the number of cached log files.
func (c *Cache) FileCount() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM log_files").Scan(&count)
	return count, err
}
