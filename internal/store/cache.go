// Package store provides a SQLite-backed cache for per-file attribution
// results and fetched API responses.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/theirongolddev/tburn/internal/model"
	"github.com/theirongolddev/tburn/internal/source"
	"github.com/theirongolddev/tburn/internal/ticket"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Cache provides SQLite-backed caching.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

const fingerprintKey = "attribution_fingerprint"

// EnsureFingerprint drops all cached file results when fp differs from the
// fingerprint they were computed under, then records fp. It reports
// whether a reset happened.
func (c *Cache) EnsureFingerprint(fp string) (bool, error) {
	var current string
	err := c.db.QueryRow("SELECT value FROM meta WHERE key = ?", fingerprintKey).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	if err == nil && current == fp {
		return false, nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM file_tickets"); err != nil {
		return false, err
	}
	if _, err := tx.Exec("DELETE FROM files"); err != nil {
		return false, err
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", fingerprintKey, fp); err != nil {
		return false, err
	}
	return current != "", tx.Commit()
}

// FileInfo holds the tracked mtime and size for a file.
type FileInfo struct {
	MtimeNs   int64
	SizeBytes int64
}

// GetTrackedFiles returns a map of file_path -> FileInfo for all cached files.
func (c *Cache) GetTrackedFiles() (map[string]FileInfo, error) {
	rows, err := c.db.Query("SELECT file_path, mtime_ns, size_bytes FROM files")
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

// SaveResult stores one file's parse result, replacing any earlier entry.
func (c *Cache) SaveResult(df source.DiscoveredFile, r source.ParseResult, mtimeNs, sizeBytes int64) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	isSubagent := 0
	if df.IsSubagent {
		isSubagent = 1
	}

	_, err = tx.Exec("DELETE FROM file_tickets WHERE file_path = ?", df.Path)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`INSERT OR REPLACE INTO files
		(file_path, session_id, project, is_subagent, start_time, end_time,
		 user_messages, api_calls, compactions, parse_errors, mtime_ns, size_bytes, parsed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		df.Path, df.SessionID, df.Project, isSubagent, formatTime(r.StartTime), formatTime(r.EndTime),
		r.UserMessages, r.APICalls, r.Compactions, r.ParseErrors, mtimeNs, sizeBytes,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return err
	}

	for id, tu := range r.Totals {
		sessions := make([]string, 0, len(tu.Sessions))
		for s := range tu.Sessions {
			sessions = append(sessions, s)
		}
		sort.Strings(sessions)
		sessionsJSON, err := json.Marshal(sessions)
		if err != nil {
			return err
		}

		_, err = tx.Exec(`INSERT INTO file_tickets
			(file_path, ticket, input_tokens, output_tokens, cache_creation, cache_read,
			 reasoning_tokens, api_calls, estimated_cost, sessions)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			df.Path, string(id), tu.Tokens.Input, tu.Tokens.Output, tu.Tokens.CacheCreation,
			tu.Tokens.CacheRead, tu.Tokens.Reasoning, tu.APICalls, tu.EstimatedCost.String(),
			string(sessionsJSON),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadResults reads every cached file result.
func (c *Cache) LoadResults() ([]source.ParseResult, error) {
	rows, err := c.db.Query(`SELECT
		file_path, start_time, end_time, user_messages, api_calls, compactions, parse_errors
		FROM files`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []source.ParseResult
	idx := make(map[string]int)
	for rows.Next() {
		r := source.ParseResult{Totals: model.Totals{}}
		var startStr, endStr sql.NullString
		if err := rows.Scan(&r.Path, &startStr, &endStr, &r.UserMessages, &r.APICalls,
			&r.Compactions, &r.ParseErrors); err != nil {
			return nil, err
		}
		r.StartTime = parseTime(startStr)
		r.EndTime = parseTime(endStr)
		idx[r.Path] = len(results)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ticketRows, err := c.db.Query(`SELECT
		file_path, ticket, input_tokens, output_tokens, cache_creation, cache_read,
		reasoning_tokens, api_calls, estimated_cost, sessions
		FROM file_tickets`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ticketRows.Close() }()

	for ticketRows.Next() {
		var (
			path, id, costStr, sessionsJSON string
			tok                             model.TokenTotals
			tu                              model.TicketUsage
		)
		if err := ticketRows.Scan(&path, &id, &tok.Input, &tok.Output, &tok.CacheCreation,
			&tok.CacheRead, &tok.Reasoning, &tu.APICalls, &costStr, &sessionsJSON); err != nil {
			return nil, err
		}
		i, ok := idx[path]
		if !ok {
			continue
		}
		tu.Tokens.Merge(tok)
		if tu.EstimatedCost, err = decimal.NewFromString(costStr); err != nil {
			return nil, fmt.Errorf("cached cost for %s: %w", path, err)
		}
		var sessions []string
		if err := json.Unmarshal([]byte(sessionsJSON), &sessions); err != nil {
			return nil, fmt.Errorf("cached sessions for %s: %w", path, err)
		}
		if len(sessions) > 0 {
			tu.Sessions = make(map[string]struct{}, len(sessions))
			for _, s := range sessions {
				tu.Sessions[s] = struct{}{}
			}
		}
		results[i].Totals[ticket.ID(id)] = &tu
	}

	return results, ticketRows.Err()
}

// DeleteFile removes a cached file result.
func (c *Cache) DeleteFile(filePath string) error {
	if _, err := c.db.Exec("DELETE FROM file_tickets WHERE file_path = ?", filePath); err != nil {
		return err
	}
	_, err := c.db.Exec("DELETE FROM files WHERE file_path = ?", filePath)
	return err
}

// FileCount returns the number of cached files.
func (c *Cache) FileCount() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&count)
	return count, err
}

// Get returns a kv entry. It implements github.Backend.
func (c *Cache) Get(key string) ([]byte, time.Time, bool, error) {
	var (
		value    []byte
		storedAt string
	)
	err := c.db.QueryRow("SELECT value, stored_at FROM kv WHERE key = ?", key).Scan(&value, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, storedAt)
	if err != nil {
		return nil, time.Time{}, false, nil //nolint:nilerr // unreadable entry is a miss
	}
	return value, at, true, nil
}

// Put stores a kv entry. It implements github.Backend.
func (c *Cache) Put(key string, value []byte, storedAt time.Time) error {
	_, err := c.db.Exec("INSERT OR REPLACE INTO kv (key, value, stored_at) VALUES (?, ?, ?)",
		key, value, storedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}
