// Package sink persists worker results in an embedded SQLite database whose
// column set is discovered at runtime.
//
// The table is always named "results". Its first column, "Seed", is the text
// primary key; every other column is an INTEGER defaulting to 0. Columns are
// only ever added.
package sink

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const (
	// KeyColumn is the primary key of the results table.
	KeyColumn = "Seed"

	// ScoreColumn is indexed when present and is the default sort column.
	ScoreColumn = "Score"

	tableName = "results"
	fileExt   = ".sqlite"
)

var (
	// ErrEmptyKey is returned by Upsert when the key is empty.
	ErrEmptyKey = errors.New("empty result key")

	// ErrNotConnected is returned when no database is open.
	ErrNotConnected = errors.New("sink not connected")
)

// Sink is a mutex-guarded handle on one results database.
type Sink struct {
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	path string
	db   *sql.DB

	// known holds the lower-cased names of columns present in the table.
	// nil until EnsureSchema has run for the current connection.
	known   map[string]bool
	columns []string
}

// New creates a sink that stores databases under dir. No database is opened
// until Connect or Open.
func New(dir string, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{dir: dir, logger: logger}
}

// PathFor returns the database path used for a configuration name.
func PathFor(dir, configName string) string {
	name := strings.TrimSuffix(filepath.Base(configName), filepath.Ext(configName))
	return filepath.Join(dir, name+fileExt)
}

// Connect opens the database belonging to configName.
func (s *Sink) Connect(configName string) error {
	if strings.TrimSpace(configName) == "" {
		return errors.New("connect: empty configuration name")
	}
	return s.Open(PathFor(s.dir, configName))
}

// Open opens the database at path. Opening the path that is already open is
// a no-op; opening a different path closes the previous database first.
func (s *Sink) Open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil && s.path == path {
		return nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("sink_close_failed", "path", s.path, "error", err)
		}
		s.db = nil
	}
	s.path = path
	return s.openLocked()
}

func (s *Sink) openLocked() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("opening %s: %w", s.path, err)
	}

	s.db = db
	s.known = nil
	s.columns = nil
	s.logger.Debug("sink_opened", "path", s.path)
	return nil
}

// Path returns the path of the open database.
func (s *Sink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Close closes the database.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.known = nil
	s.columns = nil
	return err
}

// withRetry runs op against the current connection. If op fails because the
// connection is no longer usable the database is reopened once and op is
// retried. Must be called with s.mu held.
func (s *Sink) withRetry(op func(db *sql.DB) error) error {
	if s.db == nil {
		return ErrNotConnected
	}
	err := op(s.db)
	if err == nil || !isConnError(err) {
		return err
	}

	s.logger.Warn("sink_reconnecting", "path", s.path, "error", err)
	s.db.Close()
	s.db = nil
	known, columns := s.known, s.columns
	if rerr := s.openLocked(); rerr != nil {
		return fmt.Errorf("reconnect after %v: %w", err, rerr)
	}
	s.known, s.columns = known, columns
	return op(s.db)
}

// errDBClosedText is the message of database/sql's unexported error for a
// closed *sql.DB.
const errDBClosedText = "sql: database is closed"

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		strings.Contains(err.Error(), errDBClosedText)
}

// EnsureSchema makes sure the results table exists and carries every column
// in columns. The first column is always treated as the key. Column names
// are compared case-insensitively, as SQLite does. Idempotent.
func (s *Sink) EnsureSchema(columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureSchemaLocked(columns)
}

func (s *Sink) ensureSchemaLocked(columns []string) error {
	valueCols := uniqueValueColumns(columns)

	if s.known != nil {
		missing := false
		for _, c := range valueCols {
			if !s.known[strings.ToLower(c)] {
				missing = true
				break
			}
		}
		if !missing {
			return nil
		}
	}

	return s.withRetry(func(db *sql.DB) error {
		ctx := context.Background()

		if _, err := db.ExecContext(ctx, createTableSQL(valueCols)); err != nil {
			return fmt.Errorf("creating results table: %w", err)
		}

		existing, err := tableColumns(ctx, db)
		if err != nil {
			return err
		}
		known := make(map[string]bool, len(existing))
		for _, c := range existing {
			known[strings.ToLower(c)] = true
		}

		for _, c := range valueCols {
			if known[strings.ToLower(c)] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INTEGER NOT NULL DEFAULT 0",
				tableName, quoteIdent(c))
			if _, err := db.ExecContext(ctx, stmt); err != nil && !isDuplicateColumn(err) {
				return fmt.Errorf("adding column %q: %w", c, err)
			}
			s.logger.Debug("sink_column_added", "column", c)
			known[strings.ToLower(c)] = true
			existing = append(existing, c)
		}

		indexes := []string{
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_seed ON %s(%s)", tableName, quoteIdent(KeyColumn)),
		}
		if known[strings.ToLower(ScoreColumn)] {
			indexes = append(indexes,
				fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_score ON %s(%s)", tableName, quoteIdent(ScoreColumn)))
		}
		for _, stmt := range indexes {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating index: %w", err)
			}
		}

		s.known = known
		s.columns = existing
		return nil
	})
}

// Upsert inserts or replaces the row identified by key. columns is the
// schema the row was decoded with (columns[0] is the key column) and values
// holds one entry per remaining column. Missing values default to 0. When a
// column name repeats, the first occurrence supplies the value.
func (s *Sink) Upsert(columns []string, key string, values []int64) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureSchemaLocked(columns); err != nil {
		return err
	}

	names := []string{quoteIdent(KeyColumn)}
	args := []any{key}
	seen := map[string]bool{strings.ToLower(KeyColumn): true}
	for i, c := range columns {
		if i == 0 {
			continue
		}
		lc := strings.ToLower(c)
		if seen[lc] {
			continue
		}
		seen[lc] = true

		var v int64
		if i-1 < len(values) {
			v = values[i-1]
		}
		names = append(names, quoteIdent(c))
		args = append(args, v)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(names, ","), placeholders)

	return s.withRetry(func(db *sql.DB) error {
		if _, err := db.Exec(stmt, args...); err != nil {
			return fmt.Errorf("upserting %q: %w", key, err)
		}
		return nil
	})
}

// Columns returns the column names of the results table in table order, or
// nil if the table does not exist yet.
func (s *Sink) Columns() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cols []string
	err := s.withRetry(func(db *sql.DB) error {
		var err error
		cols, err = tableColumns(context.Background(), db)
		return err
	})
	return cols, err
}

// Count returns the number of stored rows.
func (s *Sink) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.withRetry(func(db *sql.DB) error {
		ok, err := tableExists(context.Background(), db)
		if err != nil || !ok {
			return err
		}
		return db.QueryRow("SELECT COUNT(*) FROM " + tableName).Scan(&n)
	})
	return n, err
}

// DeleteAll removes the database file and starts over with an empty one.
// Schema tracking is reset.
func (s *Sink) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return ErrNotConnected
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("sink_close_failed", "path", s.path, "error", err)
		}
		s.db = nil
	}

	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(s.path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", s.path+suffix, err)
		}
	}
	s.logger.Info("sink_deleted", "path", s.path)
	return s.openLocked()
}

// Stats describes the open database.
type Stats struct {
	Path    string
	Rows    int
	Columns []string
}

// Stats returns the database path, row count and column names.
func (s *Sink) Stats() (Stats, error) {
	rows, err := s.Count()
	if err != nil {
		return Stats{}, err
	}
	cols, err := s.Columns()
	if err != nil {
		return Stats{}, err
	}
	return Stats{Path: s.Path(), Rows: rows, Columns: cols}, nil
}

func createTableSQL(valueCols []string) string {
	defs := []string{quoteIdent(KeyColumn) + " TEXT PRIMARY KEY"}
	for _, c := range valueCols {
		defs = append(defs, quoteIdent(c)+" INTEGER NOT NULL DEFAULT 0")
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", tableName, strings.Join(defs, ", "))
}

func tableExists(ctx context.Context, db *sql.DB) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tableName,
	).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("checking for results table: %w", err)
	}
	return true, nil
}

func tableColumns(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info('"+tableName+"') ORDER BY cid")
	if err != nil {
		return nil, fmt.Errorf("reading table columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// uniqueValueColumns returns the non-key columns with case-insensitive
// duplicates removed, keeping first occurrences.
func uniqueValueColumns(columns []string) []string {
	seen := map[string]bool{strings.ToLower(KeyColumn): true}
	out := make([]string, 0, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(c)
		lc := strings.ToLower(c)
		if i == 0 || c == "" || seen[lc] {
			continue
		}
		seen[lc] = true
		out = append(out, c)
	}
	return out
}

func isDuplicateColumn(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
