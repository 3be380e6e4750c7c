package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is bumped whenever the table layout changes.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	timestamp  INTEGER NOT NULL,
	component  TEXT NOT NULL,
	event_type TEXT NOT NULL,
	policy_id  TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_component ON audit_events(component);
CREATE INDEX IF NOT EXISTS idx_audit_policy ON audit_events(policy_id);

CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);
`

// StoreConfig contains configuration for the SQLite audit store.
type StoreConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections. Default: 10.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections. Default: 5.
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true.
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// DefaultStoreConfig returns the default audit store configuration.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// Store persists audit records in SQLite.
type Store struct {
	db     *sql.DB
	config *StoreConfig
	logger *slog.Logger

	mu     sync.Mutex
	insert *sql.Stmt
	closed bool
}

// NewStore opens (creating if needed) the audit database at config.Path.
func NewStore(config *StoreConfig) (*Store, error) {
	if config == nil {
		config = DefaultStoreConfig()
	}
	logger := slog.Default().With("component", "audit.store")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &Store{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("audit store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode)
	return s, nil
}

func (s *Store) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("enabling WAL mode: %w", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating audit schema: %w", err)
	}
	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)",
		schemaVersion, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}

	var version int
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("audit schema version mismatch: expected %d, got %d", schemaVersion, version)
	}

	stmt, err := s.db.Prepare(
		"INSERT INTO audit_events (id, timestamp, component, event_type, policy_id, detail) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	s.insert = stmt
	return nil
}

// Insert persists one audit record.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	stmt := s.insert
	s.mu.Unlock()

	detail := rec.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encoding audit detail: %w", err)
	}

	if _, err := stmt.ExecContext(ctx,
		rec.ID,
		rec.Timestamp.UnixNano(),
		rec.Component,
		rec.EventType,
		rec.PolicyID,
		string(detailJSON),
	); err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// Query returns matching records, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	s.mu.Unlock()

	var (
		conds []string
		args  []any
	)
	if filter.Component != "" {
		conds = append(conds, "component = ?")
		args = append(args, filter.Component)
	}
	if filter.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.PolicyID != "" {
		conds = append(conds, "policy_id = ?")
		args = append(args, filter.PolicyID)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, filter.Until.UnixNano())
	}

	query := "SELECT id, timestamp, component, event_type, policy_id, detail FROM audit_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			tsNanos    int64
			detailJSON string
		)
		if err := rows.Scan(&rec.ID, &tsNanos, &rec.Component, &rec.EventType, &rec.PolicyID, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		rec.Timestamp = time.Unix(0, tsNanos)
		if err := json.Unmarshal([]byte(detailJSON), &rec.Detail); err != nil {
			return nil, fmt.Errorf("decoding audit detail: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count reports the total number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting audit records: %w", err)
	}
	return n, nil
}

// DeleteBefore removes all records with a timestamp strictly before cutoff
// and returns how many were deleted.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_events WHERE timestamp < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("deleting old audit records: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOverLimit keeps the newest maxRecords records and removes the rest,
// returning how many were deleted.
func (s *Store) DeleteOverLimit(ctx context.Context, maxRecords int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM audit_events WHERE id NOT IN (
			SELECT id FROM audit_events ORDER BY timestamp DESC LIMIT ?
		)`, maxRecords)
	if err != nil {
		return 0, fmt.Errorf("trimming audit records: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the prepared statement and the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.insert != nil {
		s.insert.Close()
	}
	return s.db.Close()
}
