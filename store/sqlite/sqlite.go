/*
Package sqlite provides a SQLite-backed version history store.

PURPOSE:
  Persists committed loan versions so audit history survives process
  restarts. One database holds many loans; ForLoan scopes a version.Store
  to a single loan's append-only history.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on version rows except the tombstone flag
  - No DELETE statements at all; deleteVersion is the tombstone flag
  - Version numbers are unique per loan, enforced by the schema

KEY TABLES:
  versions: one row per committed version; the full snapshot and both
            change sets travel as a JSON body, with the queryable columns
            (loan, number, timestamps, flags) broken out for indexing.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  db, err := sqlite.New("./data/lending.db")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

  mgr := version.NewManager(engine, db.ForLoan("loan-123"))

SEE ALSO:
  - version/version.go: the Store interface and in-memory implementation
  - version/manager.go: the commit/rollback consumer
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/lending-engine/version"
)

// DB wraps one SQLite database holding version history for many loans.
type DB struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *DB) migrate() error {
	schema := `
	-- Versions (append-only audit history, tombstoned not deleted)
	CREATE TABLE IF NOT EXISTS versions (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		version_number INTEGER NOT NULL,
		committed_at TEXT NOT NULL,
		message TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		is_rollback INTEGER NOT NULL DEFAULT 0,
		rolled_back_from TEXT,
		body_json TEXT NOT NULL,
		UNIQUE(loan_id, version_number)
	);

	CREATE INDEX IF NOT EXISTS idx_versions_loan
		ON versions(loan_id, version_number);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ForLoan scopes the database to one loan's history.
func (s *DB) ForLoan(loanID string) *LoanStore {
	return &LoanStore{db: s, loanID: loanID}
}

// Loans lists every loan id with at least one committed version.
func (s *DB) Loans(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT loan_id FROM versions ORDER BY loan_id`)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// LOAN-SCOPED STORE
// =============================================================================

// LoanStore implements version.Store for a single loan.
type LoanStore struct {
	db     *DB
	loanID string
}

var _ version.Store = (*LoanStore)(nil)

// Append adds a committed version to the end of the loan's history.
func (s *LoanStore) Append(ctx context.Context, v version.Version) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode version %s: %w", v.ID, err)
	}

	_, err = s.db.db.ExecContext(ctx, `
		INSERT INTO versions
			(id, loan_id, version_number, committed_at, message,
			 is_deleted, is_rollback, rolled_back_from, body_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, s.loanID, v.Number, v.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		v.Message, boolToInt(v.IsDeleted), boolToInt(v.IsRollback),
		v.RolledBackFromVersionID, string(body),
	)
	if err != nil {
		return fmt.Errorf("insert version %s: %w", v.ID, err)
	}
	return nil
}

// Get returns the version with the given id.
func (s *LoanStore) Get(ctx context.Context, id string) (version.Version, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	row := s.db.db.QueryRowContext(ctx, `
		SELECT body_json, is_deleted FROM versions
		WHERE loan_id = ? AND id = ?`, s.loanID, id)

	var body string
	var deleted int
	if err := row.Scan(&body, &deleted); err != nil {
		if err == sql.ErrNoRows {
			return version.Version{}, &version.NotFoundError{VersionID: id}
		}
		return version.Version{}, fmt.Errorf("load version %s: %w", id, err)
	}
	return decodeVersion(body, deleted)
}

// List returns all versions in commit order, tombstones included.
func (s *LoanStore) List(ctx context.Context) ([]version.Version, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT body_json, is_deleted FROM versions
		WHERE loan_id = ? ORDER BY version_number`, s.loanID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []version.Version
	for rows.Next() {
		var body string
		var deleted int
		if err := rows.Scan(&body, &deleted); err != nil {
			return nil, err
		}
		v, err := decodeVersion(body, deleted)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// MarkDeleted sets the tombstone flag. The row itself is never removed.
func (s *LoanStore) MarkDeleted(ctx context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	res, err := s.db.db.ExecContext(ctx, `
		UPDATE versions SET is_deleted = 1
		WHERE loan_id = ? AND id = ?`, s.loanID, id)
	if err != nil {
		return fmt.Errorf("tombstone version %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &version.NotFoundError{VersionID: id}
	}
	return nil
}

// decodeVersion rebuilds a Version from its JSON body. The tombstone column
// wins over the stored body so MarkDeleted never rewrites the body.
func decodeVersion(body string, deleted int) (version.Version, error) {
	var v version.Version
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return version.Version{}, fmt.Errorf("decode version body: %w", err)
	}
	v.IsDeleted = deleted == 1
	return v, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
