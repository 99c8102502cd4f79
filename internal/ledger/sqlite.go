package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver for database/sql
)

// SQLiteLedger persists the chain in a single-table SQLite database.
// Rows hold the raw entry line exactly as the file backend would, keyed
// by a monotonically increasing index, so verification semantics are
// identical across backends.
type SQLiteLedger struct {
	db *sql.DB
}

// OpenSQLiteLedger opens or creates the database at dsn and ensures the
// schema and durability PRAGMAs.
func OpenSQLiteLedger(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite ledger: %w", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", p, err)
		}
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS chain_entries (
  idx INTEGER PRIMARY KEY AUTOINCREMENT,
  raw TEXT NOT NULL
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chain_entries table: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Append implements Ledger.
func (l *SQLiteLedger) Append(ctx context.Context, raw []byte) error {
	if _, err := l.db.ExecContext(ctx,
		"INSERT INTO chain_entries (raw) VALUES (?)", string(raw),
	); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// Last implements Ledger.
func (l *SQLiteLedger) Last(ctx context.Context) ([]byte, bool, error) {
	var raw string
	err := l.db.QueryRowContext(ctx,
		"SELECT raw FROM chain_entries ORDER BY idx DESC LIMIT 1",
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read ledger tip: %w", err)
	}
	return []byte(raw), true, nil
}

// Len implements Ledger.
func (l *SQLiteLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chain_entries",
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Scan implements Ledger.
func (l *SQLiteLedger) Scan(ctx context.Context, fn func(index int, raw []byte) error) error {
	rows, err := l.db.QueryContext(ctx,
		"SELECT raw FROM chain_entries ORDER BY idx ASC",
	)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	for i := 0; rows.Next(); i++ {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("scan ledger row: %w", err)
		}
		if err := fn(i, []byte(raw)); err != nil {
			return err
		}
	}
	return rows.Err()
}
