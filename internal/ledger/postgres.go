package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent Append calls across processes
// sharing one database. The value is arbitrary but must be consistent.
const advisoryLockKey = int64(7_415_926_535)

// PostgresLedger persists the chain in PostgreSQL. Like SQLiteLedger it
// stores raw entry lines, so a row tampered with in place still surfaces
// through verification rather than through a decode failure.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger on the given pool and
// ensures the chain_entries table exists.
func NewPostgresLedger(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (*PostgresLedger, error) {
	if _, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS chain_entries (
  idx BIGSERIAL PRIMARY KEY,
  raw TEXT NOT NULL
)`); err != nil {
		return nil, fmt.Errorf("create chain_entries table: %w", err)
	}
	return &PostgresLedger{pool: pool, logger: logger}, nil
}

// Append implements Ledger. Appends run under a transaction-scoped
// advisory lock so two writer processes cannot interleave entries.
func (l *PostgresLedger) Append(ctx context.Context, raw []byte) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO chain_entries (raw) VALUES ($1)", string(raw),
	); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	l.logger.Debug("ledger entry appended", zap.Int("bytes", len(raw)))
	return nil
}

// Last implements Ledger.
func (l *PostgresLedger) Last(ctx context.Context) ([]byte, bool, error) {
	var raw string
	err := l.pool.QueryRow(ctx,
		"SELECT raw FROM chain_entries ORDER BY idx DESC LIMIT 1",
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read ledger tip: %w", err)
	}
	return []byte(raw), true, nil
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chain_entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Scan implements Ledger. Rows stream in chain order; O(n) in ledger
// length, which may be slow for very large ledgers.
func (l *PostgresLedger) Scan(ctx context.Context, fn func(index int, raw []byte) error) error {
	rows, err := l.pool.Query(ctx, "SELECT raw FROM chain_entries ORDER BY idx ASC")
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
