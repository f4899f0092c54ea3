package attemptlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mixaill76/agent_failover/internal/security"
)

// Writer persists a batch of entries.
type Writer interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

var entryColumns = []string{"call_id", "attempt", "model_id", "error", "duration_ms", "created_at"}

const connectTimeout = 10 * time.Second

// PGWriter writes entries to PostgreSQL with COPY.
type PGWriter struct {
	pool   *pgxpool.Pool
	table  pgx.Identifier
	logger *slog.Logger
}

// NewPGWriter connects to databaseURL and verifies the connection.
// table may be schema-qualified ("audit.model_attempts").
func NewPGWriter(ctx context.Context, databaseURL, table string, logger *slog.Logger) (*PGWriter, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("attemptlog: invalid database URL: %w", err)
	}
	poolConfig.ConnConfig.ConnectTimeout = connectTimeout

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("attemptlog: failed to create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("attemptlog: failed to connect: %w", err)
	}

	logger.Info("[DB] Attempt log connected",
		"database", security.MaskDatabaseURL(databaseURL),
		"table", table,
		"max_conns", poolConfig.MaxConns,
	)
	return &PGWriter{
		pool:   pool,
		table:  tableIdentifier(table),
		logger: logger,
	}, nil
}

// EnsureTable creates the attempt table if it does not exist.
func (w *PGWriter) EnsureTable(ctx context.Context) error {
	_, err := w.pool.Exec(ctx, createTableSQL(w.table))
	if err != nil {
		return fmt.Errorf("attemptlog: create table %s: %w", w.table.Sanitize(), err)
	}
	return nil
}

func (w *PGWriter) WriteBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	n, err := w.pool.CopyFrom(ctx, w.table, entryColumns, pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
		return entryRow(entries[i]), nil
	}))
	if err != nil {
		return fmt.Errorf("copy attempts: %w", err)
	}
	if int(n) != len(entries) {
		return fmt.Errorf("copy attempts: wrote %d of %d rows", n, len(entries))
	}
	return nil
}

func (w *PGWriter) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

func (w *PGWriter) Close() {
	w.pool.Close()
}

func entryRow(e Entry) []any {
	var errText any
	if e.Error != "" {
		errText = e.Error
	}
	return []any{e.CallID, e.Attempt, e.ModelID, errText, e.DurationMS, e.CreatedAt}
}

func tableIdentifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}

func createTableSQL(table pgx.Identifier) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	call_id TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	model_id TEXT NOT NULL,
	error TEXT,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`, table.Sanitize())
}
